package bus_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhaus/automate/bus"
	"github.com/openhaus/automate/convert"
	"github.com/openhaus/automate/errcode"
	"github.com/openhaus/automate/inject"
	"github.com/openhaus/automate/logger"
	"github.com/openhaus/automate/state"
	"github.com/openhaus/automate/track"
	"github.com/openhaus/automate/where"
)

func newTestBus(t *testing.T, opts ...bus.Option) *bus.Bus {
	t.Helper()
	table := convert.NewTable()
	resolver := inject.NewResolver(table, state.NewRegistry(table))
	sup := track.NewSupervisor(logger.Nop())
	opts = append([]bus.Option{bus.WithLogger(logger.Nop())}, opts...)
	b, err := bus.New(resolver, sup, opts...)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func lightEvent(entityID, oldVal, newVal string, attrs map[string]interface{}) *bus.Event {
	var old *state.State
	if oldVal != "" {
		old = state.New(entityID, oldVal, nil)
	}
	var new_ *state.State
	if newVal != "" {
		new_ = state.New(entityID, newVal, attrs)
	}
	return bus.NewStateChanged(entityID, old, new_)
}

func waitFor(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestSubscribe_ConfigurationErrors(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Subscribe("light..kitchen", func() {})
	assert.ErrorIs(t, err, errcode.ErrBadPattern)

	_, err = b.Subscribe("light.kitchen", nil)
	assert.ErrorIs(t, err, errcode.ErrNilHandler)

	_, err = b.Subscribe("light.kitchen", func() {}, bus.WithDebounce(-time.Second))
	assert.ErrorIs(t, err, errcode.ErrBadListenerOpts)

	// A handler parameter nothing can satisfy fails at subscribe time
	// and nothing is registered.
	_, err = b.Subscribe("light.kitchen", func(x chan int) error { return nil })
	assert.ErrorIs(t, err, errcode.ErrUnresolvableParam)

	assert.Equal(t, 0, b.ListenerCount("light.kitchen"))
	assert.Empty(t, b.Listeners(""))
}

func TestPublish_ChangedToWithTypedParam(t *testing.T) {
	b := newTestBus(t)

	fired := make(chan *state.Light, 4)
	_, err := b.Subscribe("light.kitchen", func(l *state.Light) error {
		fired <- l
		return nil
	}, bus.WithChangedTo("on"))
	require.NoError(t, err)

	ctx := context.Background()

	// off -> on with brightness: fires, typed model populated.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "off", "on",
		map[string]interface{}{"brightness": 254})))
	select {
	case l := <-fired:
		assert.True(t, l.On)
		assert.Equal(t, 254, l.Brightness)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never fired for off -> on")
	}

	// on -> on: suppressed by the default changed requirement.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "on", "on", nil)))
	// on -> off: new value does not match.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "on", "off", nil)))
	// Different entity: pattern does not match.
	require.NoError(t, b.Publish(ctx, lightEvent("light.bedroom", "off", "on", nil)))

	select {
	case <-fired:
		t.Fatal("listener fired for a non-qualifying event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublish_WherePredicateOnAttributeUpdate(t *testing.T) {
	b := newTestBus(t)

	fired := make(chan struct{}, 4)
	pred := where.AllOf(
		where.Cond(where.NewValue(), where.Eq("on")),
		where.Cond(where.NewAttr("brightness"), where.Gt(200)),
	)
	_, err := b.Subscribe("light.kitchen", func() { fired <- struct{}{} },
		bus.WithWhere(pred),
		bus.WithChanged(false))
	require.NoError(t, err)

	ctx := context.Background()

	// Value matches but brightness too low.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "off", "on",
		map[string]interface{}{"brightness": 100})))
	select {
	case <-fired:
		t.Fatal("fired below the brightness threshold")
	case <-time.After(100 * time.Millisecond):
	}

	// Attribute-only update crossing the threshold: the value did not
	// change, but changed=false lets it through to the predicate.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "on", "on",
		map[string]interface{}{"brightness": 250})))
	waitFor(t, fired, "listener never fired for the attribute update")
}

func TestOnce_FiresExactlyOnce(t *testing.T) {
	b := newTestBus(t)

	var count atomic.Int32
	done := make(chan struct{}, 8)
	_, err := b.Subscribe("light.kitchen", func() {
		count.Add(1)
		done <- struct{}{}
	}, bus.WithOnce())
	require.NoError(t, err)

	ctx := context.Background()
	ev := lightEvent("light.kitchen", "off", "on", nil)

	// Concurrent publishes race for the single claim.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Publish(ctx, ev)
		}()
	}
	wg.Wait()

	waitFor(t, done, "once listener never fired")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, 0, b.ListenerCount("light.kitchen"), "once listener not removed")
}

func TestPriority_StartOrder(t *testing.T) {
	// A single-worker pool serializes invocation starts, exposing the
	// dispatch order: higher priority first, ties by registration order.
	b := newTestBus(t, bus.WithPoolSize(1))

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	_, err := b.Subscribe("light.kitchen", record("low"), bus.WithPriority(1))
	require.NoError(t, err)
	_, err = b.Subscribe("light.kitchen", record("high-first"), bus.WithPriority(5))
	require.NoError(t, err)
	_, err = b.Subscribe("light.kitchen", record("high-second"), bus.WithPriority(5))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), lightEvent("light.kitchen", "off", "on", nil)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high-first", "high-second", "low"}, order)
}

func TestThrottle_DropsInsideWindow(t *testing.T) {
	b := newTestBus(t)

	fired := make(chan struct{}, 4)
	sub, err := b.Subscribe("light.kitchen", func() { fired <- struct{}{} },
		bus.WithThrottle(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "off", "on", nil)))
	waitFor(t, fired, "first event should fire")

	// Inside the window: dropped, not queued.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "on", "off", nil)))
	select {
	case <-fired:
		t.Fatal("throttled event fired")
	case <-time.After(100 * time.Millisecond):
	}

	snap := sub.Metrics()
	assert.Equal(t, uint64(1), snap.Total)
	assert.Equal(t, uint64(1), snap.Suppressed)
}

func TestDebounce_SlidingWindow(t *testing.T) {
	b := newTestBus(t)

	fired := make(chan struct{}, 4)
	sub, err := b.Subscribe("light.kitchen", func() { fired <- struct{}{} },
		bus.WithDebounce(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	// First event: no previous event, quiet window trivially satisfied.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "off", "on", nil)))
	waitFor(t, fired, "first event should fire")

	// A burst inside the window is suppressed event by event.
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "on", "off", nil)))
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "off", "on", nil)))
	select {
	case <-fired:
		t.Fatal("debounced event fired")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, uint64(2), sub.Metrics().Suppressed)
}

func TestDIFailure_IsCountedNotCalled(t *testing.T) {
	b := newTestBus(t)

	called := false
	sub, err := b.Subscribe("*.office", func(l *state.Light) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	// A switch entity matches the pattern but cannot satisfy the
	// *state.Light parameter.
	ev := bus.NewStateChanged("switch.office",
		state.New("switch.office", "off", nil),
		state.New("switch.office", "on", nil))
	require.NoError(t, b.Publish(context.Background(), ev))

	assert.Eventually(t, func() bool {
		return sub.Metrics().DIFailure == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap := sub.Metrics()
	assert.False(t, called)
	assert.Equal(t, uint64(1), snap.Total)
	assert.Equal(t, uint64(0), snap.Success)
	assert.Contains(t, snap.LastErrorMsg, "switch")
}

func TestHandlerFailures_Recorded(t *testing.T) {
	b := newTestBus(t)

	done := make(chan struct{}, 4)
	failing, err := b.Subscribe("light.kitchen", func() error {
		defer func() { done <- struct{}{} }()
		return errors.New("flaky integration")
	})
	require.NoError(t, err)

	panicky, err := b.Subscribe("light.kitchen", func() {
		defer func() { done <- struct{}{} }()
		panic("boom")
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), lightEvent("light.kitchen", "off", "on", nil)))
	waitFor(t, done, "failing handler never ran")
	waitFor(t, done, "panicking handler never ran")

	assert.Eventually(t, func() bool {
		return failing.Metrics().Failure == 1 && panicky.Metrics().Failure == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "flaky integration", failing.Metrics().LastErrorMsg)
	assert.Contains(t, panicky.Metrics().LastErrorMsg, "boom")
}

func TestBoundArgsAndArgSpec(t *testing.T) {
	b := newTestBus(t)

	got := make(chan [2]interface{}, 1)
	spec := bus.ArgSpec{
		Index: 1,
		Extract: func(ev *bus.Event) (interface{}, error) {
			v, _ := ev.StateChange().NewState.Attr("brightness")
			return v, nil
		},
	}
	_, err := b.Subscribe("light.kitchen", func(label string, brightness int) error {
		got <- [2]interface{}{label, brightness}
		return nil
	}, bus.WithBoundArgs("evening-scene"), bus.WithArgSpec(spec))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(),
		lightEvent("light.kitchen", "off", "on", map[string]interface{}{"brightness": 180})))

	select {
	case v := <-got:
		assert.Equal(t, "evening-scene", v[0])
		assert.Equal(t, 180, v[1])
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}
}

func TestSubscriptionCancel_StopsDelivery(t *testing.T) {
	b := newTestBus(t)

	fired := make(chan struct{}, 4)
	sub, err := b.Subscribe("light.kitchen", func() { fired <- struct{}{} })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "off", "on", nil)))
	waitFor(t, fired, "listener never fired before cancel")

	sub.Cancel()
	assert.Equal(t, 0, b.ListenerCount("light.kitchen"))

	require.NoError(t, b.Publish(ctx, lightEvent("light.kitchen", "on", "off", nil)))
	select {
	case <-fired:
		t.Fatal("cancelled listener fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelOwner_RemovesAllOfOwner(t *testing.T) {
	b := newTestBus(t)

	fn := func() {}
	_, err := b.Subscribe("light.kitchen", fn, bus.WithOwner("app.scenes"))
	require.NoError(t, err)
	_, err = b.Subscribe("light.*", fn, bus.WithOwner("app.scenes"))
	require.NoError(t, err)
	_, err = b.Subscribe("light.kitchen", fn, bus.WithOwner("app.presence"))
	require.NoError(t, err)

	assert.Equal(t, 2, b.CancelOwner("app.scenes"))
	assert.Equal(t, 0, b.CancelOwner("app.scenes"))

	infos := b.Listeners("")
	require.Len(t, infos, 1)
	assert.Equal(t, "app.presence", infos[0].Owner)
}

func TestListeners_Introspection(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Subscribe("light.kitchen", func() {},
		bus.WithOwner("app.scenes"), bus.WithPriority(7), bus.WithOnce())
	require.NoError(t, err)
	_, err = b.Subscribe("switch.*", func() {}, bus.WithOwner("app.presence"))
	require.NoError(t, err)

	all := b.Listeners("")
	require.Len(t, all, 2)
	assert.Less(t, all[0].ID, all[1].ID)

	scenes := b.Listeners("app.scenes")
	require.Len(t, scenes, 1)
	assert.Equal(t, "light.kitchen", scenes[0].Pattern)
	assert.Equal(t, 7, scenes[0].Priority)
	assert.True(t, scenes[0].Once)
	assert.NotEmpty(t, scenes[0].Handler)
	assert.NotEmpty(t, scenes[0].Source)
}

func TestClosedBus_RejectsEverything(t *testing.T) {
	b := newTestBus(t)
	b.Close()

	_, err := b.Subscribe("light.kitchen", func() {})
	assert.ErrorIs(t, err, errcode.ErrBusClosed)

	err = b.Publish(context.Background(), lightEvent("light.kitchen", "off", "on", nil))
	assert.ErrorIs(t, err, errcode.ErrBusClosed)
}

func TestNewInternalEvent_MonotonicSeq(t *testing.T) {
	b := newTestBus(t)

	e1 := b.NewInternalEvent("timer_fired", "timer_fired", nil)
	e2 := b.NewInternalEvent("timer_fired", "timer_fired", nil)
	assert.Equal(t, bus.OriginInternal, e1.Meta.Origin)
	assert.Greater(t, e2.Meta.Seq, e1.Meta.Seq)
}
