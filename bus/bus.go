package bus

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/openhaus/automate/errcode"
	"github.com/openhaus/automate/logger"
	"github.com/openhaus/automate/state"
	"github.com/openhaus/automate/track"
)

// Bus routes published events to matching listeners. Registration state
// is mutex-guarded; fan-out selection happens on a snapshot so a publish
// is atomic with respect to who gets notified, while handler bodies run
// concurrently on the worker pool.
type Bus struct {
	mu    sync.RWMutex
	exact map[string][]*listenerEntry
	globs []*listenerEntry

	nextID  uint64
	nextSeq uint64
	seqGen  uint64 // internal event sequence

	pool     *ants.Pool
	poolSize int
	invoker  Invoker
	sup      *track.Supervisor
	log      *logger.CtxZapLogger
	metrics  *BusMetrics
	closed   int32
}

// Option configures a Bus.
type Option func(*Bus)

// WithPoolSize sets the invocation worker-pool size.
func WithPoolSize(size int) Option {
	return func(b *Bus) { b.poolSize = size }
}

// WithBusMetrics attaches an otel metrics provider.
func WithBusMetrics(m *BusMetrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithLogger overrides the default module logger.
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(b *Bus) { b.log = l }
}

// New creates a Bus. invoker builds handler binding plans (the inject
// resolver in production); sup supervises spawned invocations.
func New(invoker Invoker, sup *track.Supervisor, opts ...Option) (*Bus, error) {
	b := &Bus{
		exact:    make(map[string][]*listenerEntry),
		poolSize: 100,
		invoker:  invoker,
		sup:      sup,
		log:      logger.GetLogger("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sup == nil {
		b.sup = track.NewSupervisor(b.log)
	}

	pool, err := ants.NewPool(b.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create invocation pool: %w", err)
	}
	b.pool = pool
	return b, nil
}

type listenerParams struct {
	Debounce time.Duration
	Throttle time.Duration
}

func (p listenerParams) validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&p.Throttle, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return errcode.ErrBadListenerOpts.Wrap(err)
	}
	return nil
}

// Subscription is the cancellation handle returned by Subscribe.
type Subscription struct {
	bus   *Bus
	entry *listenerEntry
}

// ID returns the listener's unique id.
func (s *Subscription) ID() uint64 { return s.entry.id }

// Metrics returns a snapshot of the listener's aggregates.
func (s *Subscription) Metrics() MetricsSnapshot { return s.entry.metrics.Snapshot() }

// Cancel removes the listener. An invocation already in flight runs to
// completion; no new invocation is scheduled after Cancel returns.
func (s *Subscription) Cancel() {
	s.entry.markCancelled()
	s.bus.removeEntry(s.entry)
}

// Subscribe registers a handler for a topic pattern. All configuration
// errors - malformed pattern, invalid options, unresolvable handler
// signature - are returned here and nothing is registered.
func (b *Bus) Subscribe(topicPattern string, handler interface{}, opts ...SubscribeOption) (*Subscription, error) {
	if atomic.LoadInt32(&b.closed) == 1 {
		return nil, errcode.ErrBusClosed
	}
	if handler == nil {
		return nil, errcode.ErrNilHandler
	}

	pat, err := parsePattern(topicPattern)
	if err != nil {
		return nil, err
	}

	entry := &listenerEntry{
		pat:     pat,
		changed: true,
		metrics: &ListenerMetrics{},
	}
	for _, opt := range opts {
		opt(entry)
	}
	if err := (listenerParams{Debounce: entry.debounce, Throttle: entry.throttle}).validate(); err != nil {
		return nil, err
	}

	plan, err := b.invoker.Plan(handler, entry.specs, entry.bound)
	if err != nil {
		return nil, err
	}
	entry.plan = plan

	if _, file, line, ok := runtime.Caller(1); ok {
		entry.source = fmt.Sprintf("%s:%d", file, line)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if atomic.LoadInt32(&b.closed) == 1 {
		return nil, errcode.ErrBusClosed
	}
	entry.id = atomic.AddUint64(&b.nextID, 1)
	entry.seq = atomic.AddUint64(&b.nextSeq, 1)
	if pat.wildcard {
		b.globs = append(b.globs, entry)
	} else {
		b.exact[pat.raw] = append(b.exact[pat.raw], entry)
	}
	return &Subscription{bus: b, entry: entry}, nil
}

// Publish fans the event out to every matching listener. Listener starts
// are ordered by priority (higher first, ties by registration order);
// completion order is unordered. Listener failures never propagate.
func (b *Bus) Publish(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if atomic.LoadInt32(&b.closed) == 1 {
		return errcode.ErrBusClosed
	}

	start := time.Now()
	candidates := b.match(ev)

	var claimed []*listenerEntry
	for _, entry := range candidates {
		if entry.isCancelled() {
			continue
		}
		if entry.once {
			if !entry.claimOnce() {
				continue
			}
			claimed = append(claimed, entry)
		}
		b.dispatchOne(ctx, ev, entry)
	}

	for _, entry := range claimed {
		b.removeEntry(entry)
	}

	if b.metrics != nil {
		b.metrics.RecordPublished(ctx, ev.Topic, time.Since(start))
	}
	return nil
}

// NewInternalEvent builds an event with runtime origin and a monotonic
// sequence number.
func (b *Bus) NewInternalEvent(topic, eventType string, data interface{}) *Event {
	return &Event{
		Topic: topic,
		Type:  eventType,
		Data:  data,
		Meta: Meta{
			Origin:    OriginInternal,
			TimeFired: time.Now(),
			Seq:       atomic.AddUint64(&b.seqGen, 1),
		},
	}
}

// match snapshots the listeners whose pattern matches the event, sorted
// into dispatch order.
func (b *Bus) match(ev *Event) []*listenerEntry {
	keys := []string{ev.Topic}
	if entity := ev.EntityID(); entity != "" {
		keys = append(keys, entity, ev.Topic+"."+entity)
	}

	b.mu.RLock()
	var out []*listenerEntry
	for _, key := range keys {
		out = append(out, b.exact[key]...)
	}
	for _, entry := range b.globs {
		if entry.pat.matches(ev) {
			out = append(out, entry)
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (b *Bus) dispatchOne(ctx context.Context, ev *Event, entry *listenerEntry) {
	if !b.shouldFire(ctx, ev, entry) {
		return
	}
	if !entry.passGate(time.Now()) {
		entry.metrics.recordSuppressed()
		return
	}

	inv, err := entry.plan.Resolve(ev)
	if err != nil {
		// Argument resolution failed before the handler body: a distinct
		// outcome category from a handler error, it points at listener
		// configuration rather than a runtime condition.
		entry.metrics.record(track.Result{Outcome: track.OutcomeDIFailure, Err: err})
		if b.metrics != nil {
			b.metrics.RecordInvocation(ctx, ev.Topic, track.OutcomeDIFailure.String())
		}
		b.log.ErrorCtx(ctx, "argument binding failed",
			zap.String("owner", entry.owner),
			zap.String("handler", entry.plan.HandlerName()),
			zap.String("topic", ev.Topic),
			zap.Error(err))
		return
	}

	owner := entry.owner
	if owner == "" {
		owner = "default"
	}
	handle := b.sup.Bucket(owner).Register(ctx, entry.plan.HandlerName())
	topic := ev.Topic

	submitErr := b.pool.Submit(func() {
		res := track.Run(handle.Ctx(), b.log, handle.Name(), inv)
		entry.metrics.record(res)
		if b.metrics != nil {
			b.metrics.RecordInvocation(context.Background(), topic, res.Outcome.String())
		}
		if res.Outcome == track.OutcomeError {
			b.log.Error("listener handler failed",
				zap.String("owner", entry.owner),
				zap.String("handler", handle.Name()),
				zap.String("topic", topic),
				zap.Error(res.Err))
		}
		handle.Finish(res.Err)
	})
	if submitErr != nil {
		handle.Finish(submitErr)
		b.log.ErrorCtx(ctx, "failed to submit invocation to pool",
			zap.String("handler", entry.plan.HandlerName()),
			zap.Error(submitErr))
	}
}

// shouldFire evaluates the state-change shorthand filters and the
// listener's predicate. A panicking extractor or predicate counts as a
// non-match for this listener only, never as a dispatch failure.
func (b *Bus) shouldFire(ctx context.Context, ev *Event, entry *listenerEntry) (fire bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.DebugCtx(ctx, "predicate evaluation panicked, treating as non-match",
				zap.String("handler", entry.plan.HandlerName()),
				zap.Any("panic", r))
			fire = false
		}
	}()

	if sc := ev.StateChange(); sc != nil {
		oldVal, oldPresent := stateValue(sc.OldState)
		newVal, newPresent := stateValue(sc.NewState)

		if entry.changed {
			if oldPresent == newPresent && oldVal == newVal {
				return false
			}
		}
		if entry.changedTo != nil && !valueEquals(entry.changedTo, newVal, newPresent) {
			return false
		}
		if entry.changedFrom != nil && !valueEquals(entry.changedFrom, oldVal, oldPresent) {
			return false
		}
	}

	if entry.where != nil && !entry.where(ev) {
		return false
	}
	return true
}

func stateValue(s *state.State) (string, bool) {
	if s == nil {
		return "", false
	}
	return s.Value, true
}

func valueEquals(want interface{}, got string, present bool) bool {
	if !present {
		return false
	}
	if s, ok := want.(string); ok {
		return s == got
	}
	return fmt.Sprintf("%v", want) == got
}

func (b *Bus) removeEntry(entry *listenerEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.pat.wildcard {
		for i, e := range b.globs {
			if e.id == entry.id {
				b.globs = append(b.globs[:i], b.globs[i+1:]...)
				return
			}
		}
		return
	}
	entries := b.exact[entry.pat.raw]
	for i, e := range entries {
		if e.id == entry.id {
			b.exact[entry.pat.raw] = append(entries[:i], entries[i+1:]...)
			if len(b.exact[entry.pat.raw]) == 0 {
				delete(b.exact, entry.pat.raw)
			}
			return
		}
	}
}

// CancelOwner removes every listener registered by owner. Returns how
// many were removed.
func (b *Bus) CancelOwner(owner string) int {
	b.mu.Lock()
	var victims []*listenerEntry
	for key, entries := range b.exact {
		kept := entries[:0]
		for _, e := range entries {
			if e.owner == owner {
				victims = append(victims, e)
			} else {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(b.exact, key)
		} else {
			b.exact[key] = kept
		}
	}
	kept := b.globs[:0]
	for _, e := range b.globs {
		if e.owner == owner {
			victims = append(victims, e)
		} else {
			kept = append(kept, e)
		}
	}
	b.globs = kept
	b.mu.Unlock()

	for _, e := range victims {
		e.markCancelled()
	}
	return len(victims)
}

// ListenerCount reports how many listeners are registered for an exact
// pattern. Intended for tests.
func (b *Bus) ListenerCount(pattern string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.exact[pattern])
	for _, e := range b.globs {
		if e.pat.raw == pattern {
			n++
		}
	}
	return n
}

// Close stops accepting publishes and releases the worker pool. In-flight
// invocations are drained by the supervisor, not here.
func (b *Bus) Close() {
	atomic.StoreInt32(&b.closed, 1)
	if b.pool != nil {
		b.pool.Release()
	}
}
