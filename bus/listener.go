package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Predicate is a pure boolean pre-filter evaluated against an event
// before a listener's handler is considered. Implementations must be safe
// for concurrent use; the where package provides the usual constructors.
type Predicate func(*Event) bool

// ArgSpec overrides resolution of one handler parameter with an explicit
// extractor and optional converter, by parameter position.
type ArgSpec struct {
	Index   int
	Extract func(*Event) (interface{}, error)
	Convert func(interface{}) (interface{}, error)
}

// Invocation is a fully-bound handler call, ready to run.
type Invocation func(ctx context.Context) error

// HandlerPlan is the per-handler binding plan produced at subscribe time.
// Resolve binds arguments from one event; a non-nil error is a DI
// failure and means the handler body was never entered.
type HandlerPlan interface {
	Resolve(ev *Event) (Invocation, error)
	HandlerName() string
}

// Invoker builds handler plans. The inject package provides the
// reflection-based implementation; the bus only depends on this interface.
type Invoker interface {
	Plan(handler interface{}, specs []ArgSpec, bound []interface{}) (HandlerPlan, error)
}

// WindowMode selects how debounce windows are accounted.
type WindowMode int

const (
	// WindowSliding measures the quiet period from the last qualifying
	// event, fired or not.
	WindowSliding WindowMode = iota
	// WindowFixed measures from the last invocation that actually fired.
	WindowFixed
)

type listenerEntry struct {
	id          uint64
	seq         uint64 // registration order, breaks priority ties
	owner       string
	pat         pattern
	plan        HandlerPlan
	where       Predicate
	changedTo   interface{}
	changedFrom interface{}
	changed     bool // default true: require old != new for shorthand filters
	priority    int
	once        bool
	onceClaimed uint32
	cancelled   int32
	debounce    time.Duration
	throttle    time.Duration
	windowMode  WindowMode
	bound       []interface{}
	specs       []ArgSpec
	source      string

	gateMu   sync.Mutex
	lastSeen time.Time
	lastFire time.Time

	metrics *ListenerMetrics
}

// claimOnce atomically claims a once listener so at most one invocation
// is ever scheduled for it, even under concurrent publishes.
func (e *listenerEntry) claimOnce() bool {
	return atomic.CompareAndSwapUint32(&e.onceClaimed, 0, 1)
}

func (e *listenerEntry) isCancelled() bool {
	return atomic.LoadInt32(&e.cancelled) == 1
}

func (e *listenerEntry) markCancelled() {
	atomic.StoreInt32(&e.cancelled, 1)
}

// passGate applies debounce/throttle. Policy is drop, not queue:
// a suppressed event is simply discarded.
func (e *listenerEntry) passGate(now time.Time) bool {
	if e.debounce == 0 && e.throttle == 0 {
		return true
	}

	e.gateMu.Lock()
	defer e.gateMu.Unlock()

	pass := true
	if e.throttle > 0 && !e.lastFire.IsZero() && now.Sub(e.lastFire) < e.throttle {
		pass = false
	}
	if pass && e.debounce > 0 {
		switch e.windowMode {
		case WindowFixed:
			if !e.lastFire.IsZero() && now.Sub(e.lastFire) < e.debounce {
				pass = false
			}
		default: // sliding: require a quiet period since the previous event
			if !e.lastSeen.IsZero() && now.Sub(e.lastSeen) < e.debounce {
				pass = false
			}
		}
	}

	e.lastSeen = now
	if pass {
		e.lastFire = now
	}
	return pass
}

// SubscribeOption configures a listener at registration time.
type SubscribeOption func(*listenerEntry)

// WithOwner tags the listener with an owning app identifier, enabling
// bulk teardown and per-owner introspection.
func WithOwner(owner string) SubscribeOption {
	return func(e *listenerEntry) { e.owner = owner }
}

// WithPriority sets dispatch priority. Higher values are dispatched
// first; ties run in registration order. Default 0.
func WithPriority(priority int) SubscribeOption {
	return func(e *listenerEntry) { e.priority = priority }
}

// WithOnce removes the listener after its first matched invocation.
func WithOnce() SubscribeOption {
	return func(e *listenerEntry) { e.once = true }
}

// WithWhere attaches a predicate pre-filter.
func WithWhere(p Predicate) SubscribeOption {
	return func(e *listenerEntry) { e.where = p }
}

// WithChangedTo requires the new state value to equal v. Combined with
// the default changed=true it also requires old != new.
func WithChangedTo(v interface{}) SubscribeOption {
	return func(e *listenerEntry) { e.changedTo = v }
}

// WithChangedFrom requires the old state value to equal v.
func WithChangedFrom(v interface{}) SubscribeOption {
	return func(e *listenerEntry) { e.changedFrom = v }
}

// WithChanged(false) disables the old != new requirement so the listener
// also fires on attribute-only updates and same-value refires.
func WithChanged(changed bool) SubscribeOption {
	return func(e *listenerEntry) { e.changed = changed }
}

// WithDebounce suppresses invocations until the configured quiet window
// has elapsed (accounting per WithWindowMode). Suppressed events are
// dropped, not queued.
func WithDebounce(d time.Duration) SubscribeOption {
	return func(e *listenerEntry) { e.debounce = d }
}

// WithThrottle allows at most one invocation per window; later
// qualifying events inside the window are dropped.
func WithThrottle(d time.Duration) SubscribeOption {
	return func(e *listenerEntry) { e.throttle = d }
}

// WithWindowMode selects sliding or fixed debounce accounting.
func WithWindowMode(m WindowMode) SubscribeOption {
	return func(e *listenerEntry) { e.windowMode = m }
}

// WithBoundArgs supplies literal values that satisfy handler parameters
// by assignable type, without event extraction.
func WithBoundArgs(args ...interface{}) SubscribeOption {
	return func(e *listenerEntry) { e.bound = append(e.bound, args...) }
}

// WithArgSpec overrides resolution of one positional parameter with an
// explicit extractor/converter pair.
func WithArgSpec(spec ArgSpec) SubscribeOption {
	return func(e *listenerEntry) { e.specs = append(e.specs, spec) }
}
