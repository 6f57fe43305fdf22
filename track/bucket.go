package track

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openhaus/automate/logger"
)

// Handle is one in-flight unit of work registered with a Bucket. The unit
// observes cancellation through Ctx and must call Finish exactly once.
type Handle struct {
	id     uint64
	name   string
	owner  string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	bucket *Bucket
}

// Ctx is the context the unit should run under.
func (h *Handle) Ctx() context.Context { return h.ctx }

// Name returns the unit's diagnostic name.
func (h *Handle) Name() string { return h.name }

// Finish marks the unit complete and deregisters it from its bucket.
// Completion-time deregistration is what bounds the bucket's memory under
// sustained load: finished units leave no trace. A non-cancellation error
// is logged at error level here so a crash is never silent even when the
// spawner forgot to check the result.
func (h *Handle) Finish(err error) {
	h.bucket.remove(h.id)
	h.cancel()
	close(h.done)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		h.bucket.log.Error("tracked unit failed",
			zap.String("owner", h.owner),
			zap.String("name", h.name),
			zap.Error(err))
	}
}

// Bucket tracks the in-flight units spawned by one owner.
type Bucket struct {
	owner  string
	log    *logger.CtxZapLogger
	mu     sync.Mutex
	units  map[uint64]*Handle
	nextID uint64
}

// NewBucket creates an empty bucket for an owner.
func NewBucket(owner string, log *logger.CtxZapLogger) *Bucket {
	if log == nil {
		log = logger.Nop()
	}
	return &Bucket{owner: owner, log: log, units: make(map[uint64]*Handle)}
}

// Register creates a cancellable handle derived from parent and tracks it.
// The caller runs the unit (typically on a worker pool) and must call
// Finish when it completes.
func (b *Bucket) Register(parent context.Context, name string) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		id:     atomic.AddUint64(&b.nextID, 1),
		name:   name,
		owner:  b.owner,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		bucket: b,
	}
	b.mu.Lock()
	b.units[h.id] = h
	b.mu.Unlock()
	return h
}

// Len reports the number of units still in flight.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.units)
}

// CancelAll signals cancellation to every tracked unit except self (pass
// nil when the caller is not itself tracked), then waits up to timeout for
// cooperative completion. Units still running after the timeout already
// received the cancellation signal; they are logged as warnings and left
// to finish on their own - this is a best-effort drain, not a hard kill.
// Returns the number of stragglers.
func (b *Bucket) CancelAll(timeout time.Duration, self *Handle) int {
	b.mu.Lock()
	pending := make([]*Handle, 0, len(b.units))
	for _, h := range b.units {
		if self != nil && h.id == self.id {
			continue
		}
		pending = append(pending, h)
	}
	b.mu.Unlock()

	for _, h := range pending {
		h.cancel()
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	stragglers := 0
	for _, h := range pending {
		select {
		case <-h.done:
		case <-deadline.C:
			// Timer fired; everything not yet done is a straggler.
			stragglers += b.countNotDone(pending)
			b.logStragglers(pending)
			return stragglers
		}
	}
	return 0
}

func (b *Bucket) countNotDone(pending []*Handle) int {
	n := 0
	for _, h := range pending {
		select {
		case <-h.done:
		default:
			n++
		}
	}
	return n
}

func (b *Bucket) logStragglers(pending []*Handle) {
	for _, h := range pending {
		select {
		case <-h.done:
		default:
			b.log.Warn("tracked unit refused to die within grace period",
				zap.String("owner", h.owner),
				zap.String("name", h.name))
		}
	}
}

func (b *Bucket) remove(id uint64) {
	b.mu.Lock()
	delete(b.units, id)
	b.mu.Unlock()
}

// Supervisor owns one bucket per owner. Both the bus and the scheduler
// spawn through it so process shutdown can drain everything in one place.
type Supervisor struct {
	log     *logger.CtxZapLogger
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(log *logger.CtxZapLogger) *Supervisor {
	if log == nil {
		log = logger.Nop()
	}
	return &Supervisor{log: log, buckets: make(map[string]*Bucket)}
}

// Bucket returns (creating on first use) the bucket for an owner.
func (s *Supervisor) Bucket(owner string) *Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[owner]
	if !ok {
		b = NewBucket(owner, s.log)
		s.buckets[owner] = b
	}
	return b
}

// CancelOwner drains one owner's bucket. Returns straggler count.
func (s *Supervisor) CancelOwner(owner string, timeout time.Duration) int {
	s.mu.Lock()
	b, ok := s.buckets[owner]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return b.CancelAll(timeout, nil)
}

// CancelAll drains every bucket, sharing one grace period across owners.
func (s *Supervisor) CancelAll(timeout time.Duration) int {
	s.mu.Lock()
	buckets := make([]*Bucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		buckets = append(buckets, b)
	}
	s.mu.Unlock()

	stragglers := 0
	deadline := time.Now().Add(timeout)
	for _, b := range buckets {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		stragglers += b.CancelAll(remaining, nil)
	}
	return stragglers
}
