package sched

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/openhaus/automate/errcode"
	"github.com/openhaus/automate/logger"
	"github.com/openhaus/automate/track"
)

// jobHeap orders queued jobs by nextRun.
type jobHeap []*Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].nextRun.Before(h[j].nextRun) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *jobHeap) Push(x interface{}) { j := x.(*Job); j.index = len(*h); *h = append(*h, j) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// Scheduler runs jobs at trigger-computed times. One loop goroutine
// sleeps until the earliest nextRun, wakes early when a job is added or
// cancelled, and fires every due job in a single pass.
type Scheduler struct {
	mu     sync.Mutex
	queue  jobHeap
	jobs   map[uint64]*Job
	nextID uint64

	wake        chan struct{}
	sup         *track.Supervisor
	log         *logger.CtxZapLogger
	historySize int
	stopped     int32
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHistorySize sets the per-job execution history window.
func WithHistorySize(n int) Option {
	return func(s *Scheduler) { s.historySize = n }
}

// WithLogger overrides the default module logger.
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a Scheduler supervised by sup.
func New(sup *track.Supervisor, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:        make(map[uint64]*Job),
		wake:        make(chan struct{}, 1),
		sup:         sup,
		log:         logger.GetLogger("sched"),
		historySize: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sup == nil {
		s.sup = track.NewSupervisor(s.log)
	}
	return s
}

// JobOption configures one job at registration.
type JobOption func(*Job)

// WithTimeout bounds each firing with a context deadline.
func WithTimeout(d time.Duration) JobOption {
	return func(j *Job) { j.timeout = d }
}

type jobParams struct {
	Owner string
	Name  string
}

func (p jobParams) validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Owner, validation.Required),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 128)),
	)
	if err != nil {
		return errcode.ErrBadJobOptions.Wrap(err)
	}
	return nil
}

// Every schedules fn to run every interval, the first run one full
// interval from now.
func (s *Scheduler) Every(owner, name string, every time.Duration, fn JobFunc, args []interface{}, opts ...JobOption) (*Job, error) {
	trigger, err := NewInterval(time.Now(), every)
	if err != nil {
		return nil, err
	}
	return s.schedule(owner, name, trigger, fn, args, opts...)
}

// Cron schedules fn on a cron expression. Invalid expressions are
// rejected here and nothing is scheduled.
func (s *Scheduler) Cron(owner, name, expr string, fn JobFunc, args []interface{}, opts ...JobOption) (*Job, error) {
	trigger, err := NewCron(expr)
	if err != nil {
		return nil, err
	}
	return s.schedule(owner, name, trigger, fn, args, opts...)
}

// RunIn schedules fn to run once, delay from now.
func (s *Scheduler) RunIn(owner, name string, delay time.Duration, fn JobFunc, args []interface{}, opts ...JobOption) (*Job, error) {
	return s.RunAt(owner, name, time.Now().Add(delay), fn, args, opts...)
}

// RunAt schedules fn to run once at a point in time.
func (s *Scheduler) RunAt(owner, name string, at time.Time, fn JobFunc, args []interface{}, opts ...JobOption) (*Job, error) {
	return s.schedule(owner, name, NewOneShot(at), fn, args, opts...)
}

// Schedule registers fn with a caller-built trigger.
func (s *Scheduler) Schedule(owner, name string, trigger Trigger, fn JobFunc, args []interface{}, opts ...JobOption) (*Job, error) {
	return s.schedule(owner, name, trigger, fn, args, opts...)
}

func (s *Scheduler) schedule(owner, name string, trigger Trigger, fn JobFunc, args []interface{}, opts ...JobOption) (*Job, error) {
	if atomic.LoadInt32(&s.stopped) == 1 {
		return nil, errcode.ErrSchedClosed
	}
	if err := (jobParams{Owner: owner, Name: name}).validate(); err != nil {
		return nil, err
	}

	job := &Job{
		name:    name,
		owner:   owner,
		trigger: trigger,
		fn:      fn,
		args:    copyArgs(args),
		repeat:  trigger.Repeats(),
		history: newHistoryRing(s.historySize),
		index:   -1,
	}
	for _, opt := range opts {
		opt(job)
	}

	next, ok := trigger.Next(time.Now())
	if !ok {
		return nil, errcode.ErrBadJobOptions.WithMsgf(
			"trigger %s yields no run time", trigger.Describe())
	}
	job.nextRun = next

	s.mu.Lock()
	job.id = atomic.AddUint64(&s.nextID, 1)
	s.jobs[job.id] = job
	heap.Push(&s.queue, job)
	s.mu.Unlock()

	s.kick()
	return job, nil
}

// CancelJob cancels one job. Returns false if the id is unknown (already
// finished or never existed).
func (s *Scheduler) CancelJob(id uint64) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		job.markCancelled()
		delete(s.jobs, id)
		if job.index >= 0 {
			heap.Remove(&s.queue, job.index)
		}
	}
	s.mu.Unlock()
	if ok {
		s.kick()
	}
	return ok
}

// CancelOwner cancels every job owned by owner. Returns how many.
func (s *Scheduler) CancelOwner(owner string) int {
	s.mu.Lock()
	var victims []*Job
	for _, job := range s.jobs {
		if job.owner == owner {
			victims = append(victims, job)
		}
	}
	for _, job := range victims {
		job.markCancelled()
		delete(s.jobs, job.id)
		if job.index >= 0 {
			heap.Remove(&s.queue, job.index)
		}
	}
	s.mu.Unlock()
	if len(victims) > 0 {
		s.kick()
	}
	return len(victims)
}

// Run drives the scheduler until ctx is cancelled. It never returns an
// error from a job: firings are isolated the same way bus invocations
// are.
func (s *Scheduler) Run(ctx context.Context) error {
	defer atomic.StoreInt32(&s.stopped, 1)

	for {
		s.mu.Lock()
		var wait time.Duration
		hasJob := s.queue.Len() > 0
		if hasJob {
			wait = time.Until(s.queue[0].nextRun)
		}
		s.mu.Unlock()

		if !hasJob {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-s.wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		s.firePass(ctx, time.Now())
	}
}

// firePass fires every job due at now in one sweep, rescheduling
// repeating jobs via their trigger.
func (s *Scheduler) firePass(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*Job
	for s.queue.Len() > 0 && !s.queue[0].nextRun.After(now) {
		due = append(due, heap.Pop(&s.queue).(*Job))
	}
	for _, job := range due {
		if job.Cancelled() {
			continue
		}
		if job.repeat {
			if next, ok := job.trigger.Next(now); ok {
				job.nextRun = next
				heap.Push(&s.queue, job)
				continue
			}
		}
		// One-shot or exhausted: this firing is its last.
		delete(s.jobs, job.id)
	}
	s.mu.Unlock()

	for _, job := range due {
		if job.Cancelled() {
			continue
		}
		s.fire(ctx, job)
	}
}

func (s *Scheduler) fire(ctx context.Context, job *Job) {
	handle := s.sup.Bucket(job.owner).Register(ctx, job.name)
	go func() {
		runCtx := handle.Ctx()
		var cancel context.CancelFunc
		if job.timeout > 0 {
			runCtx, cancel = context.WithTimeout(runCtx, job.timeout)
			defer cancel()
		}

		res := track.Run(runCtx, s.log, job.name, func(ctx context.Context) error {
			return job.fn(ctx, job.args)
		})

		exec := Execution{At: time.Now(), Duration: res.Duration, Outcome: res.Outcome}
		if res.Err != nil {
			exec.Error = res.Err.Error()
		}
		job.history.add(exec)

		if res.Outcome == track.OutcomeError {
			s.log.Error("scheduled job failed",
				zap.String("owner", job.owner),
				zap.String("job", job.name),
				zap.Error(res.Err))
		}
		handle.Finish(res.Err)
	}()
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// JobInfo is the read-only job view for dashboards and tests.
type JobInfo struct {
	ID          uint64
	Name        string
	Owner       string
	NextRun     time.Time
	Repeat      bool
	Cancelled   bool
	TriggerKind string
	TriggerDesc string
	History     []Execution
}

// Jobs lists scheduled jobs, optionally filtered by owner (empty = all),
// ordered by id.
func (s *Scheduler) Jobs(owner string) []JobInfo {
	s.mu.Lock()
	var out []JobInfo
	for _, job := range s.jobs {
		if owner != "" && job.owner != owner {
			continue
		}
		out = append(out, JobInfo{
			ID:          job.id,
			Name:        job.name,
			Owner:       job.owner,
			NextRun:     job.nextRun,
			Repeat:      job.repeat,
			Cancelled:   job.Cancelled(),
			TriggerKind: job.trigger.Kind(),
			TriggerDesc: job.trigger.Describe(),
			History:     job.history.snapshot(),
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
