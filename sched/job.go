package sched

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openhaus/automate/track"
)

// JobFunc is the work a job runs. args is the defensively-copied slice
// frozen at registration.
type JobFunc func(ctx context.Context, args []interface{}) error

// Job is one scheduled unit. nextRun is owned by the run loop; external
// readers go through Jobs().
type Job struct {
	id        uint64
	name      string
	owner     string
	trigger   Trigger
	fn        JobFunc
	args      []interface{}
	nextRun   time.Time
	repeat    bool
	timeout   time.Duration
	cancelled int32
	history   *historyRing
	index     int // heap position, -1 when not queued
}

// ID returns the job's unique id.
func (j *Job) ID() uint64 { return j.id }

// Cancelled reports whether the job was cancelled. A cancelled job never
// fires again; an in-progress fire completes.
func (j *Job) Cancelled() bool { return atomic.LoadInt32(&j.cancelled) == 1 }

func (j *Job) markCancelled() { atomic.StoreInt32(&j.cancelled, 1) }

// copyArgs deep-copies the argument slice so post-registration mutation
// of the caller's collections cannot reach the job.
func copyArgs(args []interface{}) []interface{} {
	if args == nil {
		return nil
	}
	out := make([]interface{}, len(args))
	for i, a := range args {
		out[i] = deepCopyValue(a)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = deepCopyValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Map:
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	}
	return v
}

// Execution is one entry of a job's bounded history window.
type Execution struct {
	At       time.Time
	Duration time.Duration
	Outcome  track.Outcome
	Error    string
}

// historyRing keeps the most recent executions, oldest evicted first.
type historyRing struct {
	mu      sync.Mutex
	entries []Execution
	next    int
	filled  bool
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = 16
	}
	return &historyRing{entries: make([]Execution, size)}
}

func (h *historyRing) add(e Execution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = e
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.filled = true
	}
}

// snapshot returns entries oldest first.
func (h *historyRing) snapshot() []Execution {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.filled {
		out := make([]Execution, h.next)
		copy(out, h.entries[:h.next])
		return out
	}
	out := make([]Execution, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}
