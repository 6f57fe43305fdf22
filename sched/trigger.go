// Package sched implements the time-based side of the runtime: interval,
// cron and one-shot triggers with skip-missed-ticks catch-up, a heap-
// ordered run loop, and per-job execution history.
package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openhaus/automate/errcode"
)

// Trigger computes run times. Next returns the first run time strictly
// after now; ok=false means the trigger has no further runs.
type Trigger interface {
	Next(now time.Time) (next time.Time, ok bool)
	Kind() string
	Describe() string
	Repeats() bool
}

// IntervalTrigger fires every Every, anchored at Start. When the process
// slept past one or more boundaries the next fire is the next boundary
// strictly after now; missed ticks are skipped, never replayed.
type IntervalTrigger struct {
	Start time.Time
	Every time.Duration
}

// NewInterval validates and builds an interval trigger. A zero start is
// anchored at the current time.
func NewInterval(start time.Time, every time.Duration) (*IntervalTrigger, error) {
	if every <= 0 {
		return nil, errcode.ErrBadInterval.WithMsgf("interval %v must be positive", every)
	}
	if start.IsZero() {
		start = time.Now()
	}
	return &IntervalTrigger{Start: start, Every: every}, nil
}

// Next returns start + ceil((now-start)/every)*every, bumped to the
// following boundary when now sits exactly on one.
func (t *IntervalTrigger) Next(now time.Time) (time.Time, bool) {
	if now.Before(t.Start) {
		return t.Start, true
	}
	elapsed := now.Sub(t.Start)
	n := elapsed/t.Every + 1
	return t.Start.Add(n * t.Every), true
}

func (t *IntervalTrigger) Kind() string     { return "interval" }
func (t *IntervalTrigger) Describe() string { return t.Every.String() }
func (t *IntervalTrigger) Repeats() bool    { return true }

// CronTrigger fires on a cron schedule (five fields, optional leading
// seconds field). Same skip-missed-ticks policy as intervals.
type CronTrigger struct {
	expr     string
	schedule cron.Schedule
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewCron parses and validates the expression. The parse error names the
// offending field and is returned as a configuration error.
func NewCron(expr string) (*CronTrigger, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errcode.ErrBadCronExpr.Wrapf(err, "invalid cron expression %q", expr)
	}
	return &CronTrigger{expr: expr, schedule: schedule}, nil
}

func (t *CronTrigger) Next(now time.Time) (time.Time, bool) {
	next := t.schedule.Next(now)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (t *CronTrigger) Kind() string     { return "cron" }
func (t *CronTrigger) Describe() string { return t.expr }
func (t *CronTrigger) Repeats() bool    { return true }

// OneShotTrigger fires exactly once at At.
type OneShotTrigger struct {
	At time.Time
}

// NewOneShot builds a one-shot trigger.
func NewOneShot(at time.Time) *OneShotTrigger {
	return &OneShotTrigger{At: at}
}

func (t *OneShotTrigger) Next(time.Time) (time.Time, bool) { return t.At, true }
func (t *OneShotTrigger) Kind() string                     { return "once" }
func (t *OneShotTrigger) Describe() string {
	return fmt.Sprintf("at %s", t.At.Format(time.RFC3339))
}
func (t *OneShotTrigger) Repeats() bool { return false }
