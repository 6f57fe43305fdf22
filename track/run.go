package track

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/openhaus/automate/logger"
)

// Run executes fn as one tracked unit: it times the call, recovers panics
// into an error outcome (with stack logged), and classifies cancellation.
// Cancellation is reported, never swallowed: the result carries the
// context error so supervisors can observe shutdown.
func Run(ctx context.Context, log *logger.CtxZapLogger, name string, fn func(ctx context.Context) error) Result {
	if log == nil {
		log = logger.Nop()
	}

	start := time.Now()
	err := runRecovered(ctx, log, name, fn)
	res := Result{Duration: time.Since(start), Err: err}

	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		res.Outcome = OutcomeCancelled
	default:
		res.Outcome = OutcomeError
	}
	return res
}

func runRecovered(ctx context.Context, log *logger.CtxZapLogger, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorCtx(ctx, "tracked unit panicked",
				zap.String("name", name),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// A unit whose context is already cancelled never starts.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fn(ctx)
}
