package runtime

import (
	"context"
	"errors"

	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"

	"github.com/openhaus/automate/bus"
	"github.com/openhaus/automate/convert"
	"github.com/openhaus/automate/inject"
	"github.com/openhaus/automate/logger"
	"github.com/openhaus/automate/sched"
	"github.com/openhaus/automate/state"
	"github.com/openhaus/automate/track"
)

// Runtime owns the core services for one process.
type Runtime struct {
	cfg      Config
	injector do.Injector
	log      *logger.CtxZapLogger

	Table      *convert.Table
	States     *state.Registry
	Supervisor *track.Supervisor
	Bus        *bus.Bus
	Scheduler  *sched.Scheduler
	Metrics    *bus.BusMetrics
}

// New builds the service graph. Every service is an explicitly
// constructed singleton owned by the injector; nothing is reached
// through ambient globals.
func New(cfg Config) (*Runtime, error) {
	cfg.ApplyDefaults()
	logger.InitManager(cfg.Logger)
	log := logger.GetLogger("runtime")

	injector := do.New()

	do.Provide(injector, func(do.Injector) (*convert.Table, error) {
		return convert.NewTable(), nil
	})
	do.Provide(injector, func(i do.Injector) (*state.Registry, error) {
		return state.NewRegistry(do.MustInvoke[*convert.Table](i)), nil
	})
	do.Provide(injector, func(do.Injector) (*track.Supervisor, error) {
		return track.NewSupervisor(logger.GetLogger("track")), nil
	})
	do.Provide(injector, func(i do.Injector) (*inject.Resolver, error) {
		return inject.NewResolver(
			do.MustInvoke[*convert.Table](i),
			do.MustInvoke[*state.Registry](i),
		), nil
	})
	do.Provide(injector, func(do.Injector) (*bus.BusMetrics, error) {
		return bus.NewBusMetrics(bus.BusMetricsConfig{Enabled: cfg.Bus.MetricsEnabled}), nil
	})
	do.Provide(injector, func(i do.Injector) (*bus.Bus, error) {
		return bus.New(
			do.MustInvoke[*inject.Resolver](i),
			do.MustInvoke[*track.Supervisor](i),
			bus.WithPoolSize(cfg.Bus.PoolSize),
			bus.WithBusMetrics(do.MustInvoke[*bus.BusMetrics](i)),
		)
	})
	do.Provide(injector, func(i do.Injector) (*sched.Scheduler, error) {
		return sched.New(
			do.MustInvoke[*track.Supervisor](i),
			sched.WithHistorySize(cfg.Sched.HistorySize),
		), nil
	})

	b, err := do.Invoke[*bus.Bus](injector)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		cfg:        cfg,
		injector:   injector,
		log:        log,
		Table:      do.MustInvoke[*convert.Table](injector),
		States:     do.MustInvoke[*state.Registry](injector),
		Supervisor: do.MustInvoke[*track.Supervisor](injector),
		Bus:        b,
		Scheduler:  do.MustInvoke[*sched.Scheduler](injector),
		Metrics:    do.MustInvoke[*bus.BusMetrics](injector),
	}, nil
}

// Run drives the scheduler loop until ctx is cancelled, then drains
// in-flight work within the configured shutdown timeout.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Scheduler.Run(ctx)
	})

	err := g.Wait()
	r.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runtime) shutdown() {
	stragglers := r.Supervisor.CancelAll(r.cfg.ShutdownTimeout)
	if stragglers > 0 {
		r.log.Warn("shutdown drain left stragglers running")
	}
	r.Bus.Close()
}

// TeardownOwner removes everything an app owns: its listeners, its jobs
// and its in-flight work. Used for app reload.
func (r *Runtime) TeardownOwner(owner string) {
	r.Bus.CancelOwner(owner)
	r.Scheduler.CancelOwner(owner)
	r.Supervisor.CancelOwner(owner, r.cfg.ShutdownTimeout)
}
