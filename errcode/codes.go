package errcode

// Subsystem codes. Registration-time (configuration) errors returned to
// callers of Subscribe/schedule APIs all come from this table so they can
// be matched with errors.Is.
const (
	SubsystemBus     = 10
	SubsystemWhere   = 11
	SubsystemInject  = 12
	SubsystemConvert = 13
	SubsystemSched   = 14
	SubsystemTrack   = 15
)

var (
	// bus
	ErrBadPattern      = Register(New(SubsystemBus, 1, "bus", "malformed topic pattern"))
	ErrNilHandler      = Register(New(SubsystemBus, 2, "bus", "handler must not be nil"))
	ErrBusClosed       = Register(New(SubsystemBus, 3, "bus", "bus is closed"))
	ErrBadListenerOpts = Register(New(SubsystemBus, 4, "bus", "invalid listener options"))

	// inject
	ErrUnresolvableParam = Register(New(SubsystemInject, 1, "inject", "handler parameter cannot be resolved"))
	ErrNotAFunc          = Register(New(SubsystemInject, 2, "inject", "handler is not a function"))
	ErrValueMissing      = Register(New(SubsystemInject, 3, "inject", "required value missing from event"))
	ErrUnionUnmatched    = Register(New(SubsystemInject, 4, "inject", "no typed model registered for domain"))

	// convert
	ErrNoConverter    = Register(New(SubsystemConvert, 1, "convert", "no converter for type pair"))
	ErrConvertFailed  = Register(New(SubsystemConvert, 2, "convert", "value conversion failed"))
	ErrConvertBadType = Register(New(SubsystemConvert, 3, "convert", "unexpected source type"))

	// sched
	ErrBadCronExpr   = Register(New(SubsystemSched, 1, "sched", "invalid cron expression"))
	ErrBadInterval   = Register(New(SubsystemSched, 2, "sched", "interval must be positive"))
	ErrSchedClosed   = Register(New(SubsystemSched, 3, "sched", "scheduler is stopped"))
	ErrBadJobOptions = Register(New(SubsystemSched, 4, "sched", "invalid job options"))
)
