package inject

import (
	"context"
	"reflect"
	"runtime"
	"strings"

	"github.com/openhaus/automate/bus"
	"github.com/openhaus/automate/convert"
	"github.com/openhaus/automate/errcode"
	"github.com/openhaus/automate/state"
)

var (
	ctxType         = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType         = reflect.TypeOf((*error)(nil)).Elem()
	eventType       = reflect.TypeOf((*bus.Event)(nil))
	metaType        = reflect.TypeOf(bus.Meta{})
	eventCtxType    = reflect.TypeOf(bus.Context{})
	stateChangeType = reflect.TypeOf((*bus.StateChange)(nil))
	serviceCallType = reflect.TypeOf((*bus.ServiceCall)(nil))
	stateType       = reflect.TypeOf((*state.State)(nil))
	oldStateType    = reflect.TypeOf(OldState(nil))
	entityIDType    = reflect.TypeOf(EntityID(""))
	typedType       = reflect.TypeOf((*state.Typed)(nil)).Elem()
)

// Resolver builds handler binding plans. It implements bus.Invoker.
type Resolver struct {
	table  *convert.Table
	states *state.Registry
}

// NewResolver creates a Resolver over the conversion table and the typed
// state registry.
func NewResolver(table *convert.Table, states *state.Registry) *Resolver {
	return &Resolver{table: table, states: states}
}

type binding func(ev *bus.Event) (reflect.Value, error)

type plan struct {
	name     string
	fn       reflect.Value
	takesCtx bool
	hasErr   bool
	bindings []binding
}

// Plan inspects the handler signature and produces an immutable binding
// plan. Resolution order per parameter: explicit ArgSpec override, then
// built-in marker types, then a bound argument of assignable type, then
// a registration error naming the handler and parameter.
func (r *Resolver) Plan(handler interface{}, specs []bus.ArgSpec, bound []interface{}) (bus.HandlerPlan, error) {
	fn := reflect.ValueOf(handler)
	t := fn.Type()
	if t.Kind() != reflect.Func {
		return nil, errcode.ErrNotAFunc.WithMsgf("handler must be a func, got %T", handler)
	}
	name := handlerName(fn)

	p := &plan{name: name, fn: fn}

	switch t.NumOut() {
	case 0:
	case 1:
		if !t.Out(0).Implements(errType) {
			return nil, errcode.ErrNotAFunc.WithMsgf(
				"handler %s: return value must be error, got %s", name, t.Out(0))
		}
		p.hasErr = true
	default:
		return nil, errcode.ErrNotAFunc.WithMsgf(
			"handler %s: at most one return value allowed", name)
	}

	overrides := make(map[int]bus.ArgSpec, len(specs))
	for _, s := range specs {
		overrides[s.Index] = s
	}

	start := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		p.takesCtx = true
		start = 1
	}

	boundUsed := make([]bool, len(bound))
	for i := start; i < t.NumIn(); i++ {
		paramType := t.In(i)
		paramIdx := i - start

		if spec, ok := overrides[paramIdx]; ok {
			p.bindings = append(p.bindings, r.specBinding(spec, paramType))
			continue
		}
		if b, ok := r.builtinBinding(paramType); ok {
			p.bindings = append(p.bindings, b)
			continue
		}
		if b, ok := boundBinding(paramType, bound, boundUsed); ok {
			p.bindings = append(p.bindings, b)
			continue
		}
		return nil, errcode.ErrUnresolvableParam.WithMsgf(
			"handler %s: parameter %d (%s) has no extractor, no bound argument matches and no override was given",
			name, paramIdx, paramType)
	}

	return p, nil
}

func (r *Resolver) specBinding(spec bus.ArgSpec, paramType reflect.Type) binding {
	return func(ev *bus.Event) (reflect.Value, error) {
		raw, err := spec.Extract(ev)
		if err != nil {
			return reflect.Value{}, errcode.ErrValueMissing.Wrapf(err,
				"explicit extractor for %s failed", paramType)
		}
		if spec.Convert != nil {
			raw, err = spec.Convert(raw)
			if err != nil {
				return reflect.Value{}, err
			}
		}
		if raw == nil {
			return reflect.Zero(paramType), nil
		}
		if reflect.TypeOf(raw).AssignableTo(paramType) {
			return reflect.ValueOf(raw), nil
		}
		out, err := r.table.Convert(raw, paramType)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(out), nil
	}
}

func (r *Resolver) builtinBinding(paramType reflect.Type) (binding, bool) {
	switch paramType {
	case eventType:
		return func(ev *bus.Event) (reflect.Value, error) {
			return reflect.ValueOf(ev), nil
		}, true
	case metaType:
		return func(ev *bus.Event) (reflect.Value, error) {
			return reflect.ValueOf(ev.Meta), nil
		}, true
	case eventCtxType:
		return func(ev *bus.Event) (reflect.Value, error) {
			return reflect.ValueOf(ev.Meta.Context), nil
		}, true
	case stateChangeType:
		return func(ev *bus.Event) (reflect.Value, error) {
			sc := ev.StateChange()
			if sc == nil {
				return reflect.Value{}, errcode.ErrValueMissing.WithMsgf(
					"event %s carries no state-change data", ev.Topic)
			}
			return reflect.ValueOf(sc), nil
		}, true
	case serviceCallType:
		return func(ev *bus.Event) (reflect.Value, error) {
			sc := ev.ServiceCall()
			if sc == nil {
				return reflect.Value{}, errcode.ErrValueMissing.WithMsgf(
					"event %s carries no service-call data", ev.Topic)
			}
			return reflect.ValueOf(sc), nil
		}, true
	case entityIDType:
		return func(ev *bus.Event) (reflect.Value, error) {
			id := ev.EntityID()
			if id == "" {
				return reflect.Value{}, errcode.ErrValueMissing.WithMsgf(
					"event %s has no entity id", ev.Topic)
			}
			return reflect.ValueOf(EntityID(id)), nil
		}, true
	case stateType:
		// New state. Absence (entity removed) resolves to a nil pointer,
		// not an error: the pointer type is the optional form.
		return func(ev *bus.Event) (reflect.Value, error) {
			sc := ev.StateChange()
			if sc == nil {
				return reflect.Value{}, errcode.ErrValueMissing.WithMsgf(
					"event %s carries no state-change data", ev.Topic)
			}
			if sc.NewState == nil {
				return reflect.Zero(stateType), nil
			}
			return reflect.ValueOf(sc.NewState), nil
		}, true
	case oldStateType:
		return func(ev *bus.Event) (reflect.Value, error) {
			sc := ev.StateChange()
			if sc == nil {
				return reflect.Value{}, errcode.ErrValueMissing.WithMsgf(
					"event %s carries no state-change data", ev.Topic)
			}
			if sc.OldState == nil {
				return reflect.Zero(oldStateType), nil
			}
			return reflect.ValueOf(OldState(sc.OldState)), nil
		}, true
	}

	if paramType == typedType {
		return r.typedBinding(paramType, ""), true
	}
	if domain, ok := r.states.DomainFor(paramType); ok {
		return r.typedBinding(paramType, domain), true
	}
	return nil, false
}

// typedBinding resolves the union-typed new state through the domain
// registry. wantDomain pins the binding to one concrete model; empty
// means any registered model (the state.Typed interface parameter).
func (r *Resolver) typedBinding(paramType reflect.Type, wantDomain string) binding {
	return func(ev *bus.Event) (reflect.Value, error) {
		sc := ev.StateChange()
		if sc == nil || sc.NewState == nil {
			return reflect.Value{}, errcode.ErrValueMissing.WithMsgf(
				"event %s has no new state to build %s from", ev.Topic, paramType)
		}
		if wantDomain != "" && sc.NewState.Domain != wantDomain {
			return reflect.Value{}, errcode.ErrUnionUnmatched.WithMsgf(
				"entity %s has domain %q, parameter %s requires %q",
				sc.NewState.EntityID, sc.NewState.Domain, paramType, wantDomain)
		}
		typed, err := r.states.Resolve(sc.NewState)
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.ValueOf(typed)
		if !v.Type().AssignableTo(paramType) {
			return reflect.Value{}, errcode.ErrUnionUnmatched.WithMsgf(
				"registry produced %s for domain %q, parameter wants %s",
				v.Type(), sc.NewState.Domain, paramType)
		}
		return v, nil
	}
}

func boundBinding(paramType reflect.Type, bound []interface{}, used []bool) (binding, bool) {
	for i, v := range bound {
		if used[i] || v == nil {
			continue
		}
		if reflect.TypeOf(v).AssignableTo(paramType) {
			used[i] = true
			val := reflect.ValueOf(v)
			return func(*bus.Event) (reflect.Value, error) {
				return val, nil
			}, true
		}
	}
	return nil, false
}

// Resolve executes the plan against one event. Any error here is a DI
// failure: the handler body is never entered.
func (p *plan) Resolve(ev *bus.Event) (bus.Invocation, error) {
	args := make([]reflect.Value, 0, len(p.bindings)+1)
	if p.takesCtx {
		// Placeholder; the real context is injected at call time.
		args = append(args, reflect.Value{})
	}
	for _, bind := range p.bindings {
		v, err := bind(ev)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	return func(ctx context.Context) error {
		if p.takesCtx {
			args[0] = reflect.ValueOf(ctx)
		}
		out := p.fn.Call(args)
		if p.hasErr && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}, nil
}

// HandlerName returns a short display name for diagnostics.
func (p *plan) HandlerName() string { return p.name }

func handlerName(fn reflect.Value) string {
	full := runtime.FuncForPC(fn.Pointer()).Name()
	if full == "" {
		return "anonymous"
	}
	if i := strings.LastIndexByte(full, '/'); i >= 0 {
		full = full[i+1:]
	}
	return full
}
