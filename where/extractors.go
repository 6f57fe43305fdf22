package where

import (
	"github.com/openhaus/automate/bus"
	"github.com/openhaus/automate/state"
)

// NewValue extracts the new state's value from a state-change event.
func NewValue() Extractor {
	return func(ev *bus.Event) interface{} {
		return valueOf(newState(ev))
	}
}

// OldValue extracts the old state's value from a state-change event.
func OldValue() Extractor {
	return func(ev *bus.Event) interface{} {
		return valueOf(oldState(ev))
	}
}

// NewAttr extracts an attribute of the new state. An attribute stored as
// nil is present (and extracts as nil); only a nonexistent attribute
// extracts as Missing.
func NewAttr(name string) Extractor {
	return func(ev *bus.Event) interface{} {
		return attrOf(newState(ev), name)
	}
}

// OldAttr extracts an attribute of the old state.
func OldAttr(name string) Extractor {
	return func(ev *bus.Event) interface{} {
		return attrOf(oldState(ev), name)
	}
}

// EntityID extracts the event's entity id.
func EntityID() Extractor {
	return func(ev *bus.Event) interface{} {
		if id := ev.EntityID(); id != "" {
			return id
		}
		return Missing
	}
}

// DataField extracts a field from a service-call payload's data mapping.
func DataField(name string) Extractor {
	return func(ev *bus.Event) interface{} {
		sc := ev.ServiceCall()
		if sc == nil || sc.Data == nil {
			return Missing
		}
		v, ok := sc.Data[name]
		if !ok {
			return Missing
		}
		return v
	}
}

func newState(ev *bus.Event) *state.State {
	if sc := ev.StateChange(); sc != nil {
		return sc.NewState
	}
	return nil
}

func oldState(ev *bus.Event) *state.State {
	if sc := ev.StateChange(); sc != nil {
		return sc.OldState
	}
	return nil
}

func valueOf(s *state.State) interface{} {
	if s == nil {
		return Missing
	}
	return s.Value
}

func attrOf(s *state.State, name string) interface{} {
	if s == nil {
		return Missing
	}
	v, ok := s.Attr(name)
	if !ok {
		return Missing
	}
	return v
}
