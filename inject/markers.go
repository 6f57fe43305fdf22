// Package inject binds handler parameters from event data. At subscribe
// time it reflects over the handler's signature once, producing an
// immutable binding plan; per event it only executes the plan. All
// signature problems surface at registration, before the first event.
package inject

import "github.com/openhaus/automate/state"

// OldState marks a parameter as the state-change event's old state. The
// plain *state.State parameter type binds the new state; both are nil
// when that side of the transition is legitimately absent.
type OldState *state.State

// EntityID marks a string parameter as the event's entity id.
type EntityID string
