// Package bus implements the event dispatch engine: topic routing with
// glob patterns over entity ids, predicate pre-filtering, handler
// argument binding and per-listener tracked invocation.
package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/openhaus/automate/state"
)

// Well-known topics.
const (
	TopicStateChanged = "state_changed"
	TopicCallService  = "call_service"
)

// Origin tags where an event came from.
type Origin string

const (
	OriginHub      Origin = "hub"
	OriginInternal Origin = "internal"
)

// Context is the hub's causality chain for an event.
type Context struct {
	ID       string
	ParentID string
	UserID   string
}

// Meta is the per-family event metadata: hub-origin events carry a fire
// time and a context, internal events a monotonic sequence number.
type Meta struct {
	Origin    Origin
	TimeFired time.Time
	Context   Context
	Seq       uint64
}

// Event is the immutable envelope dispatched through the bus. Data is one
// of *StateChange, *ServiceCall or a raw map for unmodelled families.
type Event struct {
	Topic string
	Type  string
	Data  interface{}
	Meta  Meta
}

// StateChange is the data of a state_changed event. A nil pointer means
// the entity did not exist on that side of the transition.
type StateChange struct {
	EntityID string
	OldState *state.State
	NewState *state.State
}

// ServiceCall is the data of a call_service event.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
}

// EntityID returns the entity the event is about, or "" when it has none.
func (e *Event) EntityID() string {
	switch d := e.Data.(type) {
	case *StateChange:
		return d.EntityID
	case *ServiceCall:
		if v, ok := d.Data["entity_id"]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// StateChange returns the event's state-change data, or nil for other
// families.
func (e *Event) StateChange() *StateChange {
	if d, ok := e.Data.(*StateChange); ok {
		return d
	}
	return nil
}

// ServiceCall returns the event's service-call data, or nil for other
// families.
func (e *Event) ServiceCall() *ServiceCall {
	if d, ok := e.Data.(*ServiceCall); ok {
		return d
	}
	return nil
}

// NewHubEvent builds a hub-origin event, minting a context id when the
// hub did not provide one.
func NewHubEvent(topic, eventType string, data interface{}, ctx Context) *Event {
	if ctx.ID == "" {
		ctx.ID = uuid.NewString()
	}
	return &Event{
		Topic: topic,
		Type:  eventType,
		Data:  data,
		Meta: Meta{
			Origin:    OriginHub,
			TimeFired: time.Now(),
			Context:   ctx,
		},
	}
}

// NewStateChanged builds a hub-origin state_changed event.
func NewStateChanged(entityID string, oldState, newState *state.State) *Event {
	return NewHubEvent(TopicStateChanged, TopicStateChanged, &StateChange{
		EntityID: entityID,
		OldState: oldState,
		NewState: newState,
	}, Context{})
}

// NewServiceCall builds a hub-origin call_service event.
func NewServiceCall(domain, service string, data map[string]interface{}) *Event {
	return NewHubEvent(TopicCallService, TopicCallService, &ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
	}, Context{})
}
