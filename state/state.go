// Package state holds the raw entity state record delivered by the hub
// and the registry of typed per-domain models layered on top of it.
package state

import (
	"strings"
	"time"
)

// State is the raw record the hub reports for one entity. Value and most
// attributes arrive as loosely-typed hub data; typed access goes through
// the domain registry.
type State struct {
	EntityID    string
	Domain      string
	Value       string
	Attributes  map[string]interface{}
	LastChanged time.Time
	LastUpdated time.Time
}

// New builds a State, deriving Domain from the entity id.
func New(entityID, value string, attrs map[string]interface{}) *State {
	now := time.Now()
	return &State{
		EntityID:    entityID,
		Domain:      DomainOf(entityID),
		Value:       value,
		Attributes:  attrs,
		LastChanged: now,
		LastUpdated: now,
	}
}

// DomainOf returns the domain part of an entity id ("light.kitchen" ->
// "light"). Empty string if the id has no domain separator.
func DomainOf(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		return entityID[:i]
	}
	return ""
}

// ObjectIDOf returns the object id part of an entity id ("light.kitchen"
// -> "kitchen").
func ObjectIDOf(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 && i+1 < len(entityID) {
		return entityID[i+1:]
	}
	return ""
}

// Attr returns an attribute value and whether the attribute exists. An
// attribute stored as nil is present.
func (s *State) Attr(name string) (interface{}, bool) {
	if s == nil || s.Attributes == nil {
		return nil, false
	}
	v, ok := s.Attributes[name]
	return v, ok
}
