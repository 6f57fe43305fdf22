// Package where builds the predicate trees used as subscription
// pre-filters: atomic value matchers over extracted event fields,
// composed with boolean combinators. Every constructor returns a pure
// bus.Predicate that is safe to share across listeners and to evaluate
// concurrently.
package where

import (
	"github.com/openhaus/automate/bus"
)

// missingValue is the "field does not exist" sentinel. It is distinct
// from nil: an attribute stored as nil is present.
type missingValue struct{}

func (missingValue) String() string { return "<missing>" }

// Missing is returned by extractors when the requested field does not
// exist in the event.
var Missing interface{} = missingValue{}

// IsMissing reports whether v is the missing sentinel.
func IsMissing(v interface{}) bool {
	_, ok := v.(missingValue)
	return ok
}

// Extractor pulls a raw value out of an event, returning Missing when
// the field does not exist.
type Extractor func(*bus.Event) interface{}

// Matcher tests a single extracted value.
type Matcher func(interface{}) bool

// Cond combines an extractor with a matcher into a predicate.
func Cond(extract Extractor, match Matcher) bus.Predicate {
	return func(ev *bus.Event) bool {
		return match(extract(ev))
	}
}

// AllOf is logical AND, evaluated left to right, stopping at the first
// false child.
func AllOf(children ...bus.Predicate) bus.Predicate {
	return func(ev *bus.Event) bool {
		for _, c := range children {
			if !c(ev) {
				return false
			}
		}
		return true
	}
}

// AnyOf is logical OR, stopping at the first true child.
func AnyOf(children ...bus.Predicate) bus.Predicate {
	return func(ev *bus.Event) bool {
		for _, c := range children {
			if c(ev) {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(child bus.Predicate) bus.Predicate {
	return func(ev *bus.Event) bool {
		return !child(ev)
	}
}

// Guard adapts an arbitrary single-argument callable into the predicate
// interface.
func Guard(fn func(*bus.Event) bool) bus.Predicate {
	return bus.Predicate(fn)
}

func matchGlob(pattern, key string) (bool, error) {
	return bus.MatchPattern(pattern, key)
}
