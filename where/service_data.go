package where

import (
	"reflect"

	"github.com/openhaus/automate/bus"
)

// anyValue is the "key must be present, value ignored" marker.
type anyValue struct{}

func (anyValue) String() string { return "<any>" }

// AnyValue in a ServiceData filter requires the key to exist without
// constraining its value.
var AnyValue interface{} = anyValue{}

// ServiceData matches call_service events whose data mapping satisfies
// every configured key. When the delivered value is itself a collection,
// the configured value matches if it equals any element - the hub may
// deliver entity_id as a list even for single-target calls.
func ServiceData(filters map[string]interface{}) bus.Predicate {
	return func(ev *bus.Event) bool {
		sc := ev.ServiceCall()
		if sc == nil {
			return false
		}
		for key, want := range filters {
			got, ok := sc.Data[key]
			if !ok {
				return false
			}
			if _, any := want.(anyValue); any {
				continue
			}
			if !dataValueMatches(want, got) {
				return false
			}
		}
		return true
	}
}

func dataValueMatches(want, got interface{}) bool {
	if Eq(want)(got) {
		return true
	}
	rv := reflect.ValueOf(got)
	if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		for i := 0; i < rv.Len(); i++ {
			if Eq(want)(rv.Index(i).Interface()) {
				return true
			}
		}
	}
	return false
}
