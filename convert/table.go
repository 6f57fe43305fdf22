// Package convert provides the runtime's value-conversion service: a
// queryable table of (source type, target type) converter functions used
// by handler argument binding and typed state models.
package convert

import (
	"reflect"
	"sort"
	"sync"

	"github.com/openhaus/automate/errcode"
)

// Func converts a single raw value. The input is guaranteed to be of the
// registered source type.
type Func func(value interface{}) (interface{}, error)

type pair struct {
	from reflect.Type
	to   reflect.Type
}

// Pair describes one registered conversion for introspection.
type Pair struct {
	From string
	To   string
}

// Table is an explicit conversion service object. One instance is created
// at process start and shared by reference; registration after start is
// allowed and concurrency-safe.
type Table struct {
	mu         sync.RWMutex
	converters map[pair]Func
}

// NewTable creates a Table pre-populated with the built-in conversions.
func NewTable() *Table {
	t := &Table{converters: make(map[pair]Func)}
	t.registerBuiltins()
	return t
}

// Register adds or replaces a converter for the (from, to) pair.
func (t *Table) Register(from, to reflect.Type, fn Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.converters[pair{from, to}] = fn
}

// Convert transforms value into the target type. A value already of the
// target type is returned unchanged, which makes conversion idempotent.
func (t *Table) Convert(value interface{}, to reflect.Type) (interface{}, error) {
	if value == nil {
		return nil, errcode.ErrConvertBadType.WithMsgf(
			"cannot convert nil to %s", to)
	}

	from := reflect.TypeOf(value)
	if from == to {
		return value, nil
	}
	if from.AssignableTo(to) {
		return value, nil
	}

	t.mu.RLock()
	fn, ok := t.converters[pair{from, to}]
	t.mu.RUnlock()
	if ok {
		out, err := fn(value)
		if err != nil {
			return nil, errcode.ErrConvertFailed.Wrapf(err,
				"cannot convert %v (%s) to %s", value, from, to)
		}
		return out, nil
	}

	// Numeric kinds cross-convert without explicit registration.
	if isNumeric(from.Kind()) && isNumeric(to.Kind()) {
		v := reflect.ValueOf(value)
		if v.CanConvert(to) {
			return v.Convert(to).Interface(), nil
		}
	}

	return nil, errcode.ErrNoConverter.WithMsgf(
		"no converter from %s to %s (value %v)", from, to, value).
		WithData("from", from.String()).
		WithData("to", to.String())
}

// ConvertTo is a generic convenience over Convert.
func ConvertTo[T any](t *Table, value interface{}) (T, error) {
	var zero T
	out, err := t.Convert(value, reflect.TypeOf(zero))
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, errcode.ErrConvertFailed.WithMsgf(
			"converter returned %T, want %T", out, zero)
	}
	return typed, nil
}

// Pairs lists all registered conversions, sorted, for debugging and the
// introspection surface.
func (t *Table) Pairs() []Pair {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Pair, 0, len(t.converters))
	for p := range t.converters {
		out = append(out, Pair{From: p.from.String(), To: p.to.String()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func typeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}
