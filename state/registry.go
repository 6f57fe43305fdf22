package state

import (
	"reflect"
	"sort"
	"sync"

	"github.com/openhaus/automate/errcode"
)

// Typed is implemented by every domain model. Raw always returns the
// record the model was built from.
type Typed interface {
	TypedDomain() string
	Raw() *State
}

// Factory builds a domain model from a raw state record.
type Factory func(raw *State) (Typed, error)

// Registry maps entity domains to typed model factories. It is the
// discriminant lookup for union-typed handler parameters: given a raw
// state, Resolve picks the model registered for the entity's domain.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	types     map[string]reflect.Type
}

var errNoModel = errcode.ErrUnionUnmatched

// NewRegistry creates a Registry with the built-in domain models.
func NewRegistry(tbl attrConverter) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		types:     make(map[string]reflect.Type),
	}
	registerBuiltins(r, tbl)
	return r
}

// RegisterDomain adds a model factory for a domain. prototype is a value
// of the concrete model type (used to answer TypeFor queries); passing a
// nil prototype is allowed.
func (r *Registry) RegisterDomain(domain string, prototype Typed, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[domain] = factory
	if prototype != nil {
		r.types[domain] = reflect.TypeOf(prototype)
	}
}

// Resolve builds the typed model for a raw state. Returns
// errcode.ErrUnionUnmatched when the domain has no registered model.
func (r *Registry) Resolve(raw *State) (Typed, error) {
	if raw == nil {
		return nil, errNoModel.WithMsgf("cannot resolve typed state: state is absent")
	}
	r.mu.RLock()
	factory, ok := r.factories[raw.Domain]
	r.mu.RUnlock()
	if !ok {
		return nil, errNoModel.WithMsgf(
			"no typed model registered for domain %q (entity %s)", raw.Domain, raw.EntityID)
	}
	return factory(raw)
}

// TypeFor returns the concrete model type registered for a domain.
func (r *Registry) TypeFor(domain string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[domain]
	return t, ok
}

// DomainFor returns the domain whose registered concrete type matches t.
func (r *Registry) DomainFor(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for d, rt := range r.types {
		if rt == t {
			return d, true
		}
	}
	return "", false
}

// Domains lists registered domains, sorted.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for d := range r.factories {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
