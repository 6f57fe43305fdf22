package errcode

import (
	"fmt"
	"sync"
)

// Registry guards against two subsystems claiming the same numeric code.
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string
}

var globalRegistry = &Registry{
	codes: make(map[int]string),
}

// Register records an error code template, panicking on conflict. Meant to
// be called from package-level var blocks at init time.
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register records the code in this registry. Re-registering the identical
// subsystem/message pair is idempotent.
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s:%s", err.Subsystem(), err.Message())
	if existing, ok := r.codes[err.Code()]; ok {
		if existing != key {
			panic(fmt.Sprintf("error code conflict: %d registered as %s, cannot register as %s",
				err.Code(), existing, key))
		}
		return err
	}
	r.codes[err.Code()] = key
	return err
}

// Registered reports whether a code is known.
func (r *Registry) Registered(code int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codes[code]
	return ok
}
