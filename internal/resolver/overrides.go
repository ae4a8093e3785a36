package resolver

import (
	"sync"

	"github.com/starford/livevars/internal/value"
)

// Override is a value recorded by an edit before, or instead of, a
// persisted write.
type Override struct {
	Value value.Value
	// Origin is the document that was current when the edit was made.
	// Empty when the edit had no document context.
	Origin string
}

// Overrides maps paths to overriding values. It is never persisted.
// The zero value is not usable; call NewOverrides.
type Overrides struct {
	mu      sync.RWMutex
	entries map[string]Override
}

// NewOverrides returns an empty override store.
func NewOverrides() *Overrides {
	return &Overrides{entries: make(map[string]Override)}
}

// Set records v for path.
func (o *Overrides) Set(path, origin string, v value.Value) {
	o.mu.Lock()
	o.entries[path] = Override{Value: v, Origin: origin}
	o.mu.Unlock()
}

// Get returns the override for path.
func (o *Overrides) Get(path string) (Override, bool) {
	if o == nil {
		return Override{}, false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[path]
	return e, ok
}

// Delete removes the override for path.
func (o *Overrides) Delete(path string) {
	o.mu.Lock()
	delete(o.entries, path)
	o.mu.Unlock()
}

// Len returns the number of overrides.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

// Prune removes every override for which drop returns true and reports how
// many were removed.
func (o *Overrides) Prune(drop func(path string, e Override) bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for p, e := range o.entries {
		if drop(p, e) {
			delete(o.entries, p)
			n++
		}
	}
	return n
}
