package subtitle

import (
	"sync"

	"github.com/avolens/dubsync/internal/logger"
)

// RegistryName identifies one of the subtitle snapshot sources.
type RegistryName string

const (
	RegistryCurrent    RegistryName = "current"
	RegistryOriginal   RegistryName = "original"
	RegistryTranslated RegistryName = "translated"
)

// resolutionOrder is fixed for the life of the process so repeated
// lookups of the same ID stay deterministic even when two registries
// carry the ID with different timings.
var resolutionOrder = []RegistryName{RegistryCurrent, RegistryOriginal, RegistryTranslated}

// Resolver finds a subtitle by ID across the three snapshot registries,
// first match wins. Subtitle data can arrive from more than one
// upstream depending on when translation happened; the chain is a
// lookup fallback, not a consistency mechanism.
type Resolver struct {
	mu         sync.RWMutex
	registries map[RegistryName]*Index
	logger     logger.Logger
}

// NewResolver creates a resolver with all registries empty.
func NewResolver(log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Resolver{
		registries: map[RegistryName]*Index{
			RegistryCurrent:    EmptyIndex(),
			RegistryOriginal:   EmptyIndex(),
			RegistryTranslated: EmptyIndex(),
		},
		logger: log,
	}
}

// Replace swaps in a new snapshot for the named registry.
func (r *Resolver) Replace(name RegistryName, idx *Index) {
	if idx == nil {
		idx = EmptyIndex()
	}

	r.mu.Lock()
	r.registries[name] = idx
	r.mu.Unlock()

	r.logger.WithFields(map[string]interface{}{
		"registry": string(name),
		"entries":  idx.Len(),
	}).Info("Subtitle snapshot replaced")
}

// Get returns the current snapshot for the named registry.
func (r *Resolver) Get(name RegistryName) *Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registries[name]
}

// Resolve looks the ID up through the fallback chain. The second return
// names the registry that satisfied the lookup.
func (r *Resolver) Resolve(id int64) (Subtitle, RegistryName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range resolutionOrder {
		if s, ok := r.registries[name].ByID(id); ok {
			return s, name, true
		}
	}
	return Subtitle{}, "", false
}
