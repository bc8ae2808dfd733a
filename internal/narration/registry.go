package narration

import (
	"sync"

	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/logger"
	"github.com/avolens/dubsync/internal/metrics"
)

// SourceState describes which narration tracks currently hold entries.
type SourceState string

const (
	StateNoNarrations   SourceState = "no_narrations"
	StateOriginalOnly   SourceState = "original_only"
	StateTranslatedOnly SourceState = "translated_only"
	StateBoth           SourceState = "both"
)

// Registry owns the two narration track lists. Each track is replaced
// wholesale when upstream generation completes; the active source is
// re-derived on every replacement rather than stored as a preference.
type Registry struct {
	mu     sync.RWMutex
	tracks map[Track][]Narration

	bus    *events.Bus
	logger logger.Logger
}

// NewRegistry creates an empty registry. Replacements are announced on
// the bus so independent components (scheduler, UI) can react.
func NewRegistry(bus *events.Bus, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Registry{
		tracks: map[Track][]Narration{
			TrackOriginal:   nil,
			TrackTranslated: nil,
		},
		bus:    bus,
		logger: log,
	}
}

// Replace swaps in a new snapshot for the track. An empty (or nil) list
// clears the track; the scheduler treats that as a required stop for
// any narration playing from it.
func (r *Registry) Replace(track Track, list []Narration) error {
	for _, n := range list {
		if err := n.Validate(); err != nil {
			return err
		}
	}

	snapshot := make([]Narration, len(list))
	copy(snapshot, list)

	r.mu.Lock()
	r.tracks[track] = snapshot
	r.mu.Unlock()

	metrics.IncSnapshotReplacement(string(track))
	metrics.SetRegistryEntries(string(track), len(snapshot))

	r.logger.WithFields(map[string]interface{}{
		"track":   string(track),
		"entries": len(snapshot),
	}).Info("Narration snapshot replaced")

	if r.bus != nil {
		r.bus.Publish(events.Event{
			Type:    events.TypeNarrationsUpdated,
			Payload: events.NarrationsUpdated{Track: string(track), Count: len(snapshot)},
		})
	}

	return nil
}

// List returns the snapshot for a track. Callers must not mutate it.
func (r *Registry) List(track Track) []Narration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracks[track]
}

// State reports which tracks hold entries.
func (r *Registry) State() SourceState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hasOriginal := len(r.tracks[TrackOriginal]) > 0
	hasTranslated := len(r.tracks[TrackTranslated]) > 0

	switch {
	case hasOriginal && hasTranslated:
		return StateBoth
	case hasOriginal:
		return StateOriginalOnly
	case hasTranslated:
		return StateTranslatedOnly
	default:
		return StateNoNarrations
	}
}

// ActiveSource derives the track the scheduler should scan: original
// when non-empty, else translated, else none. Recomputed on every call
// so registry updates take effect immediately.
func (r *Registry) ActiveSource() (Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tracks[TrackOriginal]) > 0 {
		return TrackOriginal, true
	}
	if len(r.tracks[TrackTranslated]) > 0 {
		return TrackTranslated, true
	}
	return "", false
}
