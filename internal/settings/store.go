// Package settings persists user-facing playback preferences in Redis
// so they survive restarts, with an in-memory copy for hot reads on the
// scheduler path.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/logger"
)

const key = "dubsync:settings"

// Settings holds the playback preferences the UI can change at runtime.
type Settings struct {
	NarrationEnabled bool    `json:"narration_enabled"`
	NarrationVolume  float64 `json:"narration_volume"`
	VideoVolume      float64 `json:"video_volume"`
}

// Validate bounds the volume fields.
func (s Settings) Validate() error {
	if s.NarrationVolume < 0 || s.NarrationVolume > 1 {
		return fmt.Errorf("narration_volume must be in [0, 1], got %v", s.NarrationVolume)
	}
	if s.VideoVolume < 0 || s.VideoVolume > 1 {
		return fmt.Errorf("video_volume must be in [0, 1], got %v", s.VideoVolume)
	}
	return nil
}

// Store caches settings in memory and writes through to Redis. Volume
// changes are announced on the bus so the channel pool can re-apply the
// level to every open handle.
type Store struct {
	mu      sync.RWMutex
	current Settings

	client *redis.Client
	bus    *events.Bus
	logger logger.Logger
}

// NewStore loads persisted settings, falling back to the given defaults
// when Redis holds none.
func NewStore(ctx context.Context, client *redis.Client, defaults Settings, bus *events.Bus, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}

	s := &Store{
		current: defaults,
		client:  client,
		bus:     bus,
		logger:  log,
	}

	if client != nil {
		data, err := client.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			// First run, defaults stand
		case err != nil:
			return nil, fmt.Errorf("failed to load settings: %w", err)
		default:
			var loaded Settings
			if err := json.Unmarshal(data, &loaded); err != nil {
				log.WithError(err).Warn("Discarding unreadable persisted settings")
			} else if err := loaded.Validate(); err != nil {
				log.WithError(err).Warn("Discarding invalid persisted settings")
			} else {
				s.current = loaded
			}
		}
	}

	return s, nil
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates, persists, and applies new settings. A narration
// volume change is published even when persistence fails; playback
// preferences should track the user's intent immediately.
func (s *Store) Update(ctx context.Context, next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if s.client != nil {
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to persist settings")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"narration_enabled": next.NarrationEnabled,
		"narration_volume":  next.NarrationVolume,
		"video_volume":      next.VideoVolume,
	}).Info("Settings updated")

	if s.bus != nil && next.NarrationVolume != prev.NarrationVolume {
		s.bus.Publish(events.Event{
			Type:    events.TypeVolumeChanged,
			Payload: events.VolumeChanged{Volume: next.NarrationVolume},
		})
	}

	return nil
}
