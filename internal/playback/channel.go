package playback

import (
	"errors"
	"sync"
	"time"
)

// ErrAutoplayBlocked is returned by a Player when the runtime refuses
// to start playback before a user gesture. The pool recovers by
// retrying on the next reported user interaction.
var ErrAutoplayBlocked = errors.New("playback refused by autoplay policy")

// Player is one audio playback handle. Implementations bridge to the
// actual audio runtime; the pool only ever drives this surface.
type Player interface {
	Play(offset float64) error
	Pause()
	SetVolume(v float64)
	Close()
}

// PlayerFactory creates a handle for a clip URL. onEnded fires when the
// clip plays to its natural end.
type PlayerFactory func(url string, onEnded func()) (Player, error)

// Channel pairs a player handle with its lazily probed clip duration.
// Handles live for the lifetime of the narration snapshot they belong
// to and are reused across ticks.
type Channel struct {
	SubtitleID int64
	URL        string

	player Player

	mu       sync.Mutex
	duration time.Duration // zero until probed
}

// Duration returns the probed clip duration, or fallback while unknown.
func (c *Channel) Duration(fallback time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.duration <= 0 {
		return fallback
	}
	return c.duration
}

// KnownDuration returns the probed duration and whether it is known.
func (c *Channel) KnownDuration() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration, c.duration > 0
}

func (c *Channel) setDuration(d time.Duration) {
	c.mu.Lock()
	c.duration = d
	c.mu.Unlock()
}
