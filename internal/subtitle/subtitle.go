// Package subtitle holds subtitle snapshots and the lookup chain the
// playback scheduler resolves narration timing against.
package subtitle

import (
	"fmt"
)

// Subtitle is a single timed caption entry. Snapshots are immutable;
// transcript changes arrive as full replacements.
type Subtitle struct {
	ID    int64   `json:"id"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
	Text  string  `json:"text"`
}

// Validate checks the invariants enforced at the boundary where
// external snapshots enter the system.
func (s Subtitle) Validate() error {
	if s.ID <= 0 {
		return fmt.Errorf("subtitle id must be positive, got %d", s.ID)
	}
	if s.Start < 0 {
		return fmt.Errorf("subtitle %d: start must be non-negative, got %f", s.ID, s.Start)
	}
	if s.Start > s.End {
		return fmt.Errorf("subtitle %d: start %.3f after end %.3f", s.ID, s.Start, s.End)
	}
	return nil
}

// Duration returns the display duration in seconds.
func (s Subtitle) Duration() float64 {
	return s.End - s.Start
}
