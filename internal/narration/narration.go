// Package narration holds the generated-audio descriptors and the two
// track registries the playback scheduler scans.
package narration

import (
	"fmt"
)

// Track names one of the two parallel narration lists.
type Track string

const (
	TrackOriginal   Track = "original"
	TrackTranslated Track = "translated"
)

// Narration describes one generated audio clip tied to a subtitle.
// Lists are produced externally and delivered as full replacements.
type Narration struct {
	SubtitleID int64  `json:"subtitle_id"`
	Filename   string `json:"filename"`
	Success    bool   `json:"success"`
}

// Validate checks the invariants enforced where external snapshots
// enter the system. A failed generation may carry an empty filename;
// a successful one must not.
func (n Narration) Validate() error {
	if n.SubtitleID <= 0 {
		return fmt.Errorf("narration subtitle_id must be positive, got %d", n.SubtitleID)
	}
	if n.Success && n.Filename == "" {
		return fmt.Errorf("narration for subtitle %d: successful narration requires a filename", n.SubtitleID)
	}
	return nil
}
