package playback

import (
	"sort"

	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/subtitle"
)

// Window is one schedulable narration with its play interval. Playback
// aligns to the subtitle start, so the window is [Start, Start+Duration).
// Duration is the probed clip length, or the configured default until
// the probe completes.
type Window struct {
	Narration narration.Narration
	Track     narration.Track
	Subtitle  subtitle.Subtitle
	Start     float64
	Duration  float64

	// pos is the narration's position in the source list. When two
	// windows overlap, the later list entry wins.
	pos int
}

// Contains reports whether t falls inside the play window.
func (w Window) Contains(t float64) bool {
	return t >= w.Start && t < w.Start+w.Duration
}

// WindowIndex holds the active track's windows sorted by start time and
// answers "which narration is due at time t" with an incrementally
// advanced cursor instead of a full scan per tick. The cursor assumes
// mostly forward time; a backward seek re-derives it by binary search.
type WindowIndex struct {
	entries []Window
	cursor  int
	maxDur  float64
	lastT   float64
}

// NewWindowIndex builds an index over the given windows.
func NewWindowIndex(entries []Window) *WindowIndex {
	sorted := make([]Window, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].pos < sorted[j].pos
		}
		return sorted[i].Start < sorted[j].Start
	})

	var maxDur float64
	for _, w := range sorted {
		if w.Duration > maxDur {
			maxDur = w.Duration
		}
	}

	return &WindowIndex{entries: sorted, maxDur: maxDur}
}

// Len returns the number of indexed windows.
func (ix *WindowIndex) Len() int {
	return len(ix.entries)
}

// SetDuration updates the window length for every entry tied to the
// subtitle ID once the clip's real duration is known. Start times are
// unaffected, so the sort order holds.
func (ix *WindowIndex) SetDuration(subtitleID int64, seconds float64) {
	for i := range ix.entries {
		if ix.entries[i].Narration.SubtitleID == subtitleID {
			ix.entries[i].Duration = seconds
		}
	}
	if seconds > ix.maxDur {
		ix.maxDur = seconds
	}
}

// CandidateAt returns the narration due at time t, if any. Among
// overlapping windows the latest list entry wins, matching the
// last-evaluated-wins rule of a linear scan.
func (ix *WindowIndex) CandidateAt(t float64) (Window, bool) {
	if len(ix.entries) == 0 {
		return Window{}, false
	}

	if t < ix.lastT {
		// Backward seek: re-derive the cursor.
		ix.cursor = sort.Search(len(ix.entries), func(i int) bool {
			return ix.entries[i].Start > t
		})
	}
	ix.lastT = t

	for ix.cursor < len(ix.entries) && ix.entries[ix.cursor].Start <= t {
		ix.cursor++
	}

	// Only windows starting within maxDur of t can still contain it.
	best := -1
	for i := ix.cursor - 1; i >= 0 && ix.entries[i].Start >= t-ix.maxDur; i-- {
		if !ix.entries[i].Contains(t) {
			continue
		}
		if best == -1 || ix.entries[i].pos > ix.entries[best].pos {
			best = i
		}
	}

	if best == -1 {
		return Window{}, false
	}
	return ix.entries[best], true
}
