package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/subtitle"
)

func win(id int64, start, dur float64, pos int) Window {
	return Window{
		Narration: narration.Narration{SubtitleID: id, Filename: "clip.wav", Success: true},
		Track:     narration.TrackOriginal,
		Subtitle:  subtitle.Subtitle{ID: id, Start: start, End: start + dur},
		Start:     start,
		Duration:  dur,
		pos:       pos,
	}
}

func TestCandidateAtEmptyIndex(t *testing.T) {
	ix := NewWindowIndex(nil)
	_, ok := ix.CandidateAt(5.0)
	assert.False(t, ok)
}

func TestCandidateAtBoundaries(t *testing.T) {
	ix := NewWindowIndex([]Window{win(1, 10.0, 3.0, 0)})

	_, ok := ix.CandidateAt(9.9)
	assert.False(t, ok)

	w, ok := ix.CandidateAt(10.0)
	require.True(t, ok)
	assert.Equal(t, int64(1), w.Narration.SubtitleID)

	w, ok = ix.CandidateAt(12.9)
	require.True(t, ok)
	assert.Equal(t, int64(1), w.Narration.SubtitleID)

	// Half-open window: the end point is outside
	_, ok = ix.CandidateAt(13.0)
	assert.False(t, ok)
}

func TestOverlapLaterEntryWins(t *testing.T) {
	// Both windows cover t=11; the later list entry must win even
	// though it starts earlier.
	ix := NewWindowIndex([]Window{
		win(1, 10.5, 2.0, 0),
		win(2, 10.0, 4.0, 1),
	})

	w, ok := ix.CandidateAt(11.0)
	require.True(t, ok)
	assert.Equal(t, int64(2), w.Narration.SubtitleID)
}

func TestCandidateAfterBackwardSeek(t *testing.T) {
	ix := NewWindowIndex([]Window{
		win(1, 10.0, 2.0, 0),
		win(2, 20.0, 2.0, 1),
	})

	w, ok := ix.CandidateAt(21.0)
	require.True(t, ok)
	assert.Equal(t, int64(2), w.Narration.SubtitleID)

	// Seek back before the first window, then into it
	_, ok = ix.CandidateAt(5.0)
	assert.False(t, ok)

	w, ok = ix.CandidateAt(10.5)
	require.True(t, ok)
	assert.Equal(t, int64(1), w.Narration.SubtitleID)
}

func TestSetDurationWidensWindow(t *testing.T) {
	ix := NewWindowIndex([]Window{win(1, 10.0, 2.0, 0)})

	_, ok := ix.CandidateAt(12.5)
	assert.False(t, ok)

	ix.SetDuration(1, 3.0)

	_, ok = ix.CandidateAt(11.0)
	require.True(t, ok)
	_, ok = ix.CandidateAt(12.5)
	assert.True(t, ok)
}

func TestSetDurationNarrowsWindow(t *testing.T) {
	ix := NewWindowIndex([]Window{win(1, 10.0, 2.0, 0)})

	ix.SetDuration(1, 0.5)

	_, ok := ix.CandidateAt(10.4)
	assert.True(t, ok)
	_, ok = ix.CandidateAt(11.0)
	assert.False(t, ok)
}
