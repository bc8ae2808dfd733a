package subtitle

import (
	"fmt"
	"sort"
)

// Index is an immutable ordered snapshot of subtitles with O(1) lookup
// by ID. A new transcript replaces the whole index.
type Index struct {
	byID    map[int64]Subtitle
	ordered []Subtitle
}

// NewIndex validates the entries and builds a snapshot ordered by start
// time. Duplicate IDs within one snapshot are rejected.
func NewIndex(subs []Subtitle) (*Index, error) {
	byID := make(map[int64]Subtitle, len(subs))
	ordered := make([]Subtitle, 0, len(subs))

	for _, s := range subs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byID[s.ID]; exists {
			return nil, fmt.Errorf("duplicate subtitle id %d", s.ID)
		}
		byID[s.ID] = s
		ordered = append(ordered, s)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Start == ordered[j].Start {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Start < ordered[j].Start
	})

	return &Index{byID: byID, ordered: ordered}, nil
}

// EmptyIndex returns an index with no entries.
func EmptyIndex() *Index {
	return &Index{byID: map[int64]Subtitle{}}
}

// ByID looks up a subtitle.
func (i *Index) ByID(id int64) (Subtitle, bool) {
	s, ok := i.byID[id]
	return s, ok
}

// All returns the entries ordered by start time. Callers must not
// mutate the returned slice.
func (i *Index) All() []Subtitle {
	return i.ordered
}

// Len returns the number of entries.
func (i *Index) Len() int {
	return len(i.byID)
}
