package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/logger"
	"github.com/avolens/dubsync/internal/metrics"
	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/settings"
	"github.com/avolens/dubsync/internal/subtitle"
)

// URLResolver templates a narration filename into a playable URL.
type URLResolver interface {
	Resolve(filename string) (string, error)
}

// SettingsSource exposes the live playback preferences.
type SettingsSource interface {
	Get() settings.Settings
}

// SwitchRecorder journals playback switches. Optional.
type SwitchRecorder interface {
	Record(subtitleID int64, track string, videoTime, offset float64)
}

// Scheduler decides on each clock tick which narration should be
// audible. It rebuilds its window index whenever a subtitle or
// narration snapshot is replaced, and asks the pool for at most one
// switch per tick. Nothing here returns an error to the ticking path;
// failures log and the tick moves on.
type Scheduler struct {
	subtitles  *subtitle.Resolver
	narrations *narration.Registry
	pool       *Pool
	urls       URLResolver
	settings   SettingsSource
	recorder   SwitchRecorder
	defaultDur time.Duration
	logger     logger.Logger

	ticking atomic.Bool

	mu       sync.Mutex
	windows  *WindowIndex
	track    narration.Track
	hasTrack bool

	unsubs []func()
}

// NewScheduler wires the scheduler to its data sources and starts
// listening for snapshot replacements.
func NewScheduler(
	subs *subtitle.Resolver,
	narrs *narration.Registry,
	pool *Pool,
	urls URLResolver,
	prefs SettingsSource,
	recorder SwitchRecorder,
	defaultDur time.Duration,
	bus *events.Bus,
	log logger.Logger,
) *Scheduler {
	if log == nil {
		log = logger.NewNullLogger()
	}

	s := &Scheduler{
		subtitles:  subs,
		narrations: narrs,
		pool:       pool,
		urls:       urls,
		settings:   prefs,
		recorder:   recorder,
		defaultDur: defaultDur,
		logger:     log,
		windows:    NewWindowIndex(nil),
	}

	pool.SetDurationCallback(s.setDuration)

	if bus != nil {
		rebuild := func(events.Event) { s.Rebuild() }
		s.unsubs = append(s.unsubs,
			bus.Subscribe(events.TypeNarrationsUpdated, rebuild),
			bus.Subscribe(events.TypeSubtitlesUpdated, rebuild),
		)
	}

	return s
}

// Rebuild re-derives the active track and the window index from the
// current snapshots. An emptied track pauses and clears any narration
// still playing from it.
func (s *Scheduler) Rebuild() {
	track, ok := s.narrations.ActiveSource()

	if !ok {
		s.mu.Lock()
		s.windows = NewWindowIndex(nil)
		s.hasTrack = false
		s.mu.Unlock()

		s.pool.Retain(nil)
		s.pool.ClearActive()
		s.logger.Debug("No narration source, playback cleared")
		return
	}

	list := s.narrations.List(track)
	entries := make([]Window, 0, len(list))
	keep := make(map[int64]struct{}, len(list))

	for pos, n := range list {
		if !n.Success {
			continue
		}

		sub, _, found := s.subtitles.Resolve(n.SubtitleID)
		if !found {
			metrics.IncSkip("missing_subtitle")
			s.logger.WithField("subtitle_id", n.SubtitleID).Debug("No subtitle for narration, skipping")
			continue
		}

		dur := s.defaultDur.Seconds()
		if ch := s.channelFor(n.SubtitleID); ch != nil {
			if d, known := ch.KnownDuration(); known {
				dur = d.Seconds()
			}
		}

		keep[n.SubtitleID] = struct{}{}
		entries = append(entries, Window{
			Narration: n,
			Track:     track,
			Subtitle:  sub,
			Start:     sub.Start,
			Duration:  dur,
			pos:       pos,
		})
	}

	s.mu.Lock()
	prevTrack, hadTrack := s.track, s.hasTrack
	s.windows = NewWindowIndex(entries)
	s.track = track
	s.hasTrack = true
	s.mu.Unlock()

	// Drop handles for narrations gone from the snapshot; this also
	// stops the active narration if its entry was removed.
	s.pool.Retain(keep)

	// A source flip strands the old track's narration even when its
	// subtitle ID survives on the new track.
	if hadTrack && prevTrack != track {
		if _, activeTrack, ok := s.pool.Active(); ok && activeTrack != track {
			s.pool.ClearActive()
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"track":   string(track),
		"windows": len(entries),
	}).Info("Playback windows rebuilt")
}

func (s *Scheduler) channelFor(subtitleID int64) *Channel {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.pool.channels[subtitleID]
}

// setDuration tightens a window once the clip's real length is probed.
func (s *Scheduler) setDuration(subtitleID int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows.SetDuration(subtitleID, d.Seconds())
}

// Tick evaluates the playback decision for time t. Re-entrant calls
// are dropped; a nested tick must not observe a half-made decision.
func (s *Scheduler) Tick(t float64, source string) {
	if !s.ticking.CompareAndSwap(false, true) {
		return
	}
	defer s.ticking.Store(false)

	start := time.Now()
	defer func() { metrics.ObserveTickDuration(time.Since(start).Seconds()) }()

	metrics.IncSchedulerTick(source)

	if s.settings != nil && !s.settings.Get().NarrationEnabled {
		if _, _, ok := s.pool.Active(); ok {
			s.pool.ClearActive()
		}
		return
	}

	s.mu.Lock()
	win, due := s.windows.CandidateAt(t)
	track := s.track
	s.mu.Unlock()

	if !due {
		// Leaving a window takes no action; the clip plays out.
		return
	}

	if id, activeTrack, ok := s.pool.Active(); ok && id == win.Narration.SubtitleID && activeTrack == track {
		return
	}

	url, err := s.urls.Resolve(win.Narration.Filename)
	if err != nil {
		metrics.IncSkip("bad_filename")
		s.logger.WithError(err).WithField("subtitle_id", win.Narration.SubtitleID).Warn("Cannot resolve clip URL")
		return
	}

	ch, err := s.pool.Ensure(win.Narration.SubtitleID, url)
	if err != nil {
		metrics.IncSkip("handle_error")
		s.logger.WithError(err).WithField("subtitle_id", win.Narration.SubtitleID).Warn("Cannot create playback handle")
		return
	}

	if err := s.pool.SwitchTo(ch, track, win.Start, t); err != nil {
		s.logger.WithError(err).WithField("subtitle_id", win.Narration.SubtitleID).Warn("Playback switch failed")
		return
	}

	if s.recorder != nil {
		offset := t - win.Start
		if offset < 0 {
			offset = 0
		}
		s.recorder.Record(win.Narration.SubtitleID, string(track), t, offset)
	}
}

// ActiveTrack returns the track the scheduler is currently scanning.
func (s *Scheduler) ActiveTrack() (narration.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track, s.hasTrack
}

// Close detaches the scheduler from the bus.
func (s *Scheduler) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}
