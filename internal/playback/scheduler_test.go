package playback

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/settings"
	"github.com/avolens/dubsync/internal/subtitle"
)

type stubURLs struct{}

func (stubURLs) Resolve(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("empty filename")
	}
	return "http://m/" + filename, nil
}

type stubSettings struct {
	mu sync.Mutex
	s  settings.Settings
}

func (x *stubSettings) Get() settings.Settings {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.s
}

func (x *stubSettings) set(s settings.Settings) {
	x.mu.Lock()
	x.s = s
	x.mu.Unlock()
}

type stubRecorder struct {
	mu      sync.Mutex
	records []string
}

func (r *stubRecorder) Record(subtitleID int64, track string, videoTime, offset float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fmt.Sprintf("%d/%s@%.1f+%.1f", subtitleID, track, videoTime, offset))
}

type schedulerFixture struct {
	bus       *events.Bus
	resolver  *subtitle.Resolver
	registry  *narration.Registry
	pool      *Pool
	runtime   *fakeRuntime
	scheduler *Scheduler
	prefs     *stubSettings
	recorder  *stubRecorder
}

func newFixture(t *testing.T, prober DurationProber) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		bus:      events.NewBus(nil),
		resolver: subtitle.NewResolver(nil),
		runtime:  newFakeRuntime(),
		prefs:    &stubSettings{s: settings.Settings{NarrationEnabled: true, NarrationVolume: 1.0}},
		recorder: &stubRecorder{},
	}
	f.registry = narration.NewRegistry(f.bus, nil)
	f.pool = NewPool(f.runtime.factory, prober, 1.0, f.bus, nil)
	f.scheduler = NewScheduler(f.resolver, f.registry, f.pool, stubURLs{}, f.prefs, f.recorder, 2*time.Second, f.bus, nil)

	t.Cleanup(func() {
		f.scheduler.Close()
		f.pool.Close()
		f.bus.Close()
	})
	return f
}

func (f *schedulerFixture) loadSubtitles(t *testing.T, subs ...subtitle.Subtitle) {
	t.Helper()
	idx, err := subtitle.NewIndex(subs)
	require.NoError(t, err)
	f.resolver.Replace(subtitle.RegistryCurrent, idx)
	f.bus.Publish(events.Event{
		Type:    events.TypeSubtitlesUpdated,
		Payload: events.SubtitlesUpdated{Registry: string(subtitle.RegistryCurrent), Count: idx.Len()},
	})
}

func TestStartAlignedPlaybackLifecycle(t *testing.T) {
	f := newFixture(t, fixedProber{d: 3 * time.Second})
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 10.0, End: 12.0, Text: "hello"})

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
	}))

	// Before the window, nothing plays
	f.scheduler.Tick(9.9, "report")
	assert.Nil(t, f.runtime.player("http://m/a.wav"))

	// Window entry starts playback at offset zero
	f.scheduler.Tick(10.0, "report")
	p := f.runtime.player("http://m/a.wav")
	require.NotNil(t, p)
	require.Equal(t, 1, p.playCount())
	assert.Equal(t, 0.0, p.lastOffset())

	// The probe widens the window from the 2s default to the real 3s
	require.Eventually(t, func() bool {
		ch, _ := f.pool.Ensure(1, "http://m/a.wav")
		_, known := ch.KnownDuration()
		return known
	}, time.Second, 5*time.Millisecond)

	// Already active: consecutive ticks are no-ops
	f.scheduler.Tick(11.5, "report")
	f.scheduler.Tick(12.5, "report")
	assert.Equal(t, 1, p.playCount())

	// Past the window end, no action is taken; the clip plays out
	f.scheduler.Tick(13.1, "report")
	assert.Equal(t, 1, p.playCount())
	assert.Equal(t, 0, p.pauses)

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, "1/original@10.0+0.0", f.recorder.records[0])
}

func TestTickIsIdempotentAtSameTime(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 5.0, End: 7.0})

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
	}))

	f.scheduler.Tick(5.5, "report")
	f.scheduler.Tick(5.5, "report")

	assert.Equal(t, 1, f.runtime.player("http://m/a.wav").playCount())
}

func TestFailedGenerationNeverScheduled(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 5.0, End: 7.0})

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: false},
	}))

	for _, tick := range []float64{4.0, 5.0, 5.5, 6.9, 7.5} {
		f.scheduler.Tick(tick, "report")
	}

	assert.Nil(t, f.runtime.player("http://m/a.wav"))
}

func TestNarrationWithoutSubtitleSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 5.0, End: 7.0})

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
		{SubtitleID: 99, Filename: "ghost.wav", Success: true},
	}))

	f.scheduler.Tick(5.5, "report")

	assert.NotNil(t, f.runtime.player("http://m/a.wav"))
	assert.Nil(t, f.runtime.player("http://m/ghost.wav"))
}

func TestOverlappingWindowsStartExactlyOne(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t,
		subtitle.Subtitle{ID: 1, Start: 10.0, End: 12.0},
		subtitle.Subtitle{ID: 2, Start: 10.5, End: 12.5},
	)

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
		{SubtitleID: 2, Filename: "b.wav", Success: true},
	}))

	// Both windows contain t=11; the later list entry wins and the
	// other handle is never started.
	f.scheduler.Tick(11.0, "report")

	assert.Nil(t, f.runtime.player("http://m/a.wav"))
	require.NotNil(t, f.runtime.player("http://m/b.wav"))
	assert.Equal(t, 1, f.runtime.player("http://m/b.wav").playCount())
}

func TestEmptyReplacementStopsPlayback(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 5.0, End: 7.0})

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
	}))

	f.scheduler.Tick(5.5, "report")
	_, _, ok := f.pool.Active()
	require.True(t, ok)

	// Upstream regeneration cleared the track mid-playback
	require.NoError(t, f.registry.Replace(narration.TrackOriginal, nil))

	_, _, ok = f.pool.Active()
	assert.False(t, ok)
	assert.GreaterOrEqual(t, f.runtime.player("http://m/a.wav").pauses, 1)
}

func TestSourceFlipStopsOldTrack(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 5.0, End: 7.0})

	require.NoError(t, f.registry.Replace(narration.TrackTranslated, []narration.Narration{
		{SubtitleID: 1, Filename: "t.wav", Success: true},
	}))

	f.scheduler.Tick(5.5, "report")
	_, track, ok := f.pool.Active()
	require.True(t, ok)
	require.Equal(t, narration.TrackTranslated, track)

	// Original arriving takes precedence as the scanned source
	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "o.wav", Success: true},
	}))

	track, ok = f.scheduler.ActiveTrack()
	require.True(t, ok)
	assert.Equal(t, narration.TrackOriginal, track)

	// Next tick starts the original-track clip
	f.scheduler.Tick(5.6, "report")
	_, track, ok = f.pool.Active()
	require.True(t, ok)
	assert.Equal(t, narration.TrackOriginal, track)
}

func TestDisablingNarrationPausesActive(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 5.0, End: 7.0})

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
	}))

	f.scheduler.Tick(5.5, "report")
	_, _, ok := f.pool.Active()
	require.True(t, ok)

	f.prefs.set(settings.Settings{NarrationEnabled: false, NarrationVolume: 1.0})
	f.scheduler.Tick(5.6, "report")

	_, _, ok = f.pool.Active()
	assert.False(t, ok)

	// Re-enabling resumes scheduling on the next tick
	f.prefs.set(settings.Settings{NarrationEnabled: true, NarrationVolume: 1.0})
	f.scheduler.Tick(5.7, "report")
	_, _, ok = f.pool.Active()
	assert.True(t, ok)
}

func TestNestedTickIsDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.loadSubtitles(t, subtitle.Subtitle{ID: 1, Start: 5.0, End: 7.0})

	require.NoError(t, f.registry.Replace(narration.TrackOriginal, []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
	}))

	// A recorder that re-enters the tick handler synchronously, the
	// way a nested runtime callback would.
	nested := &reentrantRecorder{scheduler: f.scheduler}
	f.scheduler.recorder = nested

	f.scheduler.Tick(5.5, "report")

	assert.Equal(t, 1, f.runtime.player("http://m/a.wav").playCount())
	assert.Equal(t, 1, nested.calls)
}

type reentrantRecorder struct {
	scheduler *Scheduler
	calls     int
}

func (r *reentrantRecorder) Record(subtitleID int64, track string, videoTime, offset float64) {
	r.calls++
	// Must be dropped by the re-entrancy guard
	r.scheduler.Tick(videoTime, "report")
}
