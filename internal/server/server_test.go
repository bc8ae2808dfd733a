package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolens/dubsync/internal/config"
	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/history"
	"github.com/avolens/dubsync/internal/media"
	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/playback"
	"github.com/avolens/dubsync/internal/settings"
	"github.com/avolens/dubsync/internal/subtitle"
)

type nullPlayer struct {
	mu     sync.Mutex
	plays  int
	volume float64
}

func (p *nullPlayer) Play(offset float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *nullPlayer) Pause() {}

func (p *nullPlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *nullPlayer) Close() {}

type apiFixture struct {
	server *Server
	bus    *events.Bus
	clock  *playback.Clock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{}
	cfg.Media.BaseURL = "http://media.local/clips"
	cfg.Playback.DefaultClipDuration = 2 * time.Second

	bus := events.NewBus(nil)
	t.Cleanup(bus.Close)

	resolver := subtitle.NewResolver(nil)
	registry := narration.NewRegistry(bus, nil)

	store, err := settings.NewStore(context.Background(), redisClient,
		settings.Settings{NarrationEnabled: true, NarrationVolume: 1.0, VideoVolume: 1.0}, bus, nil)
	require.NoError(t, err)

	pool := playback.NewPool(func(url string, onEnded func()) (playback.Player, error) {
		return &nullPlayer{}, nil
	}, nil, 1.0, bus, nil)
	t.Cleanup(pool.Close)

	journal, err := history.Open(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	scheduler := playback.NewScheduler(resolver, registry, pool,
		media.NewURLResolver(cfg.Media.BaseURL), store, journal,
		cfg.Playback.DefaultClipDuration, bus, nil)
	t.Cleanup(scheduler.Close)

	clock := playback.NewClock(time.Hour, 1000, 100, scheduler.Tick, nil)

	srv := New(cfg, log, redisClient, Deps{
		Bus:        bus,
		Subtitles:  resolver,
		Narrations: registry,
		Settings:   store,
		Clock:      clock,
		Scheduler:  scheduler,
		Pool:       pool,
		Journal:    journal,
	})

	return &apiFixture{server: srv, bus: bus, clock: clock}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.GetRouter().ServeHTTP(rec, req)
	return rec
}

func TestReplaceAndListSubtitles(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "PUT", "/api/v1/subtitles/current", []subtitle.Subtitle{
		{ID: 2, Start: 15.0, End: 17.0, Text: "second"},
		{ID: 1, Start: 10.0, End: 12.0, Text: "first"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "GET", "/api/v1/subtitles/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var subs []subtitle.Subtitle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs, 2)
	assert.Equal(t, int64(1), subs[0].ID) // ordered by start time
}

func TestReplaceSubtitlesRejectsUnknownRegistry(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "PUT", "/api/v1/subtitles/bogus", []subtitle.Subtitle{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceSubtitlesRejectsInvalidEntries(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "PUT", "/api/v1/subtitles/current", []subtitle.Subtitle{
		{ID: 1, Start: 12.0, End: 10.0},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceNarrations(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "PUT", "/api/v1/narrations/original", []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "original_only", resp["state"])

	rec = f.do(t, "GET", "/api/v1/narrations/original", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []narration.Narration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "a.wav", list[0].Filename)
}

func TestReplaceNarrationsRejectsInvalidEntry(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "PUT", "/api/v1/narrations/original", []narration.Narration{
		{SubtitleID: 0, Filename: "a.wav", Success: true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimeReportDrivesPlayback(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "PUT", "/api/v1/subtitles/current", []subtitle.Subtitle{
		{ID: 1, Start: 10.0, End: 12.0, Text: "hello"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "PUT", "/api/v1/narrations/original", []narration.Narration{
		{SubtitleID: 1, Filename: "a.wav", Success: true},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "POST", "/api/v1/playback/time", map[string]interface{}{"time": 10.5, "playing": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var ack map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack["accepted"])

	rec = f.do(t, "GET", "/api/v1/playback/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Time        float64 `json:"time"`
		Playing     bool    `json:"playing"`
		SourceState string  `json:"source_state"`
		ActiveTrack string  `json:"active_track"`
		Active      *struct {
			SubtitleID int64  `json:"subtitle_id"`
			Track      string `json:"track"`
		} `json:"active_narration"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 10.5, status.Time)
	assert.True(t, status.Playing)
	assert.Equal(t, "original_only", status.SourceState)
	assert.Equal(t, "original", status.ActiveTrack)
	require.NotNil(t, status.Active)
	assert.Equal(t, int64(1), status.Active.SubtitleID)

	// The switch was journaled
	rec = f.do(t, "GET", "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var switches []history.Switch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &switches))
	require.Len(t, switches, 1)
	assert.Equal(t, int64(1), switches[0].SubtitleID)
	assert.InDelta(t, 0.5, switches[0].Offset, 1e-9)
}

func TestTimeReportRejectsNegativeTime(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "POST", "/api/v1/playback/time", map[string]interface{}{"time": -1.0, "playing": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "GET", "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got settings.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.NarrationEnabled)

	// Partial update: only the narration volume changes
	rec = f.do(t, "PUT", "/api/v1/settings", map[string]interface{}{"narration_volume": 0.5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "GET", "/api/v1/settings", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 0.5, got.NarrationVolume)
	assert.True(t, got.NarrationEnabled)
}

func TestSettingsRejectsOutOfRangeVolume(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "PUT", "/api/v1/settings", map[string]interface{}{"narration_volume": 1.5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInteractionEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	seen := 0
	defer f.bus.Subscribe(events.TypeUserInteraction, func(events.Event) { seen++ })()

	rec := f.do(t, "POST", "/api/v1/playback/interaction", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, seen)
}

func TestVersionEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "GET", "/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestLiveEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "GET", "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "GET", "/api/v1/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestRequestIDPropagation(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest("GET", "/version", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	f.server.GetRouter().ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))

	rec = f.do(t, "GET", "/version", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/settings", nil)
	rec := httptest.NewRecorder()
	f.server.GetRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHistoryLimitValidation(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "GET", "/api/v1/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
