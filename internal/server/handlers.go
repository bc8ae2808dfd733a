package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/avolens/dubsync/internal/errors"
	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/history"
	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/subtitle"
	"github.com/avolens/dubsync/pkg/version"
)

// handleVersion handles the /version endpoint.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, http.StatusOK, version.GetInfo())
}

func parseRegistryName(raw string) (subtitle.RegistryName, error) {
	switch name := subtitle.RegistryName(raw); name {
	case subtitle.RegistryCurrent, subtitle.RegistryOriginal, subtitle.RegistryTranslated:
		return name, nil
	default:
		return "", fmt.Errorf("unknown subtitle registry %q", raw)
	}
}

func parseTrack(raw string) (narration.Track, error) {
	switch track := narration.Track(raw); track {
	case narration.TrackOriginal, narration.TrackTranslated:
		return track, nil
	default:
		return "", fmt.Errorf("unknown narration track %q", raw)
	}
}

// handleReplaceSubtitles ingests a full subtitle snapshot for one registry.
func (s *Server) handleReplaceSubtitles(w http.ResponseWriter, r *http.Request) {
	name, err := parseRegistryName(mux.Vars(r)["registry"])
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	var subs []subtitle.Subtitle
	if err := json.NewDecoder(r.Body).Decode(&subs); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("request body must be a JSON array of subtitles"))
		return
	}

	idx, err := subtitle.NewIndex(subs)
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	s.deps.Subtitles.Replace(name, idx)
	s.deps.Bus.Publish(events.Event{
		Type:    events.TypeSubtitlesUpdated,
		Payload: events.SubtitlesUpdated{Registry: string(name), Count: idx.Len()},
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"registry": string(name),
		"count":    idx.Len(),
	})
}

// handleListSubtitles returns the current snapshot for one registry.
func (s *Server) handleListSubtitles(w http.ResponseWriter, r *http.Request) {
	name, err := parseRegistryName(mux.Vars(r)["registry"])
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	idx := s.deps.Subtitles.Get(name)
	subs := idx.All()
	if subs == nil {
		subs = []subtitle.Subtitle{}
	}
	s.writeJSON(w, http.StatusOK, subs)
}

// handleReplaceNarrations ingests a full narration snapshot for one track.
// An empty array is a valid snapshot and stops any clip playing from
// that track.
func (s *Server) handleReplaceNarrations(w http.ResponseWriter, r *http.Request) {
	track, err := parseTrack(mux.Vars(r)["track"])
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	var list []narration.Narration
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("request body must be a JSON array of narrations"))
		return
	}

	if err := s.deps.Narrations.Replace(track, list); err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"track": string(track),
		"count": len(list),
		"state": string(s.deps.Narrations.State()),
	})
}

// handleListNarrations returns the current snapshot for one track.
func (s *Server) handleListNarrations(w http.ResponseWriter, r *http.Request) {
	track, err := parseTrack(mux.Vars(r)["track"])
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	list := s.deps.Narrations.List(track)
	if list == nil {
		list = []narration.Narration{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

type timeReport struct {
	Time    float64 `json:"time"`
	Playing bool    `json:"playing"`
}

// handleTimeReport accepts an externally reported playback position.
func (s *Server) handleTimeReport(w http.ResponseWriter, r *http.Request) {
	var report timeReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("request body must be a time report"))
		return
	}
	if report.Time < 0 {
		s.writeError(w, r, apperrors.NewValidationError("time must not be negative"))
		return
	}

	accepted := s.deps.Clock.Report(report.Time, report.Playing)
	s.writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

type statusResponse struct {
	Time        float64 `json:"time"`
	Playing     bool    `json:"playing"`
	SourceState string  `json:"source_state"`
	ActiveTrack string  `json:"active_track,omitempty"`
	Active      *struct {
		SubtitleID int64  `json:"subtitle_id"`
		Track      string `json:"track"`
	} `json:"active_narration,omitempty"`
}

// handleStatus reports the engine's current playback picture.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, playing := s.deps.Clock.Now()

	resp := statusResponse{
		Time:        t,
		Playing:     playing,
		SourceState: string(s.deps.Narrations.State()),
	}

	if track, ok := s.deps.Scheduler.ActiveTrack(); ok {
		resp.ActiveTrack = string(track)
	}

	if id, track, ok := s.deps.Pool.Active(); ok {
		resp.Active = &struct {
			SubtitleID int64  `json:"subtitle_id"`
			Track      string `json:"track"`
		}{SubtitleID: id, Track: string(track)}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleInteraction records a user gesture, unblocking any playback the
// runtime refused under autoplay policy.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	s.deps.Bus.Publish(events.Event{
		Type:    events.TypeUserInteraction,
		Payload: events.UserInteraction{},
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSettings returns the persisted playback preferences.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

// handlePutSettings replaces the playback preferences.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var next struct {
		NarrationEnabled *bool    `json:"narration_enabled"`
		NarrationVolume  *float64 `json:"narration_volume"`
		VideoVolume      *float64 `json:"video_volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("request body must be a settings object"))
		return
	}

	// Partial updates: absent fields keep their current value
	current := s.deps.Settings.Get()
	if next.NarrationEnabled != nil {
		current.NarrationEnabled = *next.NarrationEnabled
	}
	if next.NarrationVolume != nil {
		current.NarrationVolume = *next.NarrationVolume
	}
	if next.VideoVolume != nil {
		current.VideoVolume = *next.VideoVolume
	}

	if err := s.deps.Settings.Update(r.Context(), current); err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, current)
}

// handleHistory returns recent narration switches, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		s.writeJSON(w, http.StatusOK, []history.Switch{})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, apperrors.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	switches, err := s.deps.Journal.Recent(limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if switches == nil {
		switches = []history.Switch{}
	}
	s.writeJSON(w, http.StatusOK, switches)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, err)
}
