package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"

	"github.com/avolens/dubsync/internal/logger"
)

// StreamName is the SSE stream UI clients subscribe to.
const StreamName = "playback"

// Type identifies an event kind on the bus.
type Type string

const (
	TypeNarrationsUpdated Type = "narrations-updated"
	TypeSubtitlesUpdated  Type = "subtitles-updated"
	TypeActiveChanged     Type = "active-changed"
	TypeVolumeChanged     Type = "volume-changed"
	TypeUserInteraction   Type = "user-interaction"
)

// NarrationsUpdated is published after a narration track snapshot replacement.
type NarrationsUpdated struct {
	Track string `json:"track"`
	Count int    `json:"count"`
}

// SubtitlesUpdated is published after a subtitle registry snapshot replacement.
type SubtitlesUpdated struct {
	Registry string `json:"registry"`
	Count    int    `json:"count"`
}

// ActiveChanged is published when the active narration changes.
type ActiveChanged struct {
	SubtitleID int64   `json:"subtitle_id"`
	Track      string  `json:"track"`
	Playing    bool    `json:"playing"`
	Offset     float64 `json:"offset,omitempty"`
}

// VolumeChanged is published when the narration volume setting changes.
type VolumeChanged struct {
	Volume float64 `json:"volume"`
}

// UserInteraction is published when the front-end reports a user gesture.
// The channel pool uses it to retry playback refused by autoplay policy.
type UserInteraction struct{}

// Event pairs a type with its payload.
type Event struct {
	Type    Type        `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine; they must not block.
type Handler func(Event)

// Bus is an in-process publish/subscribe channel with typed payloads,
// bridged to an SSE stream for UI clients.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Type]map[int]Handler

	sse    *sse.Server
	logger logger.Logger
}

// NewBus creates a bus and its SSE bridge.
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNullLogger()
	}

	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(StreamName)

	return &Bus{
		subs:   make(map[Type]map[int]Handler),
		sse:    server,
		logger: log,
	}
}

// Subscribe registers a handler for an event type and returns an
// unsubscribe function. Callers must invoke it on teardown, including
// early-return paths.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// Publish dispatches the event to in-process subscribers and mirrors it
// onto the SSE stream.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type]))
	for _, h := range b.subs[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to encode event for SSE")
		return
	}

	b.sse.Publish(StreamName, &sse.Event{
		Event: []byte(ev.Type),
		Data:  data,
	})
}

// SSEHandler exposes the SSE endpoint for UI clients.
func (b *Bus) SSEHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r3labs/sse selects the stream via query parameter
		q := r.URL.Query()
		if q.Get("stream") == "" {
			q.Set("stream", StreamName)
			r.URL.RawQuery = q.Encode()
		}
		b.sse.ServeHTTP(w, r)
	}
}

// Close shuts down the SSE server and drops all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	b.subs = make(map[Type]map[int]Handler)
	b.mu.Unlock()

	b.sse.Close()
}
