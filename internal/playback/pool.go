package playback

import (
	"context"
	"sync"
	"time"

	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/logger"
	"github.com/avolens/dubsync/internal/metrics"
	"github.com/avolens/dubsync/internal/narration"
)

// DurationProber resolves a clip URL to its audio duration.
type DurationProber interface {
	Duration(ctx context.Context, url string) (time.Duration, error)
}

// active tracks the single narration considered playing.
type active struct {
	channel *Channel
	track   narration.Track
}

// pendingRetry holds a switch refused by autoplay policy, replayed once
// on the next user interaction.
type pendingRetry struct {
	channel *Channel
	track   narration.Track
	offset  float64
}

// Pool owns one playback handle per narration subtitle ID. At most one
// handle plays at a time; switching pauses the previous handle without
// destroying it.
type Pool struct {
	mu           sync.Mutex
	channels     map[int64]*Channel
	active       *active
	volume       float64
	retry        *pendingRetry
	retryEnabled bool
	closed       bool

	factory PlayerFactory
	prober  DurationProber
	bus     *events.Bus
	logger  logger.Logger

	// onDuration is invoked after a probe resolves so the scheduler can
	// tighten the clip's play window.
	onDuration func(subtitleID int64, d time.Duration)

	unsubs []func()
}

// NewPool creates a pool. The prober may be nil, in which case clip
// durations stay at the scheduler's default. Volume changes and user
// interactions arrive over the bus.
func NewPool(factory PlayerFactory, prober DurationProber, volume float64, bus *events.Bus, log logger.Logger) *Pool {
	if log == nil {
		log = logger.NewNullLogger()
	}

	p := &Pool{
		channels:     make(map[int64]*Channel),
		volume:       volume,
		retryEnabled: true,
		factory:      factory,
		prober:       prober,
		bus:          bus,
		logger:       log,
	}

	if bus != nil {
		p.unsubs = append(p.unsubs,
			bus.Subscribe(events.TypeVolumeChanged, func(ev events.Event) {
				if v, ok := ev.Payload.(events.VolumeChanged); ok {
					p.SetVolume(v.Volume)
				}
			}),
			bus.Subscribe(events.TypeUserInteraction, func(events.Event) {
				p.retryPending()
			}),
		)
	}

	return p
}

// SetAutoplayRetry controls whether a switch refused by autoplay policy
// is held for replay on the next user interaction. Enabled by default.
func (p *Pool) SetAutoplayRetry(enabled bool) {
	p.mu.Lock()
	p.retryEnabled = enabled
	if !enabled {
		p.retry = nil
	}
	p.mu.Unlock()
}

// SetDurationCallback registers the probe-completion hook. Must be set
// before the first Ensure call.
func (p *Pool) SetDurationCallback(fn func(subtitleID int64, d time.Duration)) {
	p.mu.Lock()
	p.onDuration = fn
	p.mu.Unlock()
}

// Ensure returns the channel for a subtitle ID, creating it on first
// need. Creation kicks off an async duration probe. A handle whose URL
// no longer matches (the ID now points at a different clip) is replaced.
func (p *Pool) Ensure(subtitleID int64, url string) (*Channel, error) {
	p.mu.Lock()
	if ch, ok := p.channels[subtitleID]; ok {
		if ch.URL == url {
			p.mu.Unlock()
			return ch, nil
		}
		delete(p.channels, subtitleID)
		if p.active != nil && p.active.channel == ch {
			p.active = nil
		}
		p.mu.Unlock()
		ch.player.Pause()
		ch.player.Close()
	} else {
		p.mu.Unlock()
	}

	player, err := p.factory(url, func() { p.handleEnded(subtitleID) })
	if err != nil {
		return nil, err
	}

	ch := &Channel{SubtitleID: subtitleID, URL: url, player: player}

	p.mu.Lock()
	if existing, ok := p.channels[subtitleID]; ok {
		p.mu.Unlock()
		player.Close()
		return existing, nil
	}
	p.channels[subtitleID] = ch
	count := len(p.channels)
	prober := p.prober
	p.mu.Unlock()

	metrics.SetChannelsOpen(count)

	if prober != nil {
		go p.probe(ch)
	}

	return ch, nil
}

func (p *Pool) probe(ch *Channel) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := p.prober.Duration(ctx, ch.URL)
	if err != nil {
		p.logger.WithError(err).WithField("url", ch.URL).Warn("Failed to probe clip duration")
		return
	}

	ch.setDuration(d)

	p.mu.Lock()
	fn := p.onDuration
	p.mu.Unlock()
	if fn != nil {
		fn(ch.SubtitleID, d)
	}
}

// handleEnded clears the active narration when its clip finishes.
func (p *Pool) handleEnded(subtitleID int64) {
	p.mu.Lock()
	if p.active == nil || p.active.channel.SubtitleID != subtitleID {
		p.mu.Unlock()
		return
	}
	track := p.active.track
	p.active = nil
	p.mu.Unlock()

	metrics.SetActiveNarration(false)
	p.publishActive(subtitleID, track, false, 0)
}

// SwitchTo makes the channel the active narration, starting playback at
// an offset derived from how far t has advanced past the alignment
// reference. Offsets outside [0, duration) clamp to zero.
func (p *Pool) SwitchTo(ch *Channel, track narration.Track, alignAt, t float64) error {
	offset := t - alignAt
	if offset < 0 {
		offset = 0
	}
	if d, known := ch.KnownDuration(); known && offset >= d.Seconds() {
		offset = 0
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if p.active != nil && p.active.channel.SubtitleID == ch.SubtitleID && p.active.track == track {
		p.mu.Unlock()
		return nil
	}
	if p.active != nil {
		p.active.channel.player.Pause()
	}
	p.active = &active{channel: ch, track: track}
	p.retry = nil
	volume := p.volume
	p.mu.Unlock()

	ch.player.SetVolume(volume)

	if err := ch.player.Play(offset); err != nil {
		if err == ErrAutoplayBlocked {
			p.mu.Lock()
			if p.retryEnabled {
				p.retry = &pendingRetry{channel: ch, track: track, offset: offset}
			}
			p.mu.Unlock()
			p.logger.WithField("subtitle_id", ch.SubtitleID).Info("Playback deferred until user interaction")
			return nil
		}
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
		return err
	}

	metrics.IncSwitch(string(track))
	metrics.SetActiveNarration(true)
	p.publishActive(ch.SubtitleID, track, true, offset)

	return nil
}

// retryPending replays a switch that autoplay policy refused. One shot:
// the pending retry is consumed whether or not it succeeds.
func (p *Pool) retryPending() {
	p.mu.Lock()
	r := p.retry
	p.retry = nil
	p.mu.Unlock()

	if r == nil {
		return
	}

	metrics.IncAutoplayRetry()

	if err := r.channel.player.Play(r.offset); err != nil {
		p.logger.WithError(err).WithField("subtitle_id", r.channel.SubtitleID).Warn("Deferred playback retry failed")
		return
	}

	metrics.IncSwitch(string(r.track))
	metrics.SetActiveNarration(true)
	p.publishActive(r.channel.SubtitleID, r.track, true, r.offset)
}

// Active returns the currently playing narration, if any.
func (p *Pool) Active() (int64, narration.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return 0, "", false
	}
	return p.active.channel.SubtitleID, p.active.track, true
}

// ClearActive pauses and forgets the active narration. Used when its
// track is emptied or narration playback is disabled.
func (p *Pool) ClearActive() {
	p.mu.Lock()
	if p.active == nil {
		p.retry = nil
		p.mu.Unlock()
		return
	}
	a := p.active
	p.active = nil
	p.retry = nil
	p.mu.Unlock()

	a.channel.player.Pause()
	metrics.SetActiveNarration(false)
	p.publishActive(a.channel.SubtitleID, a.track, false, 0)
}

// SetVolume applies the narration volume to every handle in the pool,
// playing or not.
func (p *Pool) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	handles := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		handles = append(handles, ch)
	}
	p.mu.Unlock()

	for _, ch := range handles {
		ch.player.SetVolume(v)
	}
}

// Retain drops every channel whose subtitle ID is not in keep. Called
// after a snapshot replacement; handles for removed narrations are
// closed, surviving ones keep their probed durations.
func (p *Pool) Retain(keep map[int64]struct{}) {
	p.mu.Lock()
	var dropped []*Channel
	for id, ch := range p.channels {
		if _, ok := keep[id]; !ok {
			dropped = append(dropped, ch)
			delete(p.channels, id)
		}
	}
	clearActive := false
	if p.active != nil {
		if _, ok := keep[p.active.channel.SubtitleID]; !ok {
			clearActive = true
		}
	}
	count := len(p.channels)
	p.mu.Unlock()

	if clearActive {
		p.ClearActive()
	}
	for _, ch := range dropped {
		ch.player.Pause()
		ch.player.Close()
	}
	metrics.SetChannelsOpen(count)
}

// Close pauses everything and releases all handles.
func (p *Pool) Close() {
	p.ClearActive()

	p.mu.Lock()
	p.closed = true
	channels := p.channels
	p.channels = make(map[int64]*Channel)
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	for _, ch := range channels {
		ch.player.Pause()
		ch.player.Close()
	}
	metrics.SetChannelsOpen(0)
}

func (p *Pool) publishActive(subtitleID int64, track narration.Track, playing bool, offset float64) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{
		Type: events.TypeActiveChanged,
		Payload: events.ActiveChanged{
			SubtitleID: subtitleID,
			Track:      string(track),
			Playing:    playing,
			Offset:     offset,
		},
	})
}
