package playback

import "sync"

// RemotePlayer is the engine-side mirror of an audio element owned by
// the front-end. The front-end follows the active-changed events on the
// SSE stream; this handle tracks what it was told to do so status
// queries reflect the commanded state.
type RemotePlayer struct {
	mu      sync.Mutex
	url     string
	playing bool
	offset  float64
	volume  float64
}

// NewRemoteFactory returns a PlayerFactory producing remote handles.
func NewRemoteFactory() PlayerFactory {
	return func(url string, onEnded func()) (Player, error) {
		return &RemotePlayer{url: url, volume: 1.0}, nil
	}
}

// Play records the commanded playback start.
func (p *RemotePlayer) Play(offset float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.offset = offset
	return nil
}

// Pause records the commanded stop.
func (p *RemotePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// SetVolume records the commanded volume.
func (p *RemotePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

// Close releases the handle.
func (p *RemotePlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// State reports the last commanded playback state.
func (p *RemotePlayer) State() (playing bool, offset, volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing, p.offset, p.volume
}
