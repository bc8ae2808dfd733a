package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avolens/dubsync/internal/logger"
	"github.com/avolens/dubsync/internal/metrics"
)

// maxProbeBytes bounds how much of a clip the prober will download
// looking for the data chunk. Narration clips are short; the header
// sits within the first few kilobytes.
const maxProbeBytes = 1 << 20

// Prober fetches a narration clip and reads its duration from the WAV
// header. Duration is unknown until the probe completes; the scheduler
// falls back to a default in the meantime.
type Prober struct {
	client *http.Client
	logger logger.Logger
}

// NewProber creates a prober with the given per-probe timeout.
func NewProber(timeout time.Duration, log logger.Logger) *Prober {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Prober{
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

// Duration fetches the clip at url and returns its audio duration.
func (p *Prober) Duration(ctx context.Context, url string) (time.Duration, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.ObserveProbe("error", time.Since(start).Seconds())
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.ObserveProbe("error", time.Since(start).Seconds())
		return 0, fmt.Errorf("failed to fetch clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProbe("error", time.Since(start).Seconds())
		return 0, fmt.Errorf("unexpected status %d fetching clip", resp.StatusCode)
	}

	dur, err := ParseWAVDuration(io.LimitReader(resp.Body, maxProbeBytes))
	if err != nil {
		metrics.ObserveProbe("parse_error", time.Since(start).Seconds())
		return 0, err
	}

	metrics.ObserveProbe("ok", time.Since(start).Seconds())

	p.logger.WithFields(map[string]interface{}{
		"url":         url,
		"duration_ms": dur.Milliseconds(),
	}).Debug("Probed clip duration")

	return dur, nil
}

// ParseWAVDuration reads a RIFF/WAVE stream and computes the duration
// from the fmt chunk byte rate and the data chunk size.
func ParseWAVDuration(r io.Reader) (time.Duration, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var byteRate uint32

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return 0, fmt.Errorf("failed to read chunk header: %w", err)
		}

		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return 0, fmt.Errorf("fmt chunk too small: %d bytes", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
			if byteRate == 0 {
				return 0, fmt.Errorf("fmt chunk has zero byte rate")
			}
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("data chunk before fmt chunk")
			}
			seconds := float64(size) / float64(byteRate)
			return time.Duration(seconds * float64(time.Second)), nil
		default:
			// Skip unknown chunks (LIST, fact, ...). Chunks are
			// word-aligned; odd sizes carry a pad byte.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return 0, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}
