package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validPlayback() PlaybackConfig {
	return PlaybackConfig{
		DefaultClipDuration: 2 * time.Second,
		TickInterval:        250 * time.Millisecond,
		MaxReportRate:       66.0,
		ReportBurst:         10,
		DefaultVolume:       1.0,
	}
}

func TestPlaybackConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlaybackConfig)
		wantErr string
	}{
		{"valid", func(p *PlaybackConfig) {}, ""},
		{"zero clip duration", func(p *PlaybackConfig) { p.DefaultClipDuration = 0 }, "default_clip_duration"},
		{"zero tick interval", func(p *PlaybackConfig) { p.TickInterval = 0 }, "tick_interval"},
		{"zero report rate", func(p *PlaybackConfig) { p.MaxReportRate = 0 }, "max_report_rate"},
		{"zero burst", func(p *PlaybackConfig) { p.ReportBurst = 0 }, "report_burst"},
		{"volume too high", func(p *PlaybackConfig) { p.DefaultVolume = 1.5 }, "default_volume"},
		{"volume negative", func(p *PlaybackConfig) { p.DefaultVolume = -0.1 }, "default_volume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlayback()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestMediaConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MediaConfig
		wantErr bool
	}{
		{"valid http", MediaConfig{BaseURL: "http://media.local/clips", ProbeEnabled: true, ProbeTimeout: time.Second}, false},
		{"valid https", MediaConfig{BaseURL: "https://media.local/clips"}, false},
		{"empty", MediaConfig{}, true},
		{"bad scheme", MediaConfig{BaseURL: "ftp://media.local"}, true},
		{"probe without timeout", MediaConfig{BaseURL: "http://x", ProbeEnabled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggingConfigValidate(t *testing.T) {
	cfg := LoggingConfig{Level: "info", Format: "json"}
	assert.NoError(t, cfg.Validate())

	cfg.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg.Level = "debug"
	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestHistoryConfigValidate(t *testing.T) {
	assert.NoError(t, (&HistoryConfig{Enabled: false}).Validate())
	assert.Error(t, (&HistoryConfig{Enabled: true}).Validate())
	assert.NoError(t, (&HistoryConfig{Enabled: true, Path: "/tmp/h.db"}).Validate())
}
