package config

import (
	"fmt"
	"net/url"
	"os"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Media.Validate(); err != nil {
		return fmt.Errorf("media config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTP3Port < 1 || s.HTTP3Port > 65535 {
		return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
	}

	if s.TLSCertFile == "" {
		return fmt.Errorf("TLS certificate file is required")
	}

	if s.TLSKeyFile == "" {
		return fmt.Errorf("TLS key file is required")
	}

	// Check if certificate files exist
	if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
	}

	if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
	}

	if s.MaxIncomingStreams <= 0 {
		return fmt.Errorf("max_incoming_streams must be positive")
	}

	if s.MaxIncomingUniStreams <= 0 {
		return fmt.Errorf("max_incoming_uni_streams must be positive")
	}

	if s.EnableHTTP {
		if s.HTTPPort < 1 || s.HTTPPort > 65535 {
			return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
		}
		if s.HTTPPort == s.HTTP3Port {
			return fmt.Errorf("HTTP port must differ from HTTP3 port")
		}
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one redis address is required")
	}

	if r.DB < 0 || r.DB > 15 {
		return fmt.Errorf("invalid redis DB: %d", r.DB)
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", m.Port)
	}

	if m.Path == "" {
		return fmt.Errorf("metrics path is required")
	}

	return nil
}

func (m *MediaConfig) Validate() error {
	if m.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	u, err := url.Parse(m.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", u.Scheme)
	}

	if m.ProbeEnabled && m.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}

	return nil
}

func (p *PlaybackConfig) Validate() error {
	if p.DefaultClipDuration <= 0 {
		return fmt.Errorf("default_clip_duration must be positive")
	}

	if p.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}

	if p.MaxReportRate <= 0 {
		return fmt.Errorf("max_report_rate must be positive")
	}

	if p.ReportBurst <= 0 {
		return fmt.Errorf("report_burst must be positive")
	}

	if p.DefaultVolume < 0 || p.DefaultVolume > 1 {
		return fmt.Errorf("default_volume must be in [0,1], got %f", p.DefaultVolume)
	}

	return nil
}

func (h *HistoryConfig) Validate() error {
	if h.Enabled && h.Path == "" {
		return fmt.Errorf("history path is required when history is enabled")
	}

	return nil
}
