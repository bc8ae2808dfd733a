// Package health runs dependency probes and serves the liveness and
// readiness endpoints.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the reported health of a component.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Check is one probe result.
type Check struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	LastChecked time.Time `json:"last_checked"`
	DurationMS  float64   `json:"duration_ms"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Manager runs registered checkers and caches their latest results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	results  map[string]*Check
	logger   *logrus.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		results: make(map[string]*Check),
		logger:  logger,
	}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.logger.WithField("checker", c.Name()).Debug("Registered health checker")
}

// RunChecks probes all dependencies concurrently and returns the fresh
// results. Each probe gets its own timeout.
func (m *Manager) RunChecks(ctx context.Context) map[string]*Check {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	out := make(chan *Check, len(checkers))

	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			start := time.Now()
			err := c.Check(probeCtx)
			elapsed := time.Since(start)

			check := &Check{
				Name:        c.Name(),
				Status:      StatusOK,
				LastChecked: time.Now(),
				DurationMS:  float64(elapsed.Milliseconds()),
			}
			if err != nil {
				check.Status = StatusDown
				check.Message = err.Error()
				m.logger.WithFields(logrus.Fields{
					"checker": c.Name(),
					"error":   err,
				}).Error("Health check failed")
			}

			out <- check
		}(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[string]*Check, len(checkers))
	for check := range out {
		results[check.Name] = check
		m.mu.Lock()
		m.results[check.Name] = check
		m.mu.Unlock()
	}

	return results
}

// Results returns copies of the latest cached results.
func (m *Manager) Results() map[string]*Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]*Check, len(m.results))
	for name, check := range m.results {
		c := *check
		results[name] = &c
	}
	return results
}

// OverallStatus folds the cached results into one status.
func (m *Manager) OverallStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.results) == 0 {
		return StatusDown
	}

	status := StatusOK
	for _, check := range m.results {
		switch check.Status {
		case StatusDown:
			return StatusDown
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// StartPeriodicChecks re-probes on the given interval until the context
// is cancelled.
func (m *Manager) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			m.RunChecks(ctx)
		case <-ctx.Done():
			m.logger.Info("Stopping periodic health checks")
			return
		}
	}
}
