package playback

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/avolens/dubsync/internal/logger"
)

// TickFunc receives each accepted clock sample.
type TickFunc func(t float64, source string)

// Clock merges two time feeds into one tick stream: position reports
// pushed by the external player, and an internal ticker that
// extrapolates between reports so windows are not missed when the
// player reports slowly. Reports are rate limited; engines fire time
// updates anywhere from 4 to 66 Hz and the scheduler needs no more.
type Clock struct {
	mu         sync.Mutex
	t          float64
	playing    bool
	lastSample time.Time

	limiter  *rate.Limiter
	interval time.Duration
	onTick   TickFunc
	logger   logger.Logger

	stop chan struct{}
	done chan struct{}
}

// NewClock creates a clock ticking at interval, dropping external
// reports beyond maxReportRate per second.
func NewClock(interval time.Duration, maxReportRate float64, burst int, onTick TickFunc, log logger.Logger) *Clock {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if burst < 1 {
		burst = 1
	}
	return &Clock{
		limiter:  rate.NewLimiter(rate.Limit(maxReportRate), burst),
		interval: interval,
		onTick:   onTick,
		logger:   log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the internal ticker.
func (c *Clock) Start() {
	go c.run()
}

func (c *Clock) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			if !c.playing || c.lastSample.IsZero() {
				c.mu.Unlock()
				continue
			}
			elapsed := now.Sub(c.lastSample)
			if elapsed < c.interval {
				// A fresh external report already covers this slot.
				c.mu.Unlock()
				continue
			}
			c.t += elapsed.Seconds()
			c.lastSample = now
			t := c.t
			c.mu.Unlock()

			c.onTick(t, "internal")
		}
	}
}

// Report accepts an externally reported playback position. Regressions
// are allowed; they represent user seeks. Returns false when the report
// was dropped by rate limiting.
func (c *Clock) Report(t float64, playing bool) bool {
	if !c.limiter.Allow() {
		return false
	}

	c.mu.Lock()
	c.t = t
	c.playing = playing
	c.lastSample = time.Now()
	c.mu.Unlock()

	if playing {
		c.onTick(t, "report")
	}
	return true
}

// Now returns the clock's current playback position and state.
func (c *Clock) Now() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t, c.playing
}

// Stop halts the internal ticker and waits for it to exit.
func (c *Clock) Stop() {
	close(c.stop)
	<-c.done
}
