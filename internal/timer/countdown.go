// Package timer provides the per-session exam countdown.
package timer

import (
	"sync"
	"time"
)

// DefaultInterval is the production tick period.
const DefaultInterval = time.Second

// Tick is delivered once per interval while a countdown runs.
type Tick struct {
	Generation uint64
	Remaining  int
}

// Callbacks receive countdown events. They run on the countdown goroutine and
// must not call back into the same Countdown synchronously while holding locks
// that Start or Stop would need.
type Callbacks struct {
	OnTick   func(Tick)
	OnExpire func(generation uint64)
}

// Countdown is a single-ticking countdown. At most one countdown is running at a
// time; Start replaces any previous one. Every Start gets a new generation and
// callbacks carry it, so receivers can drop events from a superseded run.
type Countdown struct {
	interval time.Duration
	cb       Callbacks

	mu      sync.Mutex
	gen     uint64
	stop    chan struct{}
	running bool
}

// NewCountdown creates a stopped countdown. interval <= 0 uses DefaultInterval.
func NewCountdown(interval time.Duration, cb Callbacks) *Countdown {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Countdown{interval: interval, cb: cb}
}

// Start stops any running countdown and begins a new one of total ticks.
// total <= 0 expires immediately. Returns the generation of the new run.
func (c *Countdown) Start(total int) uint64 {
	c.mu.Lock()
	c.stopLocked()
	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	c.stop = stop
	c.running = true
	c.mu.Unlock()

	go c.run(gen, total, stop)
	return gen
}

// Stop halts the running countdown. Idempotent and safe after expiry. It does
// not wait for an in-flight callback to return.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// Running reports whether a countdown is in progress.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Generation returns the generation of the latest run.
func (c *Countdown) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Countdown) stopLocked() {
	if !c.running {
		return
	}
	close(c.stop)
	c.running = false
	c.gen++
}

func (c *Countdown) run(gen uint64, total int, stop <-chan struct{}) {
	if total <= 0 {
		c.expire(gen)
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	remaining := total
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining--
			if remaining <= 0 {
				c.expire(gen)
				return
			}
			if !c.current(gen) {
				return
			}
			if c.cb.OnTick != nil {
				c.cb.OnTick(Tick{Generation: gen, Remaining: remaining})
			}
		}
	}
}

// expire marks the run finished and fires OnExpire once, unless it was superseded.
func (c *Countdown) expire(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	if c.cb.OnExpire != nil {
		c.cb.OnExpire(gen)
	}
}

func (c *Countdown) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.gen == gen
}
