// Package throttle implements the adaptive inter-request delay shared by every
// CoinGecko call made during ticker ingestion.
package throttle

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/metric"
)

const (
	DefaultBase        = 300 * time.Millisecond
	DefaultMax         = 10 * time.Second
	DefaultQuietWindow = 5 * time.Second

	growthFactor = 2.0
	decayFactor  = 0.8
)

var timeoutGauge = metric.NewGaugeVec(&metric.GaugeVecOpts{
	Namespace: "coinboard",
	Subsystem: "throttle",
	Name:      "timeout_ms",
	Help:      "current adaptive throttle delay in milliseconds",
	Labels:    []string{"name"},
})

// Config bounds the adaptive timeout.
type Config struct {
	Base        time.Duration
	Max         time.Duration
	QuietWindow time.Duration
}

// Controller holds a single shared timeout. It doubles on rate-limit signals
// and decays toward Base once successes are spaced by more than QuietWindow.
type Controller struct {
	name string
	cfg  Config
	now  func() time.Time

	mu            sync.Mutex
	timeout       time.Duration
	lastSuccessAt time.Time
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithName labels the exported gauge.
func WithName(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.name = name
		}
	}
}

// New constructs a Controller starting at cfg.Base.
func New(cfg Config, opts ...Option) *Controller {
	if cfg.Base <= 0 {
		cfg.Base = DefaultBase
	}
	if cfg.Max < cfg.Base {
		cfg.Max = DefaultMax
		if cfg.Max < cfg.Base {
			cfg.Max = cfg.Base
		}
	}
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = DefaultQuietWindow
	}
	c := &Controller{
		name:    "coingecko",
		cfg:     cfg,
		now:     time.Now,
		timeout: cfg.Base,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish()
	return c
}

// Timeout returns the current delay.
func (c *Controller) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Config returns the bounds the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// OnRateLimited doubles the timeout, capped at Max.
func (c *Controller) OnRateLimited() {
	c.mu.Lock()
	next := scale(c.timeout, growthFactor)
	if next > c.cfg.Max {
		next = c.cfg.Max
	}
	c.timeout = next
	c.mu.Unlock()
	c.publish()
}

// OnSuccess records a completed call. The timeout decays only when the
// previous success is older than the quiet window.
func (c *Controller) OnSuccess() {
	now := c.now()
	c.mu.Lock()
	if !c.lastSuccessAt.IsZero() && now.Sub(c.lastSuccessAt) > c.cfg.QuietWindow {
		next := scale(c.timeout, decayFactor)
		if next < c.cfg.Base {
			next = c.cfg.Base
		}
		c.timeout = next
	}
	c.lastSuccessAt = now
	c.mu.Unlock()
	c.publish()
}

// Reset returns to Base. Called at the start of a bulk-add run, never mid-run.
func (c *Controller) Reset() {
	now := c.now()
	c.mu.Lock()
	c.timeout = c.cfg.Base
	c.lastSuccessAt = now
	c.mu.Unlock()
	c.publish()
}

// Wait sleeps for the current timeout. It returns ctx.Err() when the context
// ends first.
func (c *Controller) Wait(ctx context.Context) error {
	d := c.Timeout()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(math.Round(float64(d) * factor))
}

func (c *Controller) publish() {
	timeoutGauge.Set(float64(c.Timeout().Milliseconds()), c.name)
}
