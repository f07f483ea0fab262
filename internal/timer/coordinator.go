// Package timer runs the server-side countdown for active exam attempts. One
// coordinator exists per attempt; it ticks once a second, reconciles against
// the persisted remaining time on a coarser interval, fires each threshold at
// most once per activation, and forces submission at expiry. Stopping a
// coordinator prevents any further callbacks; a resumed attempt gets a fresh
// coordinator seeded from persisted state.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Threshold identifies a one-shot countdown notification.
type Threshold string

const (
	ThresholdWarning Threshold = "warning"
	ThresholdDanger  Threshold = "danger"
	ThresholdExpiry  Threshold = "expiry"
)

// Event is a threshold crossing pushed to subscribers.
type Event struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	Threshold        Threshold `json:"threshold"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// RemainingFunc fetches the authoritative remaining seconds from storage.
type RemainingFunc func(ctx context.Context) (int, error)

// ExpireFunc forces attempt submission when the countdown reaches zero. It
// must be idempotent; the coordinator retries at the next tick on error.
type ExpireFunc func(ctx context.Context) error

// Options configures a coordinator. Zero values fall back to defaults.
type Options struct {
	WarningSeconds int           // default 600
	DangerSeconds  int           // default 300
	TickInterval   time.Duration // default 1s
	ReconcileEvery int           // ticks between storage reconciles, default 30
}

func (o Options) withDefaults() Options {
	if o.WarningSeconds == 0 {
		o.WarningSeconds = 600
	}
	if o.DangerSeconds == 0 {
		o.DangerSeconds = 300
	}
	if o.TickInterval == 0 {
		o.TickInterval = time.Second
	}
	if o.ReconcileEvery == 0 {
		o.ReconcileEvery = 30
	}
	return o
}

// Coordinator counts down one attempt's active section.
type Coordinator struct {
	attemptID   uuid.UUID
	opts        Options
	remainingFn RemainingFunc
	expireFn    ExpireFunc
	log         zerolog.Logger

	mu          sync.Mutex
	remaining   int
	fired       map[Threshold]bool
	subscribers []chan Event

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a coordinator seeded with the persisted remaining seconds.
func New(attemptID uuid.UUID, seedSeconds int, remainingFn RemainingFunc, expireFn ExpireFunc, opts Options, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		attemptID:   attemptID,
		opts:        opts.withDefaults(),
		remainingFn: remainingFn,
		expireFn:    expireFn,
		log:         log.With().Str("component", "timer").Str("attempt_id", attemptID.String()).Logger(),
		remaining:   seedSeconds,
		fired:       make(map[Threshold]bool),
		stop:        make(chan struct{}),
	}
}

// Run drives the countdown until expiry, Stop, or context cancellation.
// Call in a goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	// Fire immediately for attempts resumed inside a threshold window.
	c.checkThresholds(ctx)

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			ticks++
			c.tick(ctx, ticks)
			if c.expired() {
				return
			}
		}
	}
}

func (c *Coordinator) tick(ctx context.Context, ticks int) {
	c.mu.Lock()
	if c.remaining > 0 {
		c.remaining--
	}
	c.mu.Unlock()

	if ticks%c.opts.ReconcileEvery == 0 {
		c.reconcile(ctx)
	}

	c.checkThresholds(ctx)
}

// reconcile pulls the server-held remaining seconds and keeps the lower of
// the two values, tolerating drift from disconnects. Fetch failures are
// logged and skipped; the local countdown keeps going.
func (c *Coordinator) reconcile(ctx context.Context) {
	persisted, err := c.remainingFn(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Reconcile fetch failed")
		return
	}

	c.mu.Lock()
	if persisted < c.remaining {
		c.remaining = persisted
	}
	c.mu.Unlock()
}

func (c *Coordinator) checkThresholds(ctx context.Context) {
	c.mu.Lock()
	remaining := c.remaining
	var crossed []Threshold
	if remaining <= 0 && !c.fired[ThresholdExpiry] {
		crossed = append(crossed, ThresholdExpiry)
	}
	if remaining > 0 && remaining <= c.opts.DangerSeconds && !c.fired[ThresholdDanger] {
		crossed = append(crossed, ThresholdDanger)
	}
	if remaining > 0 && remaining <= c.opts.WarningSeconds && !c.fired[ThresholdWarning] {
		crossed = append(crossed, ThresholdWarning)
	}
	for _, t := range crossed {
		c.fired[t] = true
	}
	c.mu.Unlock()

	for _, t := range crossed {
		c.publish(Event{AttemptID: c.attemptID, Threshold: t, RemainingSeconds: remaining})
		if t == ThresholdExpiry {
			c.expire(ctx)
		}
	}
}

// expire calls the force-submit hook. On failure the expiry threshold is
// un-fired so the next tick retries instead of leaving the attempt open.
func (c *Coordinator) expire(ctx context.Context) {
	if err := c.expireFn(ctx); err != nil {
		c.log.Error().Err(err).Msg("Expiry submit failed, will retry next tick")
		c.mu.Lock()
		c.fired[ThresholdExpiry] = false
		c.mu.Unlock()
		return
	}
	c.log.Info().Msg("Attempt expired and submitted")
	c.Stop()
}

func (c *Coordinator) expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired[ThresholdExpiry]
}

// Remaining returns the coordinator's current countdown value.
func (c *Coordinator) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Subscribe returns a channel receiving threshold events. Slow subscribers
// miss events rather than blocking the tick loop.
func (c *Coordinator) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

func (c *Coordinator) publish(ev Event) {
	c.mu.Lock()
	subs := make([]chan Event, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Stop cancels the countdown. Idempotent; no threshold fires after Stop
// returns.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}
