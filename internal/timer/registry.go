package timer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry owns at most one running coordinator per attempt. Starting a new
// countdown for an attempt replaces (and stops) the previous one, so a resume
// always re-seeds from persisted state.
type Registry struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	coords map[uuid.UUID]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, log zerolog.Logger) *Registry {
	return &Registry{
		opts:   opts,
		log:    log,
		coords: make(map[uuid.UUID]*Coordinator),
	}
}

// Start launches a coordinator for the attempt, replacing any existing one.
func (r *Registry) Start(ctx context.Context, attemptID uuid.UUID, seedSeconds int, remainingFn RemainingFunc, expireFn ExpireFunc) *Coordinator {
	c := New(attemptID, seedSeconds, remainingFn, expireFn, r.opts, r.log)

	r.mu.Lock()
	if prev, ok := r.coords[attemptID]; ok {
		prev.Stop()
	}
	r.coords[attemptID] = c
	r.mu.Unlock()

	go c.Run(ctx)
	return c
}

// Get returns the attempt's running coordinator, or nil.
func (r *Registry) Get(attemptID uuid.UUID) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coords[attemptID]
}

// Stop cancels and forgets the attempt's coordinator, if any.
func (r *Registry) Stop(attemptID uuid.UUID) {
	r.mu.Lock()
	c, ok := r.coords[attemptID]
	if ok {
		delete(r.coords, attemptID)
	}
	r.mu.Unlock()

	if ok {
		c.Stop()
	}
}

// StopAll cancels every coordinator; used during shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	coords := r.coords
	r.coords = make(map[uuid.UUID]*Coordinator)
	r.mu.Unlock()

	for _, c := range coords {
		c.Stop()
	}
}
