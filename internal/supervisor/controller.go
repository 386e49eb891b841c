package supervisor

import (
	"context"
	"sync"

	"github.com/vigilcam/sentry.vision/internal/monitoring"
)

// Controller owns the set of camera supervisors. It fans them out onto one
// goroutine each and tears the whole pipeline down on shutdown. A camera
// whose source cannot be opened fails alone; the others keep running.
type Controller struct {
	mu     sync.Mutex
	sups   []*Supervisor
	byID   map[string]*Supervisor
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController builds a controller over the given supervisors.
func NewController(sups ...*Supervisor) *Controller {
	c := &Controller{byID: make(map[string]*Supervisor, len(sups))}
	for _, s := range sups {
		c.sups = append(c.sups, s)
		c.byID[s.ID()] = s
	}
	return c
}

// Start launches every supervisor. It returns immediately; cameras run until
// Stop or ctx cancellation.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)
	for _, s := range c.sups {
		c.wg.Add(1)
		go func(s *Supervisor) {
			defer c.wg.Done()
			if err := s.Run(ctx); err != nil {
				monitoring.Logf("camera %s: supervisor exited: %v", s.ID(), err)
			}
		}(s)
	}
	monitoring.Logf("controller: started %d camera(s)", len(c.sups))
}

// Stop cancels every capture loop and waits for them to finish. Supervisors
// force-stop their active recordings on the way out, so encoders are
// finalized before Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	monitoring.Logf("controller: all cameras stopped")
}

// Supervisor returns the supervisor for a camera ID, or nil.
func (c *Controller) Supervisor(id string) *Supervisor {
	return c.byID[id]
}

// Supervisors returns all supervisors in configuration order.
func (c *Controller) Supervisors() []*Supervisor {
	out := make([]*Supervisor, len(c.sups))
	copy(out, c.sups)
	return out
}
