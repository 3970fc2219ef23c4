package install

import (
	"context"
	"sync"

	"depotdeck/internal/services"
)

// Gate is the cooperative pause/cancel flag phases consult at suspension
// points. The zero value is not usable; call NewGate.
type Gate struct {
	mu        sync.Mutex
	paused    bool
	resume    chan struct{}
	cancelled bool
	done      chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Wait returns immediately while the gate is open and parks while it is
// paused. It returns ErrCancelled once the gate is cancelled, or the context
// error when ctx ends first.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.cancelled {
			g.mu.Unlock()
			return services.Wrap(services.ErrCancelled, "", "", "install cancelled", nil)
		}
		if !g.paused {
			g.mu.Unlock()
			return ctx.Err()
		}
		resume := g.resume
		g.mu.Unlock()

		select {
		case <-resume:
		case <-g.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause closes the gate. It reports false when already paused or cancelled.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.cancelled {
		return false
	}
	g.paused = true
	g.resume = make(chan struct{})
	return true
}

// Resume reopens a paused gate.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused || g.cancelled {
		return false
	}
	g.paused = false
	close(g.resume)
	return true
}

// Cancel releases every waiter with ErrCancelled. It is idempotent.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return
	}
	g.cancelled = true
	close(g.done)
}

// Paused reports whether the gate is paused.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Cancelled reports whether Cancel was called.
func (g *Gate) Cancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}
