package transfer

import (
	"context"
	"sync"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// Gate is the cooperative pause flag shared by the controller and the chunk loop
type Gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewGate creates an open gate
func NewGate() *Gate {
	return &Gate{}
}

// Pause closes the gate. Calling Pause on a closed gate does nothing.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return
	}
	g.paused = true
	g.resume = make(chan struct{})
}

// Resume opens the gate and releases every waiter
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
}

// Paused reports whether the gate is closed
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is closed. It returns core.ErrCancelled if ctx
// is cancelled while waiting, and reports whether it had to wait at all.
func (g *Gate) Wait(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return false, nil
	}
	resume := g.resume
	g.mu.Unlock()

	select {
	case <-resume:
		return true, nil
	case <-ctx.Done():
		return true, core.ErrCancelled
	}
}
