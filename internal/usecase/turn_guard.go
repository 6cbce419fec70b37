package usecase

import (
	"context"
	"sync"

	"lumen-agent/internal/domain"
)

// TurnGuard admits at most one in-flight turn per engine. A second turn is
// rejected, not queued.
type TurnGuard struct {
	mu      sync.Mutex
	turnID  string
	cancel  context.CancelFunc
	stopped bool
}

// Acquire claims the guard for turnID and returns a context cancelled by
// Stop, plus a release function that MUST be called when the turn ends.
func (g *TurnGuard) Acquire(ctx context.Context, turnID string) (context.Context, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return nil, nil, domain.NewDomainError("TurnGuard.Acquire", domain.ErrTurnInFlight, g.turnID)
	}
	turnCtx, cancel := context.WithCancel(ctx)
	g.turnID = turnID
	g.cancel = cancel
	g.stopped = false

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			g.cancel = nil
			g.turnID = ""
			g.mu.Unlock()
			cancel()
		})
	}
	return turnCtx, release, nil
}

// Stop cancels the in-flight turn. It reports whether a turn was running.
func (g *TurnGuard) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel == nil {
		return false
	}
	g.stopped = true
	g.cancel()
	return true
}

// Stopped reports whether Stop was called for the current turn.
func (g *TurnGuard) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// Active returns the id of the in-flight turn, or "".
func (g *TurnGuard) Active() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turnID
}
