package feed

import (
	"context"
	"sync"
)

// readyGate latches once the live stream has delivered its first
// candle. Set is idempotent; the gate never resets for the lifetime of
// one feed run (a restart builds a fresh gate).
type readyGate struct {
	once sync.Once
	ch   chan struct{}
}

func newReadyGate() *readyGate {
	return &readyGate{ch: make(chan struct{})}
}

func (g *readyGate) Set() {
	g.once.Do(func() { close(g.ch) })
}

func (g *readyGate) IsSet() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate is set or ctx is done.
func (g *readyGate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
