package natstransport

import (
	"context"
	"sync"
)

// Monitor tracks NATS connection state and exposes the level waits the
// client's routing loop consumes. State changes come from the nats.go
// connection callbacks registered by Dial.
type Monitor struct {
	mu        sync.Mutex
	connected bool
	changed   chan struct{}
}

func newMonitor() *Monitor {
	return &Monitor{changed: make(chan struct{})}
}

func (m *Monitor) setConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected == connected {
		return
	}
	m.connected = connected
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Monitor) waitFor(ctx context.Context, connected bool) error {
	for {
		m.mu.Lock()
		if m.connected == connected {
			m.mu.Unlock()
			return nil
		}
		changed := m.changed
		m.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Connected returns once the connection is established.
func (m *Monitor) Connected(ctx context.Context) error {
	return m.waitFor(ctx, true)
}

// Disconnected returns once the connection is lost.
func (m *Monitor) Disconnected(ctx context.Context) error {
	return m.waitFor(ctx, false)
}
