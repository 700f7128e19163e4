package orchestrator

import (
	"context"
	"log/slog"
)

// Host lifecycle hooks. A host may deliver them in any order after OnCreate;
// each maps onto the single Start or Stop entry point.

// OnCreate marks the service created. Repeat calls are ignored.
func (m *Manager) OnCreate() {
	m.main.Call(func() {
		if m.created {
			return
		}
		m.created = true
		slog.Info("monitoring service created")
	})
}

// OnConnect starts monitoring when the host connects the service.
func (m *Manager) OnConnect(ctx context.Context) error {
	m.OnCreate()
	return m.Start(ctx)
}

// OnInterrupt stops monitoring; a later OnConnect resumes it.
func (m *Manager) OnInterrupt() {
	slog.Info("monitoring interrupted")
	m.Stop()
}

// OnDestroy stops monitoring and releases the manager.
func (m *Manager) OnDestroy() {
	slog.Info("monitoring service destroyed")
	m.Close()
}
