package events

import (
	"context"
	"sync"

	"phasegate/internal/domain"
)

// Memory is an in-process audit log for the memory store driver.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	events []domain.TransitionEvent
}

func (m *Memory) RecordTransition(_ context.Context, ev domain.TransitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ev.ID = m.nextID
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) ListTransitions(_ context.Context, workPackageID string, limit int) ([]domain.TransitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.TransitionEvent{}
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if workPackageID == "" || m.events[i].WorkPackageID == workPackageID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}
