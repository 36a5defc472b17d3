package dispatcher

import (
	"sync"

	"github.com/v0xg/pagepilot/internal/tab"
)

// Readiness is the per-tab liveness of the in-page executor, re-derived on every dispatch
type Readiness string

const (
	ReadinessUnknown     Readiness = "unknown"
	ReadinessProbing     Readiness = "probing"
	ReadinessReady       Readiness = "ready"
	ReadinessUnreachable Readiness = "unreachable"
)

// Transition is an observed readiness change
type Transition struct {
	Tab  tab.ID
	From Readiness
	To   Readiness
}

type readinessTable struct {
	mu      sync.Mutex
	states  map[tab.ID]Readiness
	observe func(Transition)
}

func newReadinessTable(observe func(Transition)) *readinessTable {
	return &readinessTable{states: map[tab.ID]Readiness{}, observe: observe}
}

func (r *readinessTable) get(id tab.ID) Readiness {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[id]; ok {
		return s
	}
	return ReadinessUnknown
}

func (r *readinessTable) set(id tab.ID, to Readiness) {
	r.mu.Lock()
	from, ok := r.states[id]
	if !ok {
		from = ReadinessUnknown
	}
	r.states[id] = to
	observe := r.observe
	r.mu.Unlock()

	if observe != nil && from != to {
		observe(Transition{Tab: id, From: from, To: to})
	}
}
