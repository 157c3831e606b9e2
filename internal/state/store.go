// Package state tracks per-service rolling health counters for the life of
// the monitoring process. Nothing here is persisted.
package state

import (
	"sync"
	"time"

	"github.com/avernost/depwatch/internal/checker"
)

// ServiceState is the rolling health record for one service.
type ServiceState struct {
	ConsecutiveFailures int
	TotalChecks         int
	TotalFailures       int
	LastHealthyAt       *time.Time
	LastCheckedAt       *time.Time
}

// ErrorRate returns the all-time failure ratio, or 0 before any checks.
func (s ServiceState) ErrorRate() float64 {
	if s.TotalChecks == 0 {
		return 0
	}
	return float64(s.TotalFailures) / float64(s.TotalChecks)
}

// Store holds the state for all services. It is safe for concurrent use;
// readers always observe a fully-applied update.
type Store struct {
	mu     sync.RWMutex
	states map[string]*ServiceState
}

// NewStore returns an empty Store. Service entries are created lazily on
// first check.
func NewStore() *Store {
	return &Store{states: make(map[string]*ServiceState)}
}

// Apply records one check result and returns the post-update state, so the
// caller can evaluate alerts against the same observation.
func (st *Store) Apply(result checker.CheckResult) ServiceState {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.states[result.ServiceName]
	if !ok {
		s = &ServiceState{}
		st.states[result.ServiceName] = s
	}

	now := result.CheckedAt
	s.TotalChecks++
	if result.Healthy {
		s.ConsecutiveFailures = 0
		s.LastHealthyAt = &now
	} else {
		s.ConsecutiveFailures++
		s.TotalFailures++
	}
	s.LastCheckedAt = &now

	return *s
}

// Get returns the current state for a service. ok is false if the service
// has never been checked.
func (st *Store) Get(name string) (ServiceState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.states[name]
	if !ok {
		return ServiceState{}, false
	}
	return *s, true
}

// Snapshot returns a copy of all service states.
func (st *Store) Snapshot() map[string]ServiceState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[string]ServiceState, len(st.states))
	for name, s := range st.states {
		out[name] = *s
	}
	return out
}
