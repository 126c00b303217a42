package state

import (
	"sync"
	"time"

	"github.com/fisaks/rfedge/internal/rfedge"
)

// EdgeStateStore remembers the last published state per device so
// unchanged states are only republished as heartbeats.
type EdgeStateStore interface {
	GetLast(device string) (rfedge.DeviceState, time.Time, bool)
	Update(device string, state rfedge.DeviceState)
	HasChanged(device string, state rfedge.DeviceState) bool
	NeedsPublish(state rfedge.DeviceState, heartbeat time.Duration) bool
	Clear()
}

type edgeStateStore struct {
	store     map[string]rfedge.DeviceState
	published map[string]time.Time
	mu        sync.RWMutex
	now       func() time.Time
}

func NewEdgeStateStore() EdgeStateStore {
	return &edgeStateStore{
		store:     make(map[string]rfedge.DeviceState),
		published: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *edgeStateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[string]rfedge.DeviceState)
	s.published = make(map[string]time.Time)
}

func (s *edgeStateStore) GetLast(device string) (rfedge.DeviceState, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.store[device]
	at, ok2 := s.published[device]
	return state, at, ok && ok2
}

func (s *edgeStateStore) Update(device string, state rfedge.DeviceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[device] = state
	s.published[device] = s.now()
}

func (s *edgeStateStore) HasChanged(device string, state rfedge.DeviceState) bool {
	last, _, ok := s.GetLast(device)
	if !ok {
		return true
	}
	return !deviceStateEqual(last, state)
}

// NeedsPublish is true for a changed state, or for an unchanged one whose
// last publish is older than heartbeat. A zero heartbeat disables the
// republish.
func (s *edgeStateStore) NeedsPublish(state rfedge.DeviceState, heartbeat time.Duration) bool {
	if s.HasChanged(state.Device, state) {
		return true
	}
	if heartbeat <= 0 {
		return false
	}
	_, at, _ := s.GetLast(state.Device)
	return s.now().Sub(at) > heartbeat
}

// Timestamp is ignored.
func deviceStateEqual(a, b rfedge.DeviceState) bool {
	return a.Kind == b.Kind &&
		a.State == b.State &&
		a.Status == b.Status &&
		a.Error == b.Error
}
