// Package status exposes the daemon's runtime state over HTTP: port
// snapshots, counters, foreign master tables and the unmatched-peer
// observations, all as JSON.
package status

import (
	"sort"
	"sync"

	"example.com/ptpport/internal/port"
)

// Store is the rendezvous between the per-interface event loops, which
// publish snapshots each tick, and the HTTP handlers that read them.
type Store struct {
	mu           sync.RWMutex
	snapshots    map[string]port.Snapshot
	ifaceStats   map[string]port.InterfaceStats
	observations map[string][]port.Observation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		snapshots:    make(map[string]port.Snapshot),
		ifaceStats:   make(map[string]port.InterfaceStats),
		observations: make(map[string][]port.Observation),
	}
}

// PublishPort stores the latest snapshot for one port.
func (s *Store) PublishPort(snap port.Snapshot) {
	s.mu.Lock()
	s.snapshots[snap.Name] = snap
	s.mu.Unlock()
}

// PublishInterface stores interface-level drop counters and the
// unmatched-peer observations.
func (s *Store) PublishInterface(name string, stats port.InterfaceStats, obs []port.Observation) {
	s.mu.Lock()
	s.ifaceStats[name] = stats
	s.observations[name] = obs
	s.mu.Unlock()
}

// Snapshots returns every published port snapshot ordered by name.
func (s *Store) Snapshots() []port.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]port.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Interfaces returns the per-interface drop counters.
func (s *Store) Interfaces() map[string]port.InterfaceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]port.InterfaceStats, len(s.ifaceStats))
	for k, v := range s.ifaceStats {
		out[k] = v
	}
	return out
}

// Observations returns the per-interface unmatched-peer tables.
func (s *Store) Observations() map[string][]port.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]port.Observation, len(s.observations))
	for k, v := range s.observations {
		out[k] = append([]port.Observation(nil), v...)
	}
	return out
}
