// Package session holds the in-memory analysis state served to the
// dashboard. There is at most one committed snapshot at a time; a completed
// run replaces it wholesale and a failed or cancelled run leaves it intact.
package session

import (
	"sync"
	"time"

	"rnadash/domain/core"
	"rnadash/domain/expr"
	"rnadash/ports"
)

// Snapshot is the immutable outcome of one completed analysis run. Views
// read whatever snapshot is current when their request arrives; nothing ever
// mutates a snapshot after commit.
type Snapshot struct {
	RunID       core.RunID
	Counts      *expr.CountsMatrix
	Samples     *expr.SampleSheet
	Model       ports.AnalysisModel
	Results     *expr.ResultTable
	Generation  uint64
	CompletedAt time.Time
}

// Store is the process-wide snapshot holder. Reads and the commit swap are
// guarded by a single RWMutex; the swap is a pointer replacement so readers
// never observe a half-built snapshot.
type Store struct {
	mu         sync.RWMutex
	current    *Snapshot
	generation uint64
}

// NewStore creates an empty store. Current returns nil until the first
// commit.
func NewStore() *Store {
	return &Store{}
}

// Current returns the committed snapshot, or nil when no run has completed
// yet.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Commit installs the snapshot as the current one and stamps it with the
// next generation number. Returns the assigned generation.
func (s *Store) Commit(snap *Snapshot) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	snap.Generation = s.generation
	snap.CompletedAt = time.Now().UTC()
	s.current = snap
	return s.generation
}

// Generation returns the number of commits so far.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
