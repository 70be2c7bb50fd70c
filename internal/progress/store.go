// Package progress tracks per-request pipeline stages so clients can
// poll or stream what a long-running question is doing.
package progress

import (
	"sync"
	"time"
)

// Stage names, in pipeline order.
const (
	StageSchema   = "schema"
	StageIntent   = "intent"
	StageGenerate = "generate"
	StageValidate = "validate"
	StagePlan     = "plan"
	StageExecute  = "execute"
	StageDone     = "done"
	StageFailed   = "failed"
)

type Update struct {
	Stage   string    `json:"stage"`
	Percent int       `json:"percent"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

type entry struct {
	updates []Update
	touched time.Time
}

// Store keeps recent updates per request ID, evicting entries that
// have not been touched within the TTL.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{entries: map[string]*entry{}, ttl: ttl}
}

// Report records an update for the given request ID.
func (s *Store) Report(id, stage string, percent int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.updates = append(e.updates, Update{Stage: stage, Percent: percent, Detail: detail, At: time.Now()})
	e.touched = time.Now()
}

// Snapshot returns all updates recorded for the ID so far.
func (s *Store) Snapshot(id string) ([]Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	out := make([]Update, len(e.updates))
	copy(out, e.updates)
	return out, true
}

// Reporter returns a stage callback bound to one request ID.
func (s *Store) Reporter(id string) func(stage string, percent int, detail string) {
	return func(stage string, percent int, detail string) {
		s.Report(id, stage, percent, detail)
	}
}

func (s *Store) evictLocked() {
	cutoff := time.Now().Add(-s.ttl)
	for id, e := range s.entries {
		if e.touched.Before(cutoff) {
			delete(s.entries, id)
		}
	}
}
