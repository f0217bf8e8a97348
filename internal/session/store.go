// Package session holds per-conversation dialogue state in a
// concurrency-safe store. Turns for one session are strictly serialized;
// sessions never see each other's state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/akulikov/regdesk/internal/domain"
)

// ErrBusy is returned when an utterance arrives for a session whose
// previous turn is still being processed. Callers reject rather than
// interleave.
var ErrBusy = errors.New("session is processing another message")

// DefaultTTL is how long an inactive session survives before the
// sweeper discards it.
const DefaultTTL = 30 * time.Minute

type entry struct {
	sess *domain.Session
	// turnMu serializes turns within one session. It is held for the
	// whole turn, including classifier and dispatch calls, but never
	// blocks other sessions.
	turnMu sync.Mutex
}

// Store is an in-memory session store keyed by session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
}

// NewStore creates a session store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
	}
}

func (s *Store) getOrCreateEntry(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{sess: domain.NewSession(id)}
		s.sessions[id] = e
	}
	return e
}

// GetOrCreate returns the session for id, initializing a fresh idle
// session when the id is not present.
func (s *Store) GetOrCreate(id string) *domain.Session {
	return s.getOrCreateEntry(id).sess
}

// Get returns the session for id, or nil when absent.
func (s *Store) Get(id string) *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[id]; ok {
		return e.sess
	}
	return nil
}

// Put stores the session under id, replacing any existing state.
func (s *Store) Put(id string, sess *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.sess = sess
		return
	}
	s.sessions[id] = &entry{sess: sess}
}

// AcquireTurn locks the session for one turn of processing, creating the
// session if needed. It fails with ErrBusy when a turn is already in
// flight for the same id. The returned release function must be called
// when the turn completes.
func (s *Store) AcquireTurn(id string) (*domain.Session, func(), error) {
	e := s.getOrCreateEntry(id)
	if !e.turnMu.TryLock() {
		return nil, nil, ErrBusy
	}
	return e.sess, e.turnMu.Unlock, nil
}

// Clear discards all state for a session id. Idempotent: clearing an
// unknown id is a no-op. A turn in flight keeps its own session pointer
// and finishes against the discarded state.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepExpired removes sessions idle longer than the store TTL and
// returns how many were removed. Sessions mid-turn are skipped and
// revisited on the next sweep.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		// The turn lock must be held before UpdatedAt is read: a turn in
		// flight writes the timestamp under that lock, not the map lock.
		if !e.turnMu.TryLock() {
			continue
		}
		expired := now.Sub(e.sess.UpdatedAt) >= s.ttl
		e.turnMu.Unlock()
		if !expired {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

// StartSweeper runs periodic expiry sweeps until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.SweepExpired(time.Now()); removed > 0 {
					slog.Info("Swept expired sessions", "removed", removed, "remaining", s.Len())
				}
			}
		}
	}()
}
