package session

import (
	"sync"
	"time"
)

type entry struct {
	sender  string
	pending Pending
}

// MemoryStore is an in-memory Store. Entries live for the process lifetime.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
	nextGen  uint64
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

func (s *MemoryStore) get(id string) *entry {
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{}
		s.sessions[id] = e
	}
	return e
}

// SetSender records the reply address for the session, replacing any previous one.
func (s *MemoryStore) SetSender(id, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(id).sender = address
}

// Sender returns the reply address for the session.
func (s *MemoryStore) Sender(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || e.sender == "" {
		return "", false
	}
	return e.sender, true
}

// Begin starts a new awaited request for the session.
func (s *MemoryStore) Begin(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGen++
	s.get(id).pending = Pending{
		State:       AwaitingExtraction,
		Generation:  s.nextGen,
		RequestedAt: s.now(),
	}
	return s.nextGen
}

// Claim performs the AwaitingExtraction -> to transition.
func (s *MemoryStore) Claim(id string, generation uint64, to State) bool {
	if !to.Terminal() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || e.pending.State != AwaitingExtraction {
		return false
	}
	if generation != AnyGeneration && generation != e.pending.Generation {
		return false
	}
	e.pending.State = to
	return true
}

// Pending returns the pending request state; Idle for unknown sessions.
func (s *MemoryStore) Pending(id string) Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		return e.pending
	}
	return Pending{State: Idle}
}
