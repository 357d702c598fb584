// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commitreveal

// EventKind names the canonical commit-reveal lifecycle events. Field
// order within each event mirrors the canonical schema: it is part of
// the contract, not incidental.
type EventKind uint8

const (
	EventCommitmentSubmitted EventKind = iota
	EventCommitmentVerified
	EventCommitmentRevealed
)

// Event is one lifecycle transition, retained in process memory for
// the owning Store and drained via Events.
type Event struct {
	Kind           EventKind
	PoolID         [32]byte
	CommitmentHash [32]byte
}

func (s *Store) emit(e Event) {
	s.events = append(s.events, e)
}

// Events returns and clears the accumulated event log.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}
