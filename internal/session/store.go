// Package session tracks chat sessions: who receives the answer, and whether
// an extraction request is still waiting for its reply.
package session

import "time"

// State is the lifecycle state of a session's pending request.
type State int

const (
	// Idle means no request has been dispatched for the session.
	Idle State = iota
	// AwaitingExtraction means an extraction prompt is out and no answer has been sent.
	AwaitingExtraction
	// Resolved means the extraction reply produced the final answer.
	Resolved
	// FallbackSent means the fallback search produced the final answer.
	FallbackSent
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingExtraction:
		return "awaiting_extraction"
	case Resolved:
		return "resolved"
	case FallbackSent:
		return "fallback_sent"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a request.
func (s State) Terminal() bool {
	return s == Resolved || s == FallbackSent
}

// Pending describes the most recent request of a session.
type Pending struct {
	State       State     `json:"state"`
	Generation  uint64    `json:"generation"`
	RequestedAt time.Time `json:"requested_at"`
}

// AnyGeneration matches whichever request is currently awaited.
const AnyGeneration uint64 = 0

// Store maps session IDs to reply addresses and pending request state.
// Implementations must be safe for concurrent use.
type Store interface {
	// SetSender records the address that receives answers for the session.
	SetSender(id, address string)

	// Sender returns the recorded address for the session.
	Sender(id string) (string, bool)

	// Begin marks a new request as awaited and returns its generation.
	// Any earlier request of the session is superseded.
	Begin(id string) uint64

	// Claim atomically moves the session from AwaitingExtraction to the
	// terminal state to. It succeeds at most once per generation; a stale
	// generation never succeeds. AnyGeneration claims the current one.
	Claim(id string, generation uint64, to State) bool

	// Pending returns the current pending request state.
	Pending(id string) Pending
}
