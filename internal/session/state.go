package session

import (
	"github.com/projection-ui/host/internal/patch"
	"github.com/projection-ui/host/internal/toolkit"
)

// State is the host's local copy of the controller-owned view-model plus
// the bookkeeping needed to validate the next inbound revision and ack.
type State struct {
	ScreenID toolkit.ScreenID
	VM       patch.Value
	LastRev  *uint64
	LastAck  *uint64
}

// NewState returns a freshly reset State: no revision seen yet, empty
// view-model, no screen bound.
func NewState() State {
	return State{VM: patch.EmptyObject()}
}

// MarkAppliedRev records rev as the last revision successfully applied.
func (s *State) MarkAppliedRev(rev uint64) {
	s.LastRev = &rev
}

// MarkAppliedAck folds ack into the highest ack observed so far. A nil
// ack is a no-op: not every patch carries one.
func (s *State) MarkAppliedAck(ack *uint64) {
	if ack == nil {
		return
	}
	if s.LastAck == nil || *ack > *s.LastAck {
		v := *ack
		s.LastAck = &v
	}
}

// Reset discards all local state, returning the session to its
// cold-start condition. Used whenever a guard fails hard enough that the
// local view of the world can no longer be trusted.
func (s *State) Reset() {
	*s = NewState()
}
