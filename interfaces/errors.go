package interfaces

import (
	"fmt"

	"consensussim/ledger"

	"github.com/rotisserie/eris"
)

// error taxonomy
var (
	ErrConfig            = eris.New("configuration error")
	ErrSimulation        = eris.New("simulation error")
	ErrResourceExhausted = eris.New("resource exhausted")
	ErrInterrupted       = eris.New("interrupted")
	ErrWatchdog          = eris.New("watchdog expired")
)

// invariant violations inside one instance
var (
	ErrEventInPast       = eris.New("event scheduled in the past")
	ErrUnknownPeer       = eris.New("unknown peer")
	ErrUnknownNode       = eris.New("unknown node")
	ErrConflictingCommit = eris.New("conflicting blocks committed at the same height")
	ErrNoHead            = ledger.ErrNoHead
)

// block validation results
var (
	ErrUnknownAncestor = ledger.ErrUnknownAncestor
	ErrPrunedAncestor  = ledger.ErrPrunedAncestor
	ErrKnownBlock      = ledger.ErrKnownBlock
	ErrFutureBlock     = eris.New("block in the future")
	ErrInvalidBlock    = eris.New("invalid block")
	ErrOlderBlock      = eris.New("older than parent")
)

// SimulationError aborts the one instance it happened in.
type SimulationError struct {
	Time      int64
	EventType IEventType
	NodeId    int
	Cause     error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation error at %d in %v for node %d: %v", e.Time, e.EventType, e.NodeId, e.Cause)
}

func (e *SimulationError) Unwrap() error {
	return e.Cause
}

func (e *SimulationError) Is(target error) bool {
	return target == ErrSimulation
}
