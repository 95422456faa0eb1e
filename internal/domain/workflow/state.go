package workflow

import "github.com/garyjia/contract-approval/internal/domain/entity"

// State is the lifecycle state of a single approval stage
type State string

const (
	StateNotStarted State = entity.StageStatusNotStarted
	StateApproving  State = entity.StageStatusApproving
	StateApproved   State = entity.StageStatusApproved
	StateRejected   State = entity.StageStatusRejected
)

// IsTerminal returns true if the approver has already decided the stage.
// Decided states only leave through a reset.
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid stage state
func (s State) IsValid() bool {
	switch s {
	case StateNotStarted, StateApproving, StateApproved, StateRejected:
		return true
	default:
		return false
	}
}

// IsDecided reports whether the stage's approver has approved or rejected it
func IsDecided(stage *entity.Stage) bool {
	return State(stage.Status).IsTerminal()
}
