package workflow

import (
	"fmt"
	"sort"

	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// SortStages orders stages by their position in the chain, in place
func SortStages(stages []*entity.Stage) {
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
}

// CurrentStage returns the lowest-ordered stage not yet approved.
// It is derived every time and never stored.
func CurrentStage(stages []*entity.Stage) (*entity.Stage, bool) {
	var current *entity.Stage
	for _, s := range stages {
		if s.Status == entity.StageStatusApproved {
			continue
		}
		if current == nil || s.Order < current.Order {
			current = s
		}
	}
	return current, current != nil
}

// NextStage returns the stage with the smallest order strictly greater than order
func NextStage(stages []*entity.Stage, order int) (*entity.Stage, bool) {
	var next *entity.Stage
	for _, s := range stages {
		if s.Order <= order {
			continue
		}
		if next == nil || s.Order < next.Order {
			next = s
		}
	}
	return next, next != nil
}

// FindStage looks a stage up by ID
func FindStage(stages []*entity.Stage, stageID int64) (*entity.Stage, bool) {
	for _, s := range stages {
		if s.ID == stageID {
			return s, true
		}
	}
	return nil, false
}

// ValidateOrders checks that orders are exactly 1..N with no gaps or duplicates
func ValidateOrders(stages []*entity.Stage) error {
	seen := make(map[int]bool, len(stages))
	for _, s := range stages {
		if s.Order < 1 || s.Order > len(stages) || seen[s.Order] {
			return fmt.Errorf("%w: order %d", ErrInvalidStageOrder, s.Order)
		}
		seen[s.Order] = true
	}
	return nil
}

// CheckActiveStage verifies that a pending subject has exactly one APPROVING stage
// and that it is the current stage
func CheckActiveStage(subject *entity.Subject, stages []*entity.Stage) error {
	if subject.ApprovalStatus != entity.ApprovalStatusPending {
		return nil
	}

	var approving []*entity.Stage
	for _, s := range stages {
		if s.Status == entity.StageStatusApproving {
			approving = append(approving, s)
		}
	}
	if len(approving) != 1 {
		return fmt.Errorf("%w: %d approving stages on subject %d", ErrInvalidState, len(approving), subject.ID)
	}

	current, ok := CurrentStage(stages)
	if !ok || current.ID != approving[0].ID {
		return fmt.Errorf("%w: approving stage %d is not current on subject %d", ErrInvalidState, approving[0].ID, subject.ID)
	}
	return nil
}

// IsFinalAuthority reports whether the user may close a chain
func IsFinalAuthority(user *entity.User) bool {
	return user != nil && user.Role == entity.RoleFinalAuthority
}

// Authorize checks that actorID is the approver assigned to the stage
func Authorize(actorID int64, stage *entity.Stage) error {
	if stage == nil || stage.ApproverID != actorID {
		return fmt.Errorf("%w: user %d is not the approver of this stage", ErrUnauthorized, actorID)
	}
	return nil
}

// HasActed reports whether actorID already decided any stage other than exceptStageID
func HasActed(stages []*entity.Stage, actorID int64, exceptStageID int64) bool {
	for _, s := range stages {
		if s.ID != exceptStageID && s.ApproverID == actorID && IsDecided(s) {
			return true
		}
	}
	return false
}
