package workflow

import (
	"errors"
	"fmt"
)

// Error categories. Transport layers classify failures with errors.Is against these.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)

var (
	ErrTemplateNotFound = fmt.Errorf("template %w", ErrNotFound)
	ErrSubjectNotFound  = fmt.Errorf("subject %w", ErrNotFound)
	ErrStageNotFound    = fmt.Errorf("stage %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)

	// ErrAlreadyProcessed is returned when a stage was already decided or the actor already acted
	ErrAlreadyProcessed = fmt.Errorf("%w: already processed", ErrConflict)

	// ErrSubjectNotPending is returned when acting on a subject that is not awaiting approval
	ErrSubjectNotPending = fmt.Errorf("%w: subject is not pending approval", ErrConflict)

	// ErrStageNotActive is returned when acting on a stage that is not the current one
	ErrStageNotActive = fmt.Errorf("%w: stage is not the active stage", ErrConflict)

	// ErrInvalidTransition is returned when a stage transition is not allowed
	ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", ErrConflict)

	// ErrNotResubmittable is returned when resubmitting a subject that is neither rejected nor pending
	ErrNotResubmittable = fmt.Errorf("%w: subject cannot be resubmitted", ErrConflict)

	ErrDuplicateApprover    = fmt.Errorf("%w: approver appears more than once", ErrValidation)
	ErrNoFinalAuthorityUser = fmt.Errorf("%w: no final-authority user available", ErrValidation)
	ErrUnknownApprover      = fmt.Errorf("%w: unknown approver", ErrValidation)
	ErrNoWorkflowAssigned   = fmt.Errorf("%w: no workflow assigned", ErrValidation)
	ErrEmptyWorkflow        = fmt.Errorf("%w: workflow has no stages", ErrValidation)
	ErrInvalidState         = fmt.Errorf("%w: invalid state", ErrValidation)
	ErrInvalidStageOrder    = fmt.Errorf("%w: stage orders must be contiguous from 1", ErrValidation)
)
