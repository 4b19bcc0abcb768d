package domain

import "errors"

var (
	ErrNoSteps            = errors.New("approval workflow requires at least one step")
	ErrNoApprover         = errors.New("approval step requires an approver")
	ErrWorkflowNotPending = errors.New("approval workflow is not active")
	ErrNoCurrentStep      = errors.New("approval workflow has no current step")
	ErrNotStepApprover    = errors.New("user is not the assigned approver for the current step")

	// ErrVersionConflict signals an optimistic save race
	ErrVersionConflict = errors.New("concurrent modification detected, version conflict")
)
