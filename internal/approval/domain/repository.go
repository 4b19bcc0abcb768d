package domain

import (
	"context"
	"time"
)

// WorkflowFilter narrows workflow queries
type WorkflowFilter struct {
	SubjectType string
	SubjectID   string
	Status      WorkflowStatus
	ApproverID  string
	Limit       int
	Offset      int
}

// WorkflowRepository persists approval workflow aggregates
type WorkflowRepository interface {
	// Save persists the aggregate with optimistic version check. Returns
	// ErrVersionConflict when the stored version no longer matches.
	Save(ctx context.Context, workflow *ApprovalWorkflow) error

	// FindByWorkflowID returns a workflow by its business id, nil when absent
	FindByWorkflowID(ctx context.Context, workflowID string) (*ApprovalWorkflow, error)

	// FindBySubject returns workflows attached to a subject, newest first
	FindBySubject(ctx context.Context, subjectType, subjectID string) ([]*ApprovalWorkflow, error)

	// FindInProgress returns workflows still accepting decisions, oldest
	// first, for the escalation and expiry pollers
	FindInProgress(ctx context.Context, limit int) ([]*ApprovalWorkflow, error)

	// FindExpiredBefore returns undecided workflows whose deadline passed
	FindExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*ApprovalWorkflow, error)

	Find(ctx context.Context, filter WorkflowFilter) ([]*ApprovalWorkflow, error)

	Count(ctx context.Context, filter WorkflowFilter) (int64, error)
}
