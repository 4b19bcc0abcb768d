package domain

import "time"

// DomainEvent is raised by the workflow aggregate and relayed through the outbox
type DomainEvent interface {
	EventType() string
}

// ApprovalRequestedEvent is emitted when a workflow is created
type ApprovalRequestedEvent struct {
	WorkflowID  string    `json:"workflowId"`
	SubjectType string    `json:"subjectType"`
	SubjectID   string    `json:"subjectId"`
	RequestedBy string    `json:"requestedBy"`
	Amount      float64   `json:"amount,omitempty"`
	TotalSteps  int       `json:"totalSteps"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (e *ApprovalRequestedEvent) EventType() string { return "erp.approval.requested" }

// ApprovalStepPassedEvent is emitted when one step is approved
type ApprovalStepPassedEvent struct {
	WorkflowID string    `json:"workflowId"`
	StepNumber int       `json:"stepNumber"`
	StepType   string    `json:"stepType"`
	ApprovedBy string    `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
}

func (e *ApprovalStepPassedEvent) EventType() string { return "erp.approval.step-approved" }

// ApprovalDelegatedEvent is emitted when a step is handed to another approver
type ApprovalDelegatedEvent struct {
	WorkflowID  string    `json:"workflowId"`
	StepNumber  int       `json:"stepNumber"`
	DelegatedBy string    `json:"delegatedBy"`
	DelegatedTo string    `json:"delegatedTo"`
	DelegatedAt time.Time `json:"delegatedAt"`
}

func (e *ApprovalDelegatedEvent) EventType() string { return "erp.approval.delegated" }

// ApprovalEscalatedEvent is emitted when an overdue step is reassigned
type ApprovalEscalatedEvent struct {
	WorkflowID  string    `json:"workflowId"`
	StepNumber  int       `json:"stepNumber"`
	EscalatedTo string    `json:"escalatedTo"`
	EscalatedAt time.Time `json:"escalatedAt"`
}

func (e *ApprovalEscalatedEvent) EventType() string { return "erp.approval.escalated" }

// ApprovalApprovedEvent is emitted when every required step has approved
type ApprovalApprovedEvent struct {
	WorkflowID  string    `json:"workflowId"`
	SubjectType string    `json:"subjectType"`
	SubjectID   string    `json:"subjectId"`
	DecidedBy   string    `json:"decidedBy"`
	DecidedAt   time.Time `json:"decidedAt"`
}

func (e *ApprovalApprovedEvent) EventType() string { return "erp.approval.approved" }

// ApprovalRejectedEvent is emitted when any step rejects
type ApprovalRejectedEvent struct {
	WorkflowID  string    `json:"workflowId"`
	SubjectType string    `json:"subjectType"`
	SubjectID   string    `json:"subjectId"`
	DecidedBy   string    `json:"decidedBy"`
	Reason      string    `json:"reason,omitempty"`
	DecidedAt   time.Time `json:"decidedAt"`
}

func (e *ApprovalRejectedEvent) EventType() string { return "erp.approval.rejected" }

// ApprovalExpiredEvent is emitted when a workflow passes its deadline undecided
type ApprovalExpiredEvent struct {
	WorkflowID  string    `json:"workflowId"`
	SubjectType string    `json:"subjectType"`
	SubjectID   string    `json:"subjectId"`
	ExpiredAt   time.Time `json:"expiredAt"`
}

func (e *ApprovalExpiredEvent) EventType() string { return "erp.approval.expired" }

// ApprovalCancelledEvent is emitted when the requester withdraws the workflow
type ApprovalCancelledEvent struct {
	WorkflowID  string    `json:"workflowId"`
	SubjectType string    `json:"subjectType"`
	SubjectID   string    `json:"subjectId"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e *ApprovalCancelledEvent) EventType() string { return "erp.approval.cancelled" }
