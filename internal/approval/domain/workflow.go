package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the aggregate status of an approval workflow
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowApproved   WorkflowStatus = "approved"
	WorkflowRejected   WorkflowStatus = "rejected"
	WorkflowCancelled  WorkflowStatus = "cancelled"
	WorkflowExpired    WorkflowStatus = "expired"
)

// StepStatus is the status of one approval step
type StepStatus string

const (
	StepWaiting   StepStatus = "waiting"
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepDelegated StepStatus = "delegated"
	StepEscalated StepStatus = "escalated"
	StepSkipped   StepStatus = "skipped"
)

// StepType classifies who signs off at a step
type StepType string

const (
	StepTypeManager  StepType = "manager"
	StepTypeDirector StepType = "director"
	StepTypeFinance  StepType = "finance"
	StepTypeLegal    StepType = "legal"
	StepTypeBoard    StepType = "board"
	StepTypeCustom   StepType = "custom"
)

// Default timing when the config leaves hours unset
const (
	DefaultEscalationHours = 24
	DefaultReminderHours   = 8
	DefaultExpirationHours = 72
)

// ApprovalStep is one assignee's pending decision in the sequence
type ApprovalStep struct {
	StepNumber int        `bson:"stepNumber" json:"stepNumber"`
	Type       StepType   `bson:"type" json:"type"`
	ApproverID string     `bson:"approverId" json:"approverId"`
	Required   bool       `bson:"required" json:"required"`
	Status     StepStatus `bson:"status" json:"status"`

	AssignedAt *time.Time `bson:"assignedAt,omitempty" json:"assignedAt,omitempty"`
	DueAt      *time.Time `bson:"dueAt,omitempty" json:"dueAt,omitempty"`
	DecidedAt  *time.Time `bson:"decidedAt,omitempty" json:"decidedAt,omitempty"`
	DecidedBy  string     `bson:"decidedBy,omitempty" json:"decidedBy,omitempty"`
	Notes      string     `bson:"notes,omitempty" json:"notes,omitempty"`

	DelegatedFrom string `bson:"delegatedFrom,omitempty" json:"delegatedFrom,omitempty"`
	EscalatedFrom string `bson:"escalatedFrom,omitempty" json:"escalatedFrom,omitempty"`
}

// actionable reports whether the step is awaiting its approver's decision
func (s *ApprovalStep) actionable() bool {
	return s.Status == StepPending || s.Status == StepDelegated || s.Status == StepEscalated
}

// StepConfig describes one step of a new workflow
type StepConfig struct {
	Type       StepType
	ApproverID string
	Required   bool
}

// WorkflowConfig describes a new workflow
type WorkflowConfig struct {
	SubjectType     string
	SubjectID       string
	RequestedBy     string
	Amount          float64
	Steps           []StepConfig
	EscalationHours int
	ReminderHours   int
	ExpirationHours int
}

// ApprovalWorkflow is a sequential multi-step approval bound to one subject.
// Steps decide one at a time; a single rejection short-circuits the whole
// workflow regardless of prior approvals.
type ApprovalWorkflow struct {
	ID          string `bson:"_id,omitempty" json:"-"`
	WorkflowID  string `bson:"workflowId" json:"workflowId"`
	SubjectType string `bson:"subjectType" json:"subjectType"`
	SubjectID   string `bson:"subjectId" json:"subjectId"`
	RequestedBy string `bson:"requestedBy" json:"requestedBy"`

	// Amount carries the monetary value under approval, informational only
	Amount float64 `bson:"amount,omitempty" json:"amount,omitempty"`

	Status            WorkflowStatus `bson:"status" json:"status"`
	CurrentStepNumber int            `bson:"currentStepNumber" json:"currentStepNumber"`
	TotalSteps        int            `bson:"totalSteps" json:"totalSteps"`
	RequiredApprovals int            `bson:"requiredApprovals" json:"requiredApprovals"`
	ReceivedApprovals int            `bson:"receivedApprovals" json:"receivedApprovals"`

	Steps []ApprovalStep `bson:"steps" json:"steps"`

	EscalationHours int        `bson:"escalationHours" json:"escalationHours"`
	ReminderHours   int        `bson:"reminderHours" json:"reminderHours"`
	ExpiresAt       *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`

	CompletedAt     *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	FinalDecision   string     `bson:"finalDecision,omitempty" json:"finalDecision,omitempty"`
	FinalDecisionBy string     `bson:"finalDecisionBy,omitempty" json:"finalDecisionBy,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewApprovalWorkflow initializes a workflow from config with all steps
// waiting. The workflow is not started until Start is called.
func NewApprovalWorkflow(config WorkflowConfig) (*ApprovalWorkflow, error) {
	if len(config.Steps) == 0 {
		return nil, ErrNoSteps
	}

	now := time.Now().UTC()

	escalationHours := config.EscalationHours
	if escalationHours <= 0 {
		escalationHours = DefaultEscalationHours
	}
	reminderHours := config.ReminderHours
	if reminderHours <= 0 {
		reminderHours = DefaultReminderHours
	}
	expirationHours := config.ExpirationHours
	if expirationHours <= 0 {
		expirationHours = DefaultExpirationHours
	}

	required := 0
	steps := make([]ApprovalStep, 0, len(config.Steps))
	for i, sc := range config.Steps {
		if sc.ApproverID == "" {
			return nil, ErrNoApprover
		}
		stepType := sc.Type
		if stepType == "" {
			stepType = StepTypeCustom
		}
		if sc.Required {
			required++
		}
		steps = append(steps, ApprovalStep{
			StepNumber: i + 1,
			Type:       stepType,
			ApproverID: sc.ApproverID,
			Required:   sc.Required,
			Status:     StepWaiting,
		})
	}

	expiresAt := now.Add(time.Duration(expirationHours) * time.Hour)

	w := &ApprovalWorkflow{
		WorkflowID:        uuid.New().String(),
		SubjectType:       config.SubjectType,
		SubjectID:         config.SubjectID,
		RequestedBy:       config.RequestedBy,
		Amount:            config.Amount,
		Status:            WorkflowPending,
		CurrentStepNumber: 0,
		TotalSteps:        len(steps),
		RequiredApprovals: required,
		Steps:             steps,
		EscalationHours:   escalationHours,
		ReminderHours:     reminderHours,
		ExpiresAt:         &expiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	w.AddDomainEvent(&ApprovalRequestedEvent{
		WorkflowID:  w.WorkflowID,
		SubjectType: w.SubjectType,
		SubjectID:   w.SubjectID,
		RequestedBy: w.RequestedBy,
		Amount:      w.Amount,
		TotalSteps:  w.TotalSteps,
		RequestedAt: now,
	})

	return w, nil
}

// Start moves the workflow in progress and assigns the first step
func (w *ApprovalWorkflow) Start() error {
	if w.Status != WorkflowPending {
		return fmt.Errorf("cannot start approval workflow %s in status %s", w.WorkflowID, w.Status)
	}
	w.Status = WorkflowInProgress
	w.CurrentStepNumber = 1
	w.assignStep(&w.Steps[0])
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// assignStep puts a step in front of its approver and arms its deadline
func (w *ApprovalWorkflow) assignStep(step *ApprovalStep) {
	now := time.Now().UTC()
	due := now.Add(time.Duration(w.EscalationHours) * time.Hour)
	step.Status = StepPending
	step.AssignedAt = &now
	step.DueAt = &due
}

// IsPending reports whether the workflow still accepts step decisions
func (w *ApprovalWorkflow) IsPending() bool {
	return w.Status == WorkflowInProgress
}

// IsTerminal reports whether the workflow has reached a final outcome
func (w *ApprovalWorkflow) IsTerminal() bool {
	switch w.Status {
	case WorkflowApproved, WorkflowRejected, WorkflowCancelled, WorkflowExpired:
		return true
	}
	return false
}

// CurrentStep returns the step awaiting decision, nil when none
func (w *ApprovalWorkflow) CurrentStep() *ApprovalStep {
	if w.CurrentStepNumber < 1 || w.CurrentStepNumber > len(w.Steps) {
		return nil
	}
	return &w.Steps[w.CurrentStepNumber-1]
}

func (w *ApprovalWorkflow) actionableCurrentStep() (*ApprovalStep, error) {
	if !w.IsPending() {
		return nil, fmt.Errorf("cannot act on approval workflow %s in status %s", w.WorkflowID, w.Status)
	}
	step := w.CurrentStep()
	if step == nil || !step.actionable() {
		return nil, ErrNoCurrentStep
	}
	return step, nil
}

// ApproveCurrentStep records the current approver's sign-off. The workflow
// completes approved when the last step approves, otherwise the next step is
// assigned.
func (w *ApprovalWorkflow) ApproveCurrentStep(approverID, notes string) error {
	step, err := w.actionableCurrentStep()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	step.Status = StepApproved
	step.DecidedAt = &now
	step.DecidedBy = approverID
	step.Notes = notes
	w.ReceivedApprovals++
	w.UpdatedAt = now

	w.AddDomainEvent(&ApprovalStepPassedEvent{
		WorkflowID: w.WorkflowID,
		StepNumber: step.StepNumber,
		StepType:   string(step.Type),
		ApprovedBy: approverID,
		ApprovedAt: now,
	})

	if w.CurrentStepNumber >= w.TotalSteps {
		w.complete(WorkflowApproved, approverID)
		return nil
	}

	w.CurrentStepNumber++
	w.assignStep(&w.Steps[w.CurrentStepNumber-1])
	return nil
}

// RejectCurrentStep rejects the workflow outright. Rejection is never
// step-local; remaining steps are skipped and the workflow ends rejected.
func (w *ApprovalWorkflow) RejectCurrentStep(approverID, reason string) error {
	step, err := w.actionableCurrentStep()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	step.Status = StepRejected
	step.DecidedAt = &now
	step.DecidedBy = approverID
	step.Notes = reason
	w.UpdatedAt = now

	for i := range w.Steps {
		if w.Steps[i].Status == StepWaiting {
			w.Steps[i].Status = StepSkipped
		}
	}

	w.complete(WorkflowRejected, approverID)
	if reason != "" {
		if last, ok := w.DomainEvents[len(w.DomainEvents)-1].(*ApprovalRejectedEvent); ok {
			last.Reason = reason
		}
	}
	return nil
}

// DelegateCurrentStep hands the current step to another approver without
// advancing the sequence
func (w *ApprovalWorkflow) DelegateCurrentStep(delegatorID, delegateID string) error {
	step, err := w.actionableCurrentStep()
	if err != nil {
		return err
	}
	if delegateID == "" {
		return ErrNoApprover
	}

	now := time.Now().UTC()
	step.DelegatedFrom = step.ApproverID
	step.ApproverID = delegateID
	step.Status = StepDelegated
	step.AssignedAt = &now
	due := now.Add(time.Duration(w.EscalationHours) * time.Hour)
	step.DueAt = &due
	w.UpdatedAt = now

	w.AddDomainEvent(&ApprovalDelegatedEvent{
		WorkflowID:  w.WorkflowID,
		StepNumber:  step.StepNumber,
		DelegatedBy: delegatorID,
		DelegatedTo: delegateID,
		DelegatedAt: now,
	})
	return nil
}

// EscalateCurrentStep reassigns an overdue step without advancing the sequence
func (w *ApprovalWorkflow) EscalateCurrentStep(toUserID string) error {
	step, err := w.actionableCurrentStep()
	if err != nil {
		return err
	}
	if toUserID == "" {
		return ErrNoApprover
	}

	now := time.Now().UTC()
	step.EscalatedFrom = step.ApproverID
	step.ApproverID = toUserID
	step.Status = StepEscalated
	step.AssignedAt = &now
	due := now.Add(time.Duration(w.EscalationHours) * time.Hour)
	step.DueAt = &due
	w.UpdatedAt = now

	w.AddDomainEvent(&ApprovalEscalatedEvent{
		WorkflowID:  w.WorkflowID,
		StepNumber:  step.StepNumber,
		EscalatedTo: toUserID,
		EscalatedAt: now,
	})
	return nil
}

// Cancel withdraws the workflow before a decision is reached
func (w *ApprovalWorkflow) Cancel(reason string) error {
	if w.IsTerminal() {
		return fmt.Errorf("cannot cancel approval workflow %s in status %s", w.WorkflowID, w.Status)
	}

	now := time.Now().UTC()
	w.Status = WorkflowCancelled
	w.CompletedAt = &now
	w.FinalDecision = string(WorkflowCancelled)
	w.UpdatedAt = now

	w.AddDomainEvent(&ApprovalCancelledEvent{
		WorkflowID:  w.WorkflowID,
		SubjectType: w.SubjectType,
		SubjectID:   w.SubjectID,
		Reason:      reason,
		CancelledAt: now,
	})
	return nil
}

// Expire ends an undecided workflow that passed its deadline
func (w *ApprovalWorkflow) Expire() error {
	if w.IsTerminal() {
		return fmt.Errorf("cannot expire approval workflow %s in status %s", w.WorkflowID, w.Status)
	}

	now := time.Now().UTC()
	w.Status = WorkflowExpired
	w.CompletedAt = &now
	w.FinalDecision = string(WorkflowExpired)
	w.UpdatedAt = now

	w.AddDomainEvent(&ApprovalExpiredEvent{
		WorkflowID:  w.WorkflowID,
		SubjectType: w.SubjectType,
		SubjectID:   w.SubjectID,
		ExpiredAt:   now,
	})
	return nil
}

// complete stamps the terminal outcome
func (w *ApprovalWorkflow) complete(status WorkflowStatus, decidedBy string) {
	now := time.Now().UTC()
	w.Status = status
	w.CompletedAt = &now
	w.FinalDecision = string(status)
	w.FinalDecisionBy = decidedBy
	w.UpdatedAt = now

	if status == WorkflowApproved {
		w.AddDomainEvent(&ApprovalApprovedEvent{
			WorkflowID:  w.WorkflowID,
			SubjectType: w.SubjectType,
			SubjectID:   w.SubjectID,
			DecidedBy:   decidedBy,
			DecidedAt:   now,
		})
		return
	}
	w.AddDomainEvent(&ApprovalRejectedEvent{
		WorkflowID:  w.WorkflowID,
		SubjectType: w.SubjectType,
		SubjectID:   w.SubjectID,
		DecidedBy:   decidedBy,
		DecidedAt:   now,
	})
}

// NeedsEscalation reports whether the current step has blown past its deadline
func (w *ApprovalWorkflow) NeedsEscalation(now time.Time) bool {
	if !w.IsPending() {
		return false
	}
	step := w.CurrentStep()
	if step == nil || !step.actionable() || step.DueAt == nil {
		return false
	}
	return now.After(*step.DueAt)
}

// NeedsReminder reports whether the current approver should be nudged
func (w *ApprovalWorkflow) NeedsReminder(now time.Time) bool {
	if !w.IsPending() {
		return false
	}
	step := w.CurrentStep()
	if step == nil || !step.actionable() || step.AssignedAt == nil {
		return false
	}
	return now.After(step.AssignedAt.Add(time.Duration(w.ReminderHours) * time.Hour))
}

// IsPastExpiry reports whether an undecided workflow has lapsed
func (w *ApprovalWorkflow) IsPastExpiry(now time.Time) bool {
	return !w.IsTerminal() && w.ExpiresAt != nil && now.After(*w.ExpiresAt)
}

// AddDomainEvent queues an event for publication after save
func (w *ApprovalWorkflow) AddDomainEvent(event DomainEvent) {
	w.DomainEvents = append(w.DomainEvents, event)
}

// ClearDomainEvents empties the pending event queue
func (w *ApprovalWorkflow) ClearDomainEvents() {
	w.DomainEvents = nil
}
