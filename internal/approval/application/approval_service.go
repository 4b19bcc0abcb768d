package application

import (
	"context"
	"time"

	"github.com/erp-platform/order-lifecycle/internal/approval/domain"
	"github.com/erp-platform/order-lifecycle/pkg/cloudevents"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/kafka"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
)

// DecisionNotifier is called once when a workflow reaches approved or
// rejected, so the owning context can unblock its subject. Notification is
// best-effort; the decision itself is already persisted.
type DecisionNotifier func(ctx context.Context, workflowID string, approved bool, decidedBy, reason string) error

// Config tunes workflow construction per subject type
type Config struct {
	// DirectorThreshold is the amount above which a director step is added
	DirectorThreshold float64
	// FinanceThreshold is the amount above which a finance step is added
	FinanceThreshold float64
	// EscalationTarget receives steps the poller escalates
	EscalationTarget string
	// DefaultManagerApprover is assigned the first step of every workflow
	DefaultManagerApprover string
	DefaultDirector        string
	DefaultFinanceApprover string

	EscalationHours int
	ReminderHours   int
	ExpirationHours int
}

// DefaultConfig returns the standard approval routing
func DefaultConfig() Config {
	return Config{
		DirectorThreshold:      10000,
		FinanceThreshold:       50000,
		EscalationTarget:       "approvals-escalation",
		DefaultManagerApprover: "approvals-manager",
		DefaultDirector:        "approvals-director",
		DefaultFinanceApprover: "approvals-finance",
	}
}

// ApprovalService implements the application layer for approval workflows
type ApprovalService struct {
	workflows  domain.WorkflowRepository
	outboxRepo outbox.Repository
	events     *cloudevents.EventFactory
	logger     *logging.Logger
	metrics    *metrics.Metrics
	config     Config

	notifiers map[string]DecisionNotifier
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	workflows domain.WorkflowRepository,
	outboxRepo outbox.Repository,
	logger *logging.Logger,
	m *metrics.Metrics,
	config Config,
) *ApprovalService {
	return &ApprovalService{
		workflows:  workflows,
		outboxRepo: outboxRepo,
		events:     cloudevents.NewEventFactory(cloudevents.SourceApprovals),
		logger:     logger.WithComponent("approval-service"),
		metrics:    m,
		config:     config,
		notifiers:  make(map[string]DecisionNotifier),
	}
}

// RegisterDecisionNotifier binds a subject type to its decision callback
func (s *ApprovalService) RegisterDecisionNotifier(subjectType string, notifier DecisionNotifier) {
	s.notifiers[subjectType] = notifier
}

func (s *ApprovalService) enqueueEvents(ctx context.Context, workflow *domain.ApprovalWorkflow) {
	for _, event := range workflow.DomainEvents {
		ce := s.events.CreateEventWithCorrelation(ctx, event.EventType(), "approval/"+workflow.WorkflowID, event, logging.CorrelationIDFromContext(ctx))
		outboxEvent, err := outbox.NewOutboxEvent(workflow.WorkflowID, "approval_workflow", kafka.Topics.ApprovalEvents, ce)
		if err != nil {
			s.logger.WithError(err).Error("Failed to build outbox event", "eventType", event.EventType())
			continue
		}
		if err := s.outboxRepo.Save(ctx, outboxEvent); err != nil {
			s.logger.WithError(err).Error("Failed to enqueue outbox event", "eventType", event.EventType())
		}
	}
	workflow.ClearDomainEvents()
}

func (s *ApprovalService) save(ctx context.Context, workflow *domain.ApprovalWorkflow) error {
	if err := s.workflows.Save(ctx, workflow); err != nil {
		if err == domain.ErrVersionConflict {
			return errors.ErrConflict("approval workflow was modified concurrently").Wrap(err)
		}
		return errors.ErrInternal("failed to save approval workflow").Wrap(err)
	}
	s.enqueueEvents(ctx, workflow)
	return nil
}

func (s *ApprovalService) load(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error) {
	workflow, err := s.workflows.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find approval workflow").Wrap(err)
	}
	if workflow == nil {
		return nil, errors.ErrNotFoundWithID("approval workflow", workflowID)
	}
	return workflow, nil
}

// stepsFor routes a subject to its approval chain by amount
func (s *ApprovalService) stepsFor(amount float64) []domain.StepConfig {
	steps := []domain.StepConfig{
		{Type: domain.StepTypeManager, ApproverID: s.config.DefaultManagerApprover, Required: true},
	}
	if amount > s.config.DirectorThreshold {
		steps = append(steps, domain.StepConfig{
			Type: domain.StepTypeDirector, ApproverID: s.config.DefaultDirector, Required: true,
		})
	}
	if amount > s.config.FinanceThreshold {
		steps = append(steps, domain.StepConfig{
			Type: domain.StepTypeFinance, ApproverID: s.config.DefaultFinanceApprover, Required: true,
		})
	}
	return steps
}

// RequestApproval creates and starts a workflow for a subject and returns the
// workflow id. Satisfies the requester interface of the sales context.
func (s *ApprovalService) RequestApproval(ctx context.Context, subjectType, subjectID, requestedBy string, amount float64) (string, error) {
	workflow, err := domain.NewApprovalWorkflow(domain.WorkflowConfig{
		SubjectType:     subjectType,
		SubjectID:       subjectID,
		RequestedBy:     requestedBy,
		Amount:          amount,
		Steps:           s.stepsFor(amount),
		EscalationHours: s.config.EscalationHours,
		ReminderHours:   s.config.ReminderHours,
		ExpirationHours: s.config.ExpirationHours,
	})
	if err != nil {
		return "", errors.MapDomainError(err)
	}
	if err := workflow.Start(); err != nil {
		return "", errors.MapDomainError(err)
	}

	if err := s.save(ctx, workflow); err != nil {
		return "", err
	}

	s.logger.Info("Started approval workflow",
		"workflowId", workflow.WorkflowID,
		"subjectType", subjectType,
		"subjectId", subjectID,
		"steps", workflow.TotalSteps,
		"amount", amount,
	)
	return workflow.WorkflowID, nil
}

// GetWorkflow returns a workflow by its business id
func (s *ApprovalService) GetWorkflow(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error) {
	return s.load(ctx, workflowID)
}

// ListWorkflows returns workflows matching the filter
func (s *ApprovalService) ListWorkflows(ctx context.Context, filter domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, int64, error) {
	workflows, err := s.workflows.Find(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to list approval workflows").Wrap(err)
	}
	total, err := s.workflows.Count(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to count approval workflows").Wrap(err)
	}
	return workflows, total, nil
}

// notifyDecision reports a terminal outcome back to the subject's context
func (s *ApprovalService) notifyDecision(ctx context.Context, workflow *domain.ApprovalWorkflow, reason string) {
	if workflow.Status != domain.WorkflowApproved && workflow.Status != domain.WorkflowRejected {
		return
	}
	approved := workflow.Status == domain.WorkflowApproved

	notifier, ok := s.notifiers[workflow.SubjectType]
	if !ok {
		return
	}
	if err := notifier(ctx, workflow.WorkflowID, approved, workflow.FinalDecisionBy, reason); err != nil {
		// The outcome is persisted; the subject context can still catch up
		// from the published event
		s.logger.WithError(err).Error("Failed to notify subject of approval decision",
			"workflowId", workflow.WorkflowID,
			"subjectType", workflow.SubjectType,
			"subjectId", workflow.SubjectID,
		)
	}
}

// StepDecisionCommand carries one approver's action on the current step
type StepDecisionCommand struct {
	WorkflowID string
	ApproverID string
	Notes      string
}

// ApproveStep approves the current step as the assigned approver
func (s *ApprovalService) ApproveStep(ctx context.Context, cmd StepDecisionCommand) (*domain.ApprovalWorkflow, error) {
	workflow, err := s.load(ctx, cmd.WorkflowID)
	if err != nil {
		return nil, err
	}

	if step := workflow.CurrentStep(); step != nil && workflow.IsPending() && step.ApproverID != cmd.ApproverID {
		return nil, errors.ErrForbidden("user is not the assigned approver for the current step").
			WithDetail("workflowId", cmd.WorkflowID).
			WithDetail("assignedTo", step.ApproverID)
	}

	if err := workflow.ApproveCurrentStep(cmd.ApproverID, cmd.Notes); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	s.metrics.RecordApprovalDecision("approved")
	s.logger.Info("Approved workflow step",
		"workflowId", workflow.WorkflowID,
		"approverId", cmd.ApproverID,
		"currentStep", workflow.CurrentStepNumber,
		"status", workflow.Status,
	)

	s.notifyDecision(ctx, workflow, "")
	return workflow, nil
}

// RejectStep rejects the workflow from the current step
func (s *ApprovalService) RejectStep(ctx context.Context, cmd StepDecisionCommand) (*domain.ApprovalWorkflow, error) {
	workflow, err := s.load(ctx, cmd.WorkflowID)
	if err != nil {
		return nil, err
	}

	if step := workflow.CurrentStep(); step != nil && workflow.IsPending() && step.ApproverID != cmd.ApproverID {
		return nil, errors.ErrForbidden("user is not the assigned approver for the current step").
			WithDetail("workflowId", cmd.WorkflowID).
			WithDetail("assignedTo", step.ApproverID)
	}

	if err := workflow.RejectCurrentStep(cmd.ApproverID, cmd.Notes); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	s.metrics.RecordApprovalDecision("rejected")
	s.logger.Info("Rejected workflow",
		"workflowId", workflow.WorkflowID,
		"approverId", cmd.ApproverID,
	)

	s.notifyDecision(ctx, workflow, cmd.Notes)
	return workflow, nil
}

// DelegateStepCommand hands the current step to another approver
type DelegateStepCommand struct {
	WorkflowID  string
	DelegatorID string
	DelegateID  string
}

// DelegateStep reassigns the current step without advancing the sequence
func (s *ApprovalService) DelegateStep(ctx context.Context, cmd DelegateStepCommand) (*domain.ApprovalWorkflow, error) {
	workflow, err := s.load(ctx, cmd.WorkflowID)
	if err != nil {
		return nil, err
	}
	if err := workflow.DelegateCurrentStep(cmd.DelegatorID, cmd.DelegateID); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	s.metrics.RecordApprovalDecision("delegated")
	s.logger.Info("Delegated workflow step",
		"workflowId", workflow.WorkflowID,
		"delegatorId", cmd.DelegatorID,
		"delegateId", cmd.DelegateID,
	)
	return workflow, nil
}

// EscalateStep reassigns the current step to the escalation target
func (s *ApprovalService) EscalateStep(ctx context.Context, workflowID, toUserID string) (*domain.ApprovalWorkflow, error) {
	workflow, err := s.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if toUserID == "" {
		toUserID = s.config.EscalationTarget
	}
	if err := workflow.EscalateCurrentStep(toUserID); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	s.metrics.RecordApprovalDecision("escalated")
	s.logger.Info("Escalated workflow step",
		"workflowId", workflow.WorkflowID,
		"escalatedTo", toUserID,
	)
	return workflow, nil
}

// CancelWorkflow withdraws an undecided workflow
func (s *ApprovalService) CancelWorkflow(ctx context.Context, workflowID, reason string) (*domain.ApprovalWorkflow, error) {
	workflow, err := s.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := workflow.Cancel(reason); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.Info("Cancelled approval workflow", "workflowId", workflowID, "reason", reason)
	return workflow, nil
}

// EscalateOverdueSteps walks in-progress workflows and escalates those whose
// current step blew its deadline. The engine never self-schedules; the
// background poller drives this. Returns the number escalated.
func (s *ApprovalService) EscalateOverdueSteps(ctx context.Context, limit int) (int, error) {
	inProgress, err := s.workflows.FindInProgress(ctx, limit)
	if err != nil {
		return 0, errors.ErrInternal("failed to list in-progress workflows").Wrap(err)
	}

	now := time.Now().UTC()
	escalated := 0
	for _, workflow := range inProgress {
		if !workflow.NeedsEscalation(now) {
			continue
		}
		if _, err := s.EscalateStep(ctx, workflow.WorkflowID, s.config.EscalationTarget); err != nil {
			s.logger.WithError(err).Warn("Failed to escalate overdue step",
				"workflowId", workflow.WorkflowID,
			)
			continue
		}
		escalated++
	}
	return escalated, nil
}

// RemindPendingApprovers logs a reminder for approvers sitting on a step past
// the reminder window. Returns the number of reminders raised.
func (s *ApprovalService) RemindPendingApprovers(ctx context.Context, limit int) (int, error) {
	inProgress, err := s.workflows.FindInProgress(ctx, limit)
	if err != nil {
		return 0, errors.ErrInternal("failed to list in-progress workflows").Wrap(err)
	}

	now := time.Now().UTC()
	reminded := 0
	for _, workflow := range inProgress {
		if !workflow.NeedsReminder(now) || workflow.NeedsEscalation(now) {
			continue
		}
		step := workflow.CurrentStep()
		s.logger.Info("Approval reminder due",
			"workflowId", workflow.WorkflowID,
			"stepNumber", step.StepNumber,
			"approverId", step.ApproverID,
			"assignedAt", step.AssignedAt,
		)
		reminded++
	}
	return reminded, nil
}

// ExpireStaleWorkflows ends undecided workflows past their deadline. Returns
// the number expired.
func (s *ApprovalService) ExpireStaleWorkflows(ctx context.Context, limit int) (int, error) {
	stale, err := s.workflows.FindExpiredBefore(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, errors.ErrInternal("failed to list expired workflows").Wrap(err)
	}

	expired := 0
	for _, workflow := range stale {
		if err := workflow.Expire(); err != nil {
			continue
		}
		if err := s.save(ctx, workflow); err != nil {
			s.logger.WithError(err).Error("Failed to save expired workflow",
				"workflowId", workflow.WorkflowID,
			)
			continue
		}
		expired++
		s.logger.Info("Expired approval workflow",
			"workflowId", workflow.WorkflowID,
			"subjectType", workflow.SubjectType,
			"subjectId", workflow.SubjectID,
		)
	}
	return expired, nil
}
