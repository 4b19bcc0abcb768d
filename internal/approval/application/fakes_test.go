package application

import (
	"context"
	"sync"
	"time"

	"github.com/erp-platform/order-lifecycle/internal/approval/domain"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
)

type fakeWorkflowRepo struct {
	mu        sync.Mutex
	workflows map[string]*domain.ApprovalWorkflow

	failSavesWithConflict int
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{workflows: make(map[string]*domain.ApprovalWorkflow)}
}

func copyWorkflow(w *domain.ApprovalWorkflow) *domain.ApprovalWorkflow {
	cp := *w
	cp.DomainEvents = nil
	cp.Steps = append([]domain.ApprovalStep(nil), w.Steps...)
	return &cp
}

func (r *fakeWorkflowRepo) Save(ctx context.Context, workflow *domain.ApprovalWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSavesWithConflict > 0 {
		r.failSavesWithConflict--
		return domain.ErrVersionConflict
	}

	if stored, ok := r.workflows[workflow.WorkflowID]; ok {
		if stored.Version != workflow.Version {
			return domain.ErrVersionConflict
		}
	}
	workflow.Version++
	r.workflows[workflow.WorkflowID] = copyWorkflow(workflow)
	return nil
}

func (r *fakeWorkflowRepo) FindByWorkflowID(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.workflows[workflowID]; ok {
		return copyWorkflow(stored), nil
	}
	return nil, nil
}

func (r *fakeWorkflowRepo) FindBySubject(ctx context.Context, subjectType, subjectID string) ([]*domain.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ApprovalWorkflow
	for _, w := range r.workflows {
		if w.SubjectType == subjectType && w.SubjectID == subjectID {
			out = append(out, copyWorkflow(w))
		}
	}
	return out, nil
}

func (r *fakeWorkflowRepo) FindInProgress(ctx context.Context, limit int) ([]*domain.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ApprovalWorkflow
	for _, w := range r.workflows {
		if w.Status == domain.WorkflowInProgress {
			out = append(out, copyWorkflow(w))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeWorkflowRepo) FindExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ApprovalWorkflow
	for _, w := range r.workflows {
		if !w.IsTerminal() && w.ExpiresAt != nil && w.ExpiresAt.Before(cutoff) {
			out = append(out, copyWorkflow(w))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeWorkflowRepo) Find(ctx context.Context, filter domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ApprovalWorkflow
	for _, w := range r.workflows {
		if filter.SubjectType != "" && w.SubjectType != filter.SubjectType {
			continue
		}
		if filter.SubjectID != "" && w.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		out = append(out, copyWorkflow(w))
	}
	return out, nil
}

func (r *fakeWorkflowRepo) Count(ctx context.Context, filter domain.WorkflowFilter) (int64, error) {
	found, err := r.Find(ctx, filter)
	return int64(len(found)), err
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*outbox.OutboxEvent
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{}
}

func (r *fakeOutboxRepo) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeOutboxRepo) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*outbox.OutboxEvent
	for _, e := range r.events {
		if !e.IsPublished() {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range r.events {
		if e.ID == eventID {
			e.PublishedAt = &now
		}
	}
	return nil
}

func (r *fakeOutboxRepo) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			e.RetryCount++
			e.LastError = errorMsg
		}
	}
	return nil
}

func (r *fakeOutboxRepo) DeletePublished(ctx context.Context, olderThan int64) error {
	return nil
}

func (r *fakeOutboxRepo) GetByID(ctx context.Context, eventID string) (*outbox.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeOutboxRepo) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*outbox.OutboxEvent
	for _, e := range r.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

type decisionRecord struct {
	workflowID string
	approved   bool
	decidedBy  string
	reason     string
}

type fakeDecisionSink struct {
	mu        sync.Mutex
	decisions []decisionRecord
	fail      error
}

func (s *fakeDecisionSink) notify(ctx context.Context, workflowID string, approved bool, decidedBy, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.decisions = append(s.decisions, decisionRecord{
		workflowID: workflowID,
		approved:   approved,
		decidedBy:  decidedBy,
		reason:     reason,
	})
	return nil
}
