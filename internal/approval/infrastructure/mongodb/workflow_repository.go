package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/erp-platform/order-lifecycle/internal/approval/domain"
)

const workflowsCollection = "approval_workflows"

var terminalStatuses = []domain.WorkflowStatus{
	domain.WorkflowApproved,
	domain.WorkflowRejected,
	domain.WorkflowCancelled,
	domain.WorkflowExpired,
}

// WorkflowRepository implements domain.WorkflowRepository on MongoDB
type WorkflowRepository struct {
	collection *mongo.Collection
}

func NewWorkflowRepository(db *mongo.Database) *WorkflowRepository {
	repo := &WorkflowRepository{collection: db.Collection(workflowsCollection)}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *WorkflowRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "workflowId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_workflow_id"),
		},
		{Keys: bson.D{{Key: "subjectType", Value: 1}, {Key: "subjectId", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save persists the aggregate with an optimistic version check
func (r *WorkflowRepository) Save(ctx context.Context, workflow *domain.ApprovalWorkflow) error {
	workflow.UpdatedAt = time.Now().UTC()

	if workflow.Version == 0 {
		workflow.Version = 1
		if _, err := r.collection.InsertOne(ctx, workflow); err != nil {
			workflow.Version = 0
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrVersionConflict
			}
			return err
		}
		return nil
	}

	loadedVersion := workflow.Version
	workflow.Version = loadedVersion + 1

	filter := bson.M{
		"workflowId": workflow.WorkflowID,
		"version":    loadedVersion,
	}

	res, err := r.collection.ReplaceOne(ctx, filter, workflow)
	if err != nil {
		workflow.Version = loadedVersion
		return err
	}
	if res.MatchedCount == 0 {
		workflow.Version = loadedVersion
		return domain.ErrVersionConflict
	}
	return nil
}

// FindByWorkflowID returns a workflow by its business id, nil when absent
func (r *WorkflowRepository) FindByWorkflowID(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error) {
	var workflow domain.ApprovalWorkflow
	err := r.collection.FindOne(ctx, bson.M{"workflowId": workflowID}).Decode(&workflow)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// FindBySubject returns workflows attached to a subject, newest first
func (r *WorkflowRepository) FindBySubject(ctx context.Context, subjectType, subjectID string) ([]*domain.ApprovalWorkflow, error) {
	filter := bson.M{"subjectType": subjectType, "subjectId": subjectID}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findAll(ctx, filter, opts)
}

// FindInProgress returns undecided workflows oldest first for the pollers
func (r *WorkflowRepository) FindInProgress(ctx context.Context, limit int) ([]*domain.ApprovalWorkflow, error) {
	filter := bson.M{"status": domain.WorkflowInProgress}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findAll(ctx, filter, opts)
}

// FindExpiredBefore returns undecided workflows whose deadline passed
func (r *WorkflowRepository) FindExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ApprovalWorkflow, error) {
	filter := bson.M{
		"status":    bson.M{"$nin": terminalStatuses},
		"expiresAt": bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findAll(ctx, filter, opts)
}

func buildWorkflowFilter(filter domain.WorkflowFilter) bson.M {
	query := bson.M{}
	if filter.SubjectType != "" {
		query["subjectType"] = filter.SubjectType
	}
	if filter.SubjectID != "" {
		query["subjectId"] = filter.SubjectID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.ApproverID != "" {
		query["steps.approverId"] = filter.ApproverID
	}
	return query
}

// Find returns workflows matching the filter, newest first
func (r *WorkflowRepository) Find(ctx context.Context, filter domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	return r.findAll(ctx, buildWorkflowFilter(filter), opts)
}

func (r *WorkflowRepository) Count(ctx context.Context, filter domain.WorkflowFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, buildWorkflowFilter(filter))
}

func (r *WorkflowRepository) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.ApprovalWorkflow, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var workflows []*domain.ApprovalWorkflow
	if err := cursor.All(ctx, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}
