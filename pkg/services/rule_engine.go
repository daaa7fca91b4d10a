package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/repositories"
	"github.com/atrium-crm/atrium-engine/pkg/services/workqueue"
)

// TenantScoper opens a fresh tenant-scoped database context for work that
// runs outside a request, such as background tasks.
type TenantScoper interface {
	WithTenantScope(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error)
}

// RuleEngine keeps tag assignments consistent with tag conditions.
//
// EvaluateAndAssign reconciles a single client synchronously inside a
// transaction; callers run it after every client mutation. Re-evaluating a
// tag against the whole tenant is a background walk: the call returns
// immediately and the walk's outcome is observable only through logs.
type RuleEngine interface {
	EvaluateAndAssign(ctx context.Context, client *models.Client) error
	ReevaluateTagForAllClients(ctx context.Context, tenantID, tagID uuid.UUID) error
}

type ruleEngine struct {
	tags        repositories.TagRepository
	clients     repositories.ClientRepository
	assignments repositories.TagAssignmentRepository
	evaluator   *ConditionEvaluator
	cache       *TagCache
	tx          TxRunner
	queue       workqueue.TaskEnqueuer
	scopes      TenantScoper
	batchSize   int
	logger      *zap.Logger
}

// NewRuleEngine creates the engine. batchSize controls bulk walk paging.
func NewRuleEngine(
	tags repositories.TagRepository,
	clients repositories.ClientRepository,
	assignments repositories.TagAssignmentRepository,
	evaluator *ConditionEvaluator,
	cache *TagCache,
	tx TxRunner,
	queue workqueue.TaskEnqueuer,
	scopes TenantScoper,
	batchSize int,
	logger *zap.Logger,
) RuleEngine {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ruleEngine{
		tags:        tags,
		clients:     clients,
		assignments: assignments,
		evaluator:   evaluator,
		cache:       cache,
		tx:          tx,
		queue:       queue,
		scopes:      scopes,
		batchSize:   batchSize,
		logger:      logger.Named("rule_engine"),
	}
}

var _ RuleEngine = (*ruleEngine)(nil)

// EvaluateAndAssign reconciles all auto-assignments for one client against
// the tenant's active tag conditions. Runs in a single transaction: either
// the full diff is applied or nothing is.
//
// Evaluation errors on individual tags are logged and skipped so that one
// broken rule cannot block the client mutation that triggered the run.
// Storage errors abort and surface as ErrReconciliationFailed.
func (e *ruleEngine) EvaluateAndAssign(ctx context.Context, client *models.Client) error {
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		tags, err := e.loadActiveTags(ctx, client.TenantID)
		if err != nil {
			return fmt.Errorf("failed to load tag definitions: %w", err)
		}

		current, err := e.assignments.ListAutoForClient(ctx, client.ID)
		if err != nil {
			return fmt.Errorf("failed to load current assignments: %w", err)
		}
		autoAssigned := make(map[uuid.UUID]bool, len(current))
		for _, a := range current {
			autoAssigned[a.TagID] = true
		}

		for _, tag := range tags {
			matched, evalErr := e.evaluator.Evaluate(client, tag.Condition)
			if evalErr != nil {
				e.logger.Warn("skipping tag: condition evaluation failed",
					zap.String("tenant_id", client.TenantID.String()),
					zap.String("tag_id", tag.ID.String()),
					zap.String("client_id", client.ID.String()),
					zap.Error(evalErr))
				continue
			}

			if matched && !autoAssigned[tag.ID] {
				if err := e.assignTag(ctx, client.ID, tag.ID); err != nil {
					return err
				}
			} else if !matched && autoAssigned[tag.ID] {
				if err := e.assignments.DeleteAuto(ctx, client.ID, tag.ID); err != nil {
					return fmt.Errorf("failed to remove auto assignment for tag %s: %w", tag.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: client %s: %w", apperrors.ErrReconciliationFailed, client.ID, err)
	}
	return nil
}

// assignTag creates an auto assignment unless any row, manual or auto,
// already exists for the pair. The insert is idempotent, so a concurrent
// duplicate is a no-op rather than an error.
func (e *ruleEngine) assignTag(ctx context.Context, clientID, tagID uuid.UUID) error {
	existing, err := e.assignments.Get(ctx, clientID, tagID)
	if err != nil {
		return fmt.Errorf("failed to check existing assignment for tag %s: %w", tagID, err)
	}
	if existing != nil {
		return nil
	}

	inserted, err := e.assignments.InsertIfAbsent(ctx, &models.TagAssignment{
		ClientID:       clientID,
		TagID:          tagID,
		IsAutoAssigned: true,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to create auto assignment for tag %s: %w", tagID, err)
	}
	if inserted {
		e.logger.Info("tag auto-assigned",
			zap.String("client_id", clientID.String()),
			zap.String("tag_id", tagID.String()))
	}
	return nil
}

// ReevaluateTagForAllClients re-applies one tag's condition across the
// tenant. Called after the tag's condition changes.
//
// A tag that no longer carries a usable condition (cleared, or the tag was
// deactivated) has its auto assignments removed synchronously; manual rows
// survive. Otherwise a background walk over all active clients is enqueued
// and the call returns before the walk runs.
func (e *ruleEngine) ReevaluateTagForAllClients(ctx context.Context, tenantID, tagID uuid.UUID) error {
	tag, err := e.tags.GetByID(ctx, tenantID, tagID)
	if err != nil {
		return fmt.Errorf("failed to load tag %s: %w", tagID, err)
	}

	if !tag.IsActive || !tag.HasCondition() {
		removed, err := e.assignments.DeleteAutoForTag(ctx, tagID)
		if err != nil {
			return fmt.Errorf("failed to remove auto assignments for tag %s: %w", tagID, err)
		}
		e.logger.Info("condition removed, auto assignments deleted",
			zap.String("tenant_id", tenantID.String()),
			zap.String("tag_id", tagID.String()),
			zap.Int64("removed", removed))
		return nil
	}

	e.queue.Enqueue(newTagReevaluateTask(
		tenantID,
		tagID,
		e.scopes,
		e.tags,
		e.clients,
		e.assignments,
		e.evaluator,
		e.batchSize,
		e.logger,
	))
	return nil
}

// loadActiveTags reads the tenant's active, condition-bearing tags through
// the cache.
func (e *ruleEngine) loadActiveTags(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error) {
	if cached, ok := e.cache.GetActive(ctx, tenantID); ok {
		return cached, nil
	}

	tags, err := e.tags.ListActiveWithCondition(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	e.cache.SetActive(ctx, tenantID, tags)
	return tags, nil
}
