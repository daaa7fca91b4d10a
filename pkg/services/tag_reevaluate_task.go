package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/repositories"
	"github.com/atrium-crm/atrium-engine/pkg/services/workqueue"
)

// tagReevaluateTask walks every active client of a tenant and reconciles a
// single tag's assignments with its current condition. It runs detached
// from the request that triggered it, on its own tenant-scoped connection.
//
// The walk pages through clients in stable id order and re-checks the
// assignment state per client immediately before writing, so it stays
// correct under concurrent edits. Per-client failures are logged and
// skipped; the walk never reports them to a caller because it has none.
type tagReevaluateTask struct {
	workqueue.BaseTask
	tenantID uuid.UUID
	tagID    uuid.UUID

	scopes      TenantScoper
	tags        repositories.TagRepository
	clients     repositories.ClientRepository
	assignments repositories.TagAssignmentRepository
	evaluator   *ConditionEvaluator
	batchSize   int
	logger      *zap.Logger
}

func newTagReevaluateTask(
	tenantID, tagID uuid.UUID,
	scopes TenantScoper,
	tags repositories.TagRepository,
	clients repositories.ClientRepository,
	assignments repositories.TagAssignmentRepository,
	evaluator *ConditionEvaluator,
	batchSize int,
	logger *zap.Logger,
) *tagReevaluateTask {
	return &tagReevaluateTask{
		BaseTask:    workqueue.NewBaseTask("tag-reevaluate", true),
		tenantID:    tenantID,
		tagID:       tagID,
		scopes:      scopes,
		tags:        tags,
		clients:     clients,
		assignments: assignments,
		evaluator:   evaluator,
		batchSize:   batchSize,
		logger:      logger.Named("tag_reevaluate"),
	}
}

func (t *tagReevaluateTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	ctx, release, err := t.scopes.WithTenantScope(ctx, t.tenantID)
	if err != nil {
		return fmt.Errorf("failed to open tenant scope: %w", err)
	}
	defer release()

	tag, err := t.tags.GetByID(ctx, t.tenantID, t.tagID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Tag deleted between enqueue and execution, nothing to do
			return nil
		}
		return fmt.Errorf("failed to load tag %s: %w", t.tagID, err)
	}

	if !tag.IsActive || !tag.HasCondition() {
		removed, err := t.assignments.DeleteAutoForTag(ctx, t.tagID)
		if err != nil {
			return fmt.Errorf("failed to remove auto assignments for tag %s: %w", t.tagID, err)
		}
		t.logger.Info("walk resolved to removal, condition no longer applies",
			zap.String("tenant_id", t.tenantID.String()),
			zap.String("tag_id", t.tagID.String()),
			zap.Int64("removed", removed))
		return nil
	}

	total, err := t.clients.CountActive(ctx, t.tenantID)
	if err != nil {
		return fmt.Errorf("failed to count active clients: %w", err)
	}
	if total == 0 {
		t.logger.Info("walk skipped, tenant has no active clients",
			zap.String("tenant_id", t.tenantID.String()),
			zap.String("tag_id", t.tagID.String()))
		return nil
	}

	var processed, assigned, unassigned, skipped int
	for offset := 0; ; offset += t.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := t.clients.ListActivePage(ctx, t.tenantID, offset, t.batchSize)
		if err != nil {
			return fmt.Errorf("failed to page clients at offset %d: %w", offset, err)
		}

		for _, client := range page {
			processed++
			outcome, err := t.reconcileClient(ctx, tag, client)
			if err != nil {
				skipped++
				t.logger.Warn("skipping client during walk",
					zap.String("tenant_id", t.tenantID.String()),
					zap.String("tag_id", t.tagID.String()),
					zap.String("client_id", client.ID.String()),
					zap.Error(err))
				continue
			}
			switch outcome {
			case walkAssigned:
				assigned++
			case walkUnassigned:
				unassigned++
			}
		}

		if len(page) < t.batchSize {
			break
		}
	}

	t.logger.Info("tag walk complete",
		zap.String("tenant_id", t.tenantID.String()),
		zap.String("tag_id", t.tagID.String()),
		zap.Int("total", total),
		zap.Int("processed", processed),
		zap.Int("assigned", assigned),
		zap.Int("unassigned", unassigned),
		zap.Int("skipped", skipped))
	return nil
}

type walkOutcome int

const (
	walkUnchanged walkOutcome = iota
	walkAssigned
	walkUnassigned
)

// reconcileClient applies the tag's condition to one client. The current
// assignment row is read right before the write; manual rows are left
// untouched in both directions.
func (t *tagReevaluateTask) reconcileClient(ctx context.Context, tag *models.TagDefinition, client *models.Client) (walkOutcome, error) {
	matched, err := t.evaluator.Evaluate(client, tag.Condition)
	if err != nil {
		return walkUnchanged, err
	}

	existing, err := t.assignments.Get(ctx, client.ID, tag.ID)
	if err != nil {
		return walkUnchanged, err
	}

	if matched {
		if existing != nil {
			return walkUnchanged, nil
		}
		inserted, err := t.assignments.InsertIfAbsent(ctx, &models.TagAssignment{
			ClientID:       client.ID,
			TagID:          tag.ID,
			IsAutoAssigned: true,
			CreatedAt:      time.Now(),
		})
		if err != nil {
			return walkUnchanged, err
		}
		if inserted {
			return walkAssigned, nil
		}
		return walkUnchanged, nil
	}

	if existing == nil || !existing.IsAutoAssigned {
		return walkUnchanged, nil
	}
	if err := t.assignments.DeleteAuto(ctx, client.ID, tag.ID); err != nil {
		return walkUnchanged, err
	}
	return walkUnassigned, nil
}
