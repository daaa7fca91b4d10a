package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/repositories"
)

// TagService manages tag definitions and manual assignments. Condition
// mutations invalidate the tag cache and trigger a tenant-wide
// re-evaluation through the rule engine.
type TagService interface {
	Create(ctx context.Context, tag *models.TagDefinition) (*models.TagDefinition, error)
	Get(ctx context.Context, tenantID, tagID uuid.UUID) (*models.TagDefinition, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error)
	Update(ctx context.Context, tag *models.TagDefinition) (*models.TagDefinition, error)
	Delete(ctx context.Context, tenantID, tagID uuid.UUID) error

	Assign(ctx context.Context, tenantID, clientID, tagID uuid.UUID) error
	Unassign(ctx context.Context, tenantID, clientID, tagID uuid.UUID) error
}

type tagService struct {
	tags        repositories.TagRepository
	assignments repositories.TagAssignmentRepository
	engine      RuleEngine
	evaluator   *ConditionEvaluator
	cache       *TagCache
	logger      *zap.Logger
}

// NewTagService creates the service.
func NewTagService(
	tags repositories.TagRepository,
	assignments repositories.TagAssignmentRepository,
	engine RuleEngine,
	evaluator *ConditionEvaluator,
	cache *TagCache,
	logger *zap.Logger,
) TagService {
	return &tagService{
		tags:        tags,
		assignments: assignments,
		engine:      engine,
		evaluator:   evaluator,
		cache:       cache,
		logger:      logger.Named("tags"),
	}
}

var _ TagService = (*tagService)(nil)

func (s *tagService) Create(ctx context.Context, tag *models.TagDefinition) (*models.TagDefinition, error) {
	if tag.Name == "" {
		return nil, fmt.Errorf("tag name is required")
	}
	if err := s.evaluator.Validate(tag.Condition); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	now := time.Now()
	tag.CreatedAt = now
	tag.UpdatedAt = now

	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	s.cache.Invalidate(ctx, tag.TenantID)

	if tag.IsActive && tag.HasCondition() {
		if err := s.engine.ReevaluateTagForAllClients(ctx, tag.TenantID, tag.ID); err != nil {
			s.logger.Warn("failed to schedule re-evaluation for new tag",
				zap.String("tenant_id", tag.TenantID.String()),
				zap.String("tag_id", tag.ID.String()),
				zap.Error(err))
		}
	}
	return tag, nil
}

func (s *tagService) Get(ctx context.Context, tenantID, tagID uuid.UUID) (*models.TagDefinition, error) {
	tag, err := s.tags.GetByID(ctx, tenantID, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return tag, nil
}

func (s *tagService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error) {
	tags, err := s.tags.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// Update persists the tag and always triggers re-evaluation, including
// when the condition was cleared: the engine resolves a conditionless tag
// by removing its auto assignments.
func (s *tagService) Update(ctx context.Context, tag *models.TagDefinition) (*models.TagDefinition, error) {
	if tag.Name == "" {
		return nil, fmt.Errorf("tag name is required")
	}
	if err := s.evaluator.Validate(tag.Condition); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	tag.UpdatedAt = time.Now()

	if err := s.tags.Update(ctx, tag); err != nil {
		return nil, fmt.Errorf("failed to update tag: %w", err)
	}

	s.cache.Invalidate(ctx, tag.TenantID)

	if err := s.engine.ReevaluateTagForAllClients(ctx, tag.TenantID, tag.ID); err != nil {
		s.logger.Warn("failed to schedule re-evaluation for updated tag",
			zap.String("tenant_id", tag.TenantID.String()),
			zap.String("tag_id", tag.ID.String()),
			zap.Error(err))
	}
	return tag, nil
}

func (s *tagService) Delete(ctx context.Context, tenantID, tagID uuid.UUID) error {
	// Assignments go with the tag via the schema's cascade
	if err := s.tags.Delete(ctx, tenantID, tagID); err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	s.cache.Invalidate(ctx, tenantID)
	return nil
}

// Assign creates a manual assignment. Assigning an already-tagged client
// is a no-op; an existing auto row is left as-is rather than flipped.
func (s *tagService) Assign(ctx context.Context, tenantID, clientID, tagID uuid.UUID) error {
	if _, err := s.tags.GetByID(ctx, tenantID, tagID); err != nil {
		return fmt.Errorf("failed to load tag: %w", err)
	}

	_, err := s.assignments.InsertIfAbsent(ctx, &models.TagAssignment{
		ClientID:       clientID,
		TagID:          tagID,
		IsAutoAssigned: false,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to assign tag: %w", err)
	}
	return nil
}

// Unassign removes the assignment regardless of how it was made. Humans
// may remove anything; only the engine is restricted to auto rows.
func (s *tagService) Unassign(ctx context.Context, tenantID, clientID, tagID uuid.UUID) error {
	if err := s.assignments.Delete(ctx, clientID, tagID); err != nil {
		return fmt.Errorf("failed to unassign tag: %w", err)
	}
	return nil
}
