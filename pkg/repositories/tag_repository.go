package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/database"
	"github.com/atrium-crm/atrium-engine/pkg/models"
)

// TagRepository defines the interface for tag definition data access.
type TagRepository interface {
	// Create inserts a new tag definition.
	Create(ctx context.Context, tag *models.TagDefinition) error

	// GetByID returns a tag by id. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, tenantID, tagID uuid.UUID) (*models.TagDefinition, error)

	// List returns all tag definitions for a tenant.
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error)

	// ListActiveWithCondition returns active tags that carry a condition tree.
	// These are the candidates for automatic assignment.
	ListActiveWithCondition(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error)

	// Update persists name, color, active flag and condition.
	Update(ctx context.Context, tag *models.TagDefinition) error

	// Delete removes a tag definition (assignments cascade).
	Delete(ctx context.Context, tenantID, tagID uuid.UUID) error
}

// tagRepository implements TagRepository using PostgreSQL.
type tagRepository struct{}

// NewTagRepository creates a new tag repository.
func NewTagRepository() TagRepository {
	return &tagRepository{}
}

// Create inserts a new tag definition.
func (r *tagRepository) Create(ctx context.Context, tag *models.TagDefinition) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	conditionJSON, err := marshalCondition(tag.Condition)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tags (id, tenant_id, name, color, is_active, condition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = scope.Conn.Exec(ctx, query,
		tag.ID,
		tag.TenantID,
		tag.Name,
		nullable(tag.Color),
		tag.IsActive,
		conditionJSON,
		tag.CreatedAt,
		tag.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}

	return nil
}

// GetByID returns a tag by id.
func (r *tagRepository) GetByID(ctx context.Context, tenantID, tagID uuid.UUID) (*models.TagDefinition, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, name, color, is_active, condition, created_at, updated_at
		FROM tags
		WHERE tenant_id = $1 AND id = $2`

	row := scope.Conn.QueryRow(ctx, query, tenantID, tagID)
	tag, err := r.scanTagRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return tag, nil
}

// List returns all tag definitions for a tenant.
func (r *tagRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, name, color, is_active, condition, created_at, updated_at
		FROM tags
		WHERE tenant_id = $1
		ORDER BY name ASC`

	rows, err := scope.Conn.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	return r.collectTags(rows)
}

// ListActiveWithCondition returns active tags that carry a condition tree.
func (r *tagRepository) ListActiveWithCondition(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, name, color, is_active, condition, created_at, updated_at
		FROM tags
		WHERE tenant_id = $1 AND is_active = true AND condition IS NOT NULL
		ORDER BY id ASC`

	rows, err := scope.Conn.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate tags: %w", err)
	}
	defer rows.Close()

	return r.collectTags(rows)
}

// Update persists name, color, active flag and condition.
func (r *tagRepository) Update(ctx context.Context, tag *models.TagDefinition) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	conditionJSON, err := marshalCondition(tag.Condition)
	if err != nil {
		return err
	}

	query := `
		UPDATE tags
		SET name = $3, color = $4, is_active = $5, condition = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query,
		tag.TenantID,
		tag.ID,
		tag.Name,
		nullable(tag.Color),
		tag.IsActive,
		conditionJSON,
		tag.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes a tag definition.
func (r *tagRepository) Delete(ctx context.Context, tenantID, tagID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `DELETE FROM tags WHERE tenant_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query, tenantID, tagID)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// collectTags scans all rows into tag definitions.
func (r *tagRepository) collectTags(rows pgx.Rows) ([]*models.TagDefinition, error) {
	var tags []*models.TagDefinition
	for rows.Next() {
		tag, err := r.scanTagRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

// scanTagRow scans a single row into a TagDefinition.
func (r *tagRepository) scanTagRow(row pgx.Row) (*models.TagDefinition, error) {
	var tag models.TagDefinition
	var color *string
	var conditionJSON []byte

	err := row.Scan(
		&tag.ID,
		&tag.TenantID,
		&tag.Name,
		&color,
		&tag.IsActive,
		&conditionJSON,
		&tag.CreatedAt,
		&tag.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tag.Color = deref(color)

	if len(conditionJSON) > 0 {
		var node models.ConditionNode
		if err := json.Unmarshal(conditionJSON, &node); err != nil {
			return nil, fmt.Errorf("failed to unmarshal condition: %w", err)
		}
		tag.Condition = &node
	}

	return &tag, nil
}

// marshalCondition serializes a condition tree for the JSONB column.
// A nil tree stores SQL NULL, marking the tag as purely manual.
func marshalCondition(node *models.ConditionNode) ([]byte, error) {
	if node == nil {
		return nil, nil
	}
	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal condition: %w", err)
	}
	return data, nil
}

// Ensure tagRepository implements TagRepository at compile time.
var _ TagRepository = (*tagRepository)(nil)
