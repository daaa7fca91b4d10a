package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atrium-crm/atrium-engine/pkg/database"
	"github.com/atrium-crm/atrium-engine/pkg/models"
)

// TagAssignmentRepository defines the interface for the client/tag join table.
// The (client_id, tag_id) pair is unique in storage; InsertIfAbsent leans on
// that constraint to stay idempotent under concurrent reconciliation.
type TagAssignmentRepository interface {
	// ListAutoForClient returns the engine-created assignments for a client.
	ListAutoForClient(ctx context.Context, clientID uuid.UUID) ([]*models.TagAssignment, error)

	// Get returns the assignment for a (client, tag) pair, or nil if absent.
	Get(ctx context.Context, clientID, tagID uuid.UUID) (*models.TagAssignment, error)

	// InsertIfAbsent inserts an assignment unless the pair already exists.
	// Reports whether a row was actually inserted; losing the race to a
	// concurrent writer is not an error.
	InsertIfAbsent(ctx context.Context, assignment *models.TagAssignment) (bool, error)

	// Delete removes the assignment for a (client, tag) pair.
	Delete(ctx context.Context, clientID, tagID uuid.UUID) error

	// DeleteAuto removes the assignment only if it is engine-created.
	// Re-validating the flag at delete time keeps manual rows safe even if
	// the caller's snapshot is stale.
	DeleteAuto(ctx context.Context, clientID, tagID uuid.UUID) error

	// DeleteAutoForTag removes every engine-created assignment of a tag
	// across the tenant. Returns the number of rows removed.
	DeleteAutoForTag(ctx context.Context, tagID uuid.UUID) (int64, error)
}

// tagAssignmentRepository implements TagAssignmentRepository using PostgreSQL.
type tagAssignmentRepository struct{}

// NewTagAssignmentRepository creates a new tag assignment repository.
func NewTagAssignmentRepository() TagAssignmentRepository {
	return &tagAssignmentRepository{}
}

// ListAutoForClient returns the engine-created assignments for a client.
func (r *tagAssignmentRepository) ListAutoForClient(ctx context.Context, clientID uuid.UUID) ([]*models.TagAssignment, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT client_id, tag_id, is_auto_assigned, created_at
		FROM client_tags
		WHERE client_id = $1 AND is_auto_assigned = true`

	rows, err := scope.Conn.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.TagAssignment
	for rows.Next() {
		assignment, err := r.scanAssignmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}

// Get returns the assignment for a (client, tag) pair, or nil if absent.
func (r *tagAssignmentRepository) Get(ctx context.Context, clientID, tagID uuid.UUID) (*models.TagAssignment, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT client_id, tag_id, is_auto_assigned, created_at
		FROM client_tags
		WHERE client_id = $1 AND tag_id = $2`

	row := scope.Conn.QueryRow(ctx, query, clientID, tagID)
	assignment, err := r.scanAssignmentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return assignment, nil
}

// InsertIfAbsent inserts an assignment unless the pair already exists.
func (r *tagAssignmentRepository) InsertIfAbsent(ctx context.Context, assignment *models.TagAssignment) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO client_tags (client_id, tag_id, is_auto_assigned, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, tag_id) DO NOTHING`

	result, err := scope.Conn.Exec(ctx, query,
		assignment.ClientID,
		assignment.TagID,
		assignment.IsAutoAssigned,
		assignment.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Delete removes the assignment for a (client, tag) pair.
func (r *tagAssignmentRepository) Delete(ctx context.Context, clientID, tagID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `DELETE FROM client_tags WHERE client_id = $1 AND tag_id = $2`

	_, err := scope.Conn.Exec(ctx, query, clientID, tagID)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}

	return nil
}

// DeleteAuto removes the assignment only if it is engine-created.
func (r *tagAssignmentRepository) DeleteAuto(ctx context.Context, clientID, tagID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		DELETE FROM client_tags
		WHERE client_id = $1 AND tag_id = $2 AND is_auto_assigned = true`

	_, err := scope.Conn.Exec(ctx, query, clientID, tagID)
	if err != nil {
		return fmt.Errorf("failed to delete auto assignment: %w", err)
	}

	return nil
}

// DeleteAutoForTag removes every engine-created assignment of a tag.
func (r *tagAssignmentRepository) DeleteAutoForTag(ctx context.Context, tagID uuid.UUID) (int64, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	query := `DELETE FROM client_tags WHERE tag_id = $1 AND is_auto_assigned = true`

	result, err := scope.Conn.Exec(ctx, query, tagID)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete auto assignments: %w", err)
	}

	return result.RowsAffected(), nil
}

// scanAssignmentRow scans a single row into a TagAssignment.
func (r *tagAssignmentRepository) scanAssignmentRow(row pgx.Row) (*models.TagAssignment, error) {
	var assignment models.TagAssignment
	err := row.Scan(
		&assignment.ClientID,
		&assignment.TagID,
		&assignment.IsAutoAssigned,
		&assignment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Ensure tagAssignmentRepository implements TagAssignmentRepository at compile time.
var _ TagAssignmentRepository = (*tagAssignmentRepository)(nil)
