package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/database"
	"github.com/atrium-crm/atrium-engine/pkg/models"
)

// OfferRepository defines the interface for commercial offer data access.
type OfferRepository interface {
	// Create inserts a new offer.
	Create(ctx context.Context, offer *models.Offer) error

	// GetByID returns an offer by id. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error)

	// ListByClient returns all offers for one client, newest first.
	ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Offer, error)

	// UpdateStatus moves an offer to a new status.
	UpdateStatus(ctx context.Context, tenantID, offerID uuid.UUID, status string) error

	// Delete removes an offer.
	Delete(ctx context.Context, tenantID, offerID uuid.UUID) error
}

// offerRepository implements OfferRepository using PostgreSQL.
type offerRepository struct{}

// NewOfferRepository creates a new offer repository.
func NewOfferRepository() OfferRepository {
	return &offerRepository{}
}

// Create inserts a new offer.
func (r *offerRepository) Create(ctx context.Context, offer *models.Offer) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO offers (id, tenant_id, client_id, title, total_amount, currency,
			status, valid_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := scope.Conn.Exec(ctx, query,
		offer.ID,
		offer.TenantID,
		offer.ClientID,
		offer.Title,
		offer.TotalAmount,
		offer.Currency,
		offer.Status,
		offer.ValidUntil,
		offer.CreatedAt,
		offer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	return nil
}

// GetByID returns an offer by id.
func (r *offerRepository) GetByID(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, client_id, title, total_amount, currency, status,
			valid_until, created_at, updated_at
		FROM offers
		WHERE tenant_id = $1 AND id = $2`

	row := scope.Conn.QueryRow(ctx, query, tenantID, offerID)
	offer, err := r.scanOfferRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	return offer, nil
}

// ListByClient returns all offers for one client, newest first.
func (r *offerRepository) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Offer, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, client_id, title, total_amount, currency, status,
			valid_until, created_at, updated_at
		FROM offers
		WHERE tenant_id = $1 AND client_id = $2
		ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []*models.Offer
	for rows.Next() {
		offer, err := r.scanOfferRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}

	return offers, nil
}

// UpdateStatus moves an offer to a new status.
func (r *offerRepository) UpdateStatus(ctx context.Context, tenantID, offerID uuid.UUID, status string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE offers
		SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query, tenantID, offerID, status)
	if err != nil {
		return fmt.Errorf("failed to update offer status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes an offer.
func (r *offerRepository) Delete(ctx context.Context, tenantID, offerID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `DELETE FROM offers WHERE tenant_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query, tenantID, offerID)
	if err != nil {
		return fmt.Errorf("failed to delete offer: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// scanOfferRow scans a single row into an Offer.
func (r *offerRepository) scanOfferRow(row pgx.Row) (*models.Offer, error) {
	var offer models.Offer
	err := row.Scan(
		&offer.ID,
		&offer.TenantID,
		&offer.ClientID,
		&offer.Title,
		&offer.TotalAmount,
		&offer.Currency,
		&offer.Status,
		&offer.ValidUntil,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// Ensure offerRepository implements OfferRepository at compile time.
var _ OfferRepository = (*offerRepository)(nil)
