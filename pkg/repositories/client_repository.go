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

// ClientRepository defines the interface for client record data access.
type ClientRepository interface {
	// Create inserts a new client.
	Create(ctx context.Context, client *models.Client) error

	// GetByID returns a client by id. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, tenantID, clientID uuid.UUID) (*models.Client, error)

	// List returns all clients for a tenant ordered by creation time.
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error)

	// Update persists mutable client attributes.
	Update(ctx context.Context, client *models.Client) error

	// Delete removes a client (assignments cascade).
	Delete(ctx context.Context, tenantID, clientID uuid.UUID) error

	// CountActive returns the number of non-archived clients for a tenant.
	CountActive(ctx context.Context, tenantID uuid.UUID) (int, error)

	// ListActivePage returns one page of non-archived clients ordered by id.
	// Deterministic ordering guarantees full coverage across pages during a
	// bulk walk even as records are added or removed mid-walk.
	ListActivePage(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*models.Client, error)
}

// clientRepository implements ClientRepository using PostgreSQL.
type clientRepository struct{}

// NewClientRepository creates a new client repository.
func NewClientRepository() ClientRepository {
	return &clientRepository{}
}

const clientColumns = `id, tenant_id, name, email, phone, city, country, status, source,
		industry, is_company, tax_id, owner_id, created_at, updated_at`

// Create inserts a new client.
func (r *clientRepository) Create(ctx context.Context, client *models.Client) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO clients (id, tenant_id, name, email, phone, city, country, status,
			source, industry, is_company, tax_id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := scope.Conn.Exec(ctx, query,
		client.ID,
		client.TenantID,
		client.Name,
		nullable(client.Email),
		nullable(client.Phone),
		nullable(client.City),
		nullable(client.Country),
		client.Status,
		nullable(client.Source),
		nullable(client.Industry),
		client.IsCompany,
		nullable(client.TaxID),
		nullableUUID(client.OwnerID),
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	return nil
}

// GetByID returns a client by id.
func (r *clientRepository) GetByID(ctx context.Context, tenantID, clientID uuid.UUID) (*models.Client, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE tenant_id = $1 AND id = $2`

	row := scope.Conn.QueryRow(ctx, query, tenantID, clientID)
	client, err := r.scanClientRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return client, nil
}

// List returns all clients for a tenant ordered by creation time.
func (r *clientRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE tenant_id = $1
		ORDER BY created_at ASC`

	rows, err := scope.Conn.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	return r.collectClients(rows)
}

// Update persists mutable client attributes.
func (r *clientRepository) Update(ctx context.Context, client *models.Client) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE clients
		SET name = $3, email = $4, phone = $5, city = $6, country = $7, status = $8,
			source = $9, industry = $10, is_company = $11, tax_id = $12, owner_id = $13,
			updated_at = $14
		WHERE tenant_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query,
		client.TenantID,
		client.ID,
		client.Name,
		nullable(client.Email),
		nullable(client.Phone),
		nullable(client.City),
		nullable(client.Country),
		client.Status,
		nullable(client.Source),
		nullable(client.Industry),
		client.IsCompany,
		nullable(client.TaxID),
		nullableUUID(client.OwnerID),
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes a client.
func (r *clientRepository) Delete(ctx context.Context, tenantID, clientID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `DELETE FROM clients WHERE tenant_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query, tenantID, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// CountActive returns the number of non-archived clients for a tenant.
func (r *clientRepository) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT COUNT(*) FROM clients WHERE tenant_id = $1 AND status <> $2`

	var count int
	err := scope.Conn.QueryRow(ctx, query, tenantID, models.ClientStatusArchived).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active clients: %w", err)
	}

	return count, nil
}

// ListActivePage returns one page of non-archived clients ordered by id.
func (r *clientRepository) ListActivePage(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*models.Client, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE tenant_id = $1 AND status <> $2
		ORDER BY id ASC
		OFFSET $3 LIMIT $4`

	rows, err := scope.Conn.Query(ctx, query, tenantID, models.ClientStatusArchived, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to page active clients: %w", err)
	}
	defer rows.Close()

	return r.collectClients(rows)
}

// collectClients scans all rows into clients.
func (r *clientRepository) collectClients(rows pgx.Rows) ([]*models.Client, error) {
	var clients []*models.Client
	for rows.Next() {
		client, err := r.scanClientRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}

// scanClientRow scans a single row into a Client.
func (r *clientRepository) scanClientRow(row pgx.Row) (*models.Client, error) {
	var client models.Client
	var email, phone, city, country, source, industry, taxID *string
	var ownerID *uuid.UUID

	err := row.Scan(
		&client.ID,
		&client.TenantID,
		&client.Name,
		&email,
		&phone,
		&city,
		&country,
		&client.Status,
		&source,
		&industry,
		&client.IsCompany,
		&taxID,
		&ownerID,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	client.Email = deref(email)
	client.Phone = deref(phone)
	client.City = deref(city)
	client.Country = deref(country)
	client.Source = deref(source)
	client.Industry = deref(industry)
	client.TaxID = deref(taxID)
	if ownerID != nil {
		client.OwnerID = *ownerID
	}

	return &client, nil
}

// nullable converts an empty string to a NULL parameter.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullableUUID converts a zero UUID to a NULL parameter.
func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// deref returns the value of a nullable string column.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ensure clientRepository implements ClientRepository at compile time.
var _ ClientRepository = (*clientRepository)(nil)
