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

// ClientService manages client records. Every write that can change a
// condition's outcome runs the rule engine afterwards so assignments
// never lag behind client data.
type ClientService interface {
	Create(ctx context.Context, client *models.Client) (*models.Client, error)
	Get(ctx context.Context, tenantID, clientID uuid.UUID) (*models.Client, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error)
	Update(ctx context.Context, client *models.Client) (*models.Client, error)
	Delete(ctx context.Context, tenantID, clientID uuid.UUID) error
}

type clientService struct {
	clients repositories.ClientRepository
	engine  RuleEngine
	logger  *zap.Logger
}

// NewClientService creates the service.
func NewClientService(clients repositories.ClientRepository, engine RuleEngine, logger *zap.Logger) ClientService {
	return &clientService{
		clients: clients,
		engine:  engine,
		logger:  logger.Named("clients"),
	}
}

var _ ClientService = (*clientService)(nil)

func (s *clientService) Create(ctx context.Context, client *models.Client) (*models.Client, error) {
	if client.Name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	if client.Status == "" {
		client.Status = models.ClientStatusLead
	}
	if !models.IsValidClientStatus(client.Status) {
		return nil, fmt.Errorf("invalid client status %q", client.Status)
	}
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	if err := s.clients.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.reconcile(ctx, client)
	return client, nil
}

func (s *clientService) Get(ctx context.Context, tenantID, clientID uuid.UUID) (*models.Client, error) {
	client, err := s.clients.GetByID(ctx, tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

func (s *clientService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	clients, err := s.clients.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

func (s *clientService) Update(ctx context.Context, client *models.Client) (*models.Client, error) {
	if client.Name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	if !models.IsValidClientStatus(client.Status) {
		return nil, fmt.Errorf("invalid client status %q", client.Status)
	}
	client.UpdatedAt = time.Now()

	if err := s.clients.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	s.reconcile(ctx, client)
	return client, nil
}

func (s *clientService) Delete(ctx context.Context, tenantID, clientID uuid.UUID) error {
	// Assignments go with the client via the schema's cascade
	if err := s.clients.Delete(ctx, tenantID, clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

// reconcile re-runs auto tagging for the client. A reconciliation failure
// does not fail the client write that triggered it: the data change is
// already committed and the next write or bulk walk repairs the tags.
func (s *clientService) reconcile(ctx context.Context, client *models.Client) {
	if err := s.engine.EvaluateAndAssign(ctx, client); err != nil {
		s.logger.Warn("tag reconciliation failed after client write",
			zap.String("tenant_id", client.TenantID.String()),
			zap.String("client_id", client.ID.String()),
			zap.Error(err))
	}
}
