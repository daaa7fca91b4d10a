package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/repositories"
)

// OfferService manages commercial offers and their status lifecycle.
// Accepting an offer promotes the client to customer, which feeds back
// into automatic tagging.
type OfferService interface {
	Create(ctx context.Context, offer *models.Offer) (*models.Offer, error)
	Get(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error)
	ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Offer, error)
	Send(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error)
	Accept(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error)
	Reject(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error)
	Delete(ctx context.Context, tenantID, offerID uuid.UUID) error
}

type offerService struct {
	offers        repositories.OfferRepository
	clients       repositories.ClientRepository
	engine        RuleEngine
	notifications NotificationService
	logger        *zap.Logger
}

// NewOfferService creates the service.
func NewOfferService(
	offers repositories.OfferRepository,
	clients repositories.ClientRepository,
	engine RuleEngine,
	notifications NotificationService,
	logger *zap.Logger,
) OfferService {
	return &offerService{
		offers:        offers,
		clients:       clients,
		engine:        engine,
		notifications: notifications,
		logger:        logger.Named("offers"),
	}
}

var _ OfferService = (*offerService)(nil)

func (s *offerService) Create(ctx context.Context, offer *models.Offer) (*models.Offer, error) {
	if offer.Title == "" {
		return nil, fmt.Errorf("offer title is required")
	}
	if offer.TotalAmount.LessThan(decimal.Zero) {
		return nil, fmt.Errorf("offer amount must not be negative")
	}
	if offer.Currency == "" {
		offer.Currency = "EUR"
	}
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	offer.Status = models.OfferStatusDraft
	now := time.Now()
	offer.CreatedAt = now
	offer.UpdatedAt = now

	// Reject offers for clients outside the tenant up front
	if _, err := s.clients.GetByID(ctx, offer.TenantID, offer.ClientID); err != nil {
		return nil, fmt.Errorf("failed to load client for offer: %w", err)
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	return offer, nil
}

func (s *offerService) Get(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, tenantID, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return offer, nil
}

func (s *offerService) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Offer, error) {
	offers, err := s.offers.ListByClient(ctx, tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}

func (s *offerService) Send(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	return s.transition(ctx, tenantID, offerID, models.OfferStatusSent)
}

// Accept moves the offer to accepted and promotes its client to customer.
// The promotion is a regular client write, so automatic tagging runs on
// the new status; a tagging failure is logged rather than undoing the
// acceptance.
func (s *offerService) Accept(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	offer, err := s.transition(ctx, tenantID, offerID, models.OfferStatusAccepted)
	if err != nil {
		return nil, err
	}

	s.promoteClient(ctx, offer)
	s.notify(ctx, offer, models.NotificationOfferAccepted, "Offer accepted")
	return offer, nil
}

func (s *offerService) Reject(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	offer, err := s.transition(ctx, tenantID, offerID, models.OfferStatusRejected)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, offer, models.NotificationOfferRejected, "Offer rejected")
	return offer, nil
}

func (s *offerService) Delete(ctx context.Context, tenantID, offerID uuid.UUID) error {
	offer, err := s.offers.GetByID(ctx, tenantID, offerID)
	if err != nil {
		return fmt.Errorf("failed to get offer: %w", err)
	}
	if offer.Status != models.OfferStatusDraft {
		return fmt.Errorf("%w: only draft offers can be deleted", apperrors.ErrInvalidTransition)
	}

	if err := s.offers.Delete(ctx, tenantID, offerID); err != nil {
		return fmt.Errorf("failed to delete offer: %w", err)
	}
	return nil
}

func (s *offerService) transition(ctx context.Context, tenantID, offerID uuid.UUID, to string) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, tenantID, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	if !models.CanTransitionOffer(offer.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, offer.Status, to)
	}

	if err := s.offers.UpdateStatus(ctx, tenantID, offerID, to); err != nil {
		return nil, fmt.Errorf("failed to update offer status: %w", err)
	}
	offer.Status = to
	return offer, nil
}

func (s *offerService) promoteClient(ctx context.Context, offer *models.Offer) {
	client, err := s.clients.GetByID(ctx, offer.TenantID, offer.ClientID)
	if err != nil {
		s.logger.Warn("failed to load client for promotion",
			zap.String("tenant_id", offer.TenantID.String()),
			zap.String("client_id", offer.ClientID.String()),
			zap.Error(err))
		return
	}
	if client.Status == models.ClientStatusCustomer {
		return
	}

	client.Status = models.ClientStatusCustomer
	client.UpdatedAt = time.Now()
	if err := s.clients.Update(ctx, client); err != nil {
		s.logger.Warn("failed to promote client to customer",
			zap.String("tenant_id", offer.TenantID.String()),
			zap.String("client_id", client.ID.String()),
			zap.Error(err))
		return
	}

	if err := s.engine.EvaluateAndAssign(ctx, client); err != nil {
		s.logger.Warn("tag reconciliation failed after promotion",
			zap.String("tenant_id", offer.TenantID.String()),
			zap.String("client_id", client.ID.String()),
			zap.Error(err))
	}
}

func (s *offerService) notify(ctx context.Context, offer *models.Offer, kind, subject string) {
	notification := &models.Notification{
		TenantID: offer.TenantID,
		Kind:     kind,
		Subject:  subject,
		Body: fmt.Sprintf("%s: %s %s", offer.Title,
			offer.TotalAmount.StringFixed(2), offer.Currency),
	}
	if err := s.notifications.Notify(ctx, notification, ""); err != nil {
		s.logger.Warn("failed to record offer notification",
			zap.String("tenant_id", offer.TenantID.String()),
			zap.String("offer_id", offer.ID.String()),
			zap.Error(err))
	}
}
