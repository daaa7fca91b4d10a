package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/auth"
	"github.com/atrium-crm/atrium-engine/pkg/models"
)

// newAuthedRequest builds a request carrying tenant claims, as the auth
// middleware would after validating a token.
func newAuthedRequest(method, target string, tenantID uuid.UUID, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	ctx := auth.SetClaims(r.Context(), &auth.Claims{TenantID: tenantID.String()})
	return r.WithContext(ctx)
}

type mockClientService struct {
	clients map[uuid.UUID]*models.Client

	createErr error
	listErr   error
}

func newMockClientService(clients ...*models.Client) *mockClientService {
	m := &mockClientService{clients: make(map[uuid.UUID]*models.Client)}
	for _, c := range clients {
		m.clients[c.ID] = c
	}
	return m
}

func (m *mockClientService) Create(ctx context.Context, client *models.Client) (*models.Client, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	m.clients[client.ID] = client
	return client, nil
}

func (m *mockClientService) Get(ctx context.Context, tenantID, clientID uuid.UUID) (*models.Client, error) {
	client, ok := m.clients[clientID]
	if !ok || client.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	return client, nil
}

func (m *mockClientService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Client
	for _, c := range m.clients {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockClientService) Update(ctx context.Context, client *models.Client) (*models.Client, error) {
	if _, ok := m.clients[client.ID]; !ok {
		return nil, apperrors.ErrNotFound
	}
	m.clients[client.ID] = client
	return client, nil
}

func (m *mockClientService) Delete(ctx context.Context, tenantID, clientID uuid.UUID) error {
	if _, ok := m.clients[clientID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.clients, clientID)
	return nil
}

type manualAssignment struct {
	clientID uuid.UUID
	tagID    uuid.UUID
}

type mockTagService struct {
	tags      map[uuid.UUID]*models.TagDefinition
	assigned  []manualAssignment
	createErr error
}

func newMockTagService(tags ...*models.TagDefinition) *mockTagService {
	m := &mockTagService{tags: make(map[uuid.UUID]*models.TagDefinition)}
	for _, tag := range tags {
		m.tags[tag.ID] = tag
	}
	return m
}

func (m *mockTagService) Create(ctx context.Context, tag *models.TagDefinition) (*models.TagDefinition, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	m.tags[tag.ID] = tag
	return tag, nil
}

func (m *mockTagService) Get(ctx context.Context, tenantID, tagID uuid.UUID) (*models.TagDefinition, error) {
	tag, ok := m.tags[tagID]
	if !ok || tag.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	return tag, nil
}

func (m *mockTagService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error) {
	var out []*models.TagDefinition
	for _, tag := range m.tags {
		if tag.TenantID == tenantID {
			out = append(out, tag)
		}
	}
	return out, nil
}

func (m *mockTagService) Update(ctx context.Context, tag *models.TagDefinition) (*models.TagDefinition, error) {
	if _, ok := m.tags[tag.ID]; !ok {
		return nil, apperrors.ErrNotFound
	}
	m.tags[tag.ID] = tag
	return tag, nil
}

func (m *mockTagService) Delete(ctx context.Context, tenantID, tagID uuid.UUID) error {
	if _, ok := m.tags[tagID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.tags, tagID)
	return nil
}

func (m *mockTagService) Assign(ctx context.Context, tenantID, clientID, tagID uuid.UUID) error {
	if _, ok := m.tags[tagID]; !ok {
		return apperrors.ErrNotFound
	}
	m.assigned = append(m.assigned, manualAssignment{clientID: clientID, tagID: tagID})
	return nil
}

func (m *mockTagService) Unassign(ctx context.Context, tenantID, clientID, tagID uuid.UUID) error {
	for i, a := range m.assigned {
		if a.clientID == clientID && a.tagID == tagID {
			m.assigned = append(m.assigned[:i], m.assigned[i+1:]...)
			return nil
		}
	}
	return nil
}

type mockOfferService struct {
	offers map[uuid.UUID]*models.Offer
}

func newMockOfferService(offers ...*models.Offer) *mockOfferService {
	m := &mockOfferService{offers: make(map[uuid.UUID]*models.Offer)}
	for _, offer := range offers {
		m.offers[offer.ID] = offer
	}
	return m
}

func (m *mockOfferService) Create(ctx context.Context, offer *models.Offer) (*models.Offer, error) {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	offer.Status = models.OfferStatusDraft
	m.offers[offer.ID] = offer
	return offer, nil
}

func (m *mockOfferService) Get(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	offer, ok := m.offers[offerID]
	if !ok || offer.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	return offer, nil
}

func (m *mockOfferService) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Offer, error) {
	var out []*models.Offer
	for _, offer := range m.offers {
		if offer.TenantID == tenantID && offer.ClientID == clientID {
			out = append(out, offer)
		}
	}
	return out, nil
}

func (m *mockOfferService) transition(tenantID, offerID uuid.UUID, to string) (*models.Offer, error) {
	offer, ok := m.offers[offerID]
	if !ok || offer.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	if !models.CanTransitionOffer(offer.Status, to) {
		return nil, apperrors.ErrInvalidTransition
	}
	offer.Status = to
	return offer, nil
}

func (m *mockOfferService) Send(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	return m.transition(tenantID, offerID, models.OfferStatusSent)
}

func (m *mockOfferService) Accept(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	return m.transition(tenantID, offerID, models.OfferStatusAccepted)
}

func (m *mockOfferService) Reject(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	return m.transition(tenantID, offerID, models.OfferStatusRejected)
}

func (m *mockOfferService) Delete(ctx context.Context, tenantID, offerID uuid.UUID) error {
	offer, ok := m.offers[offerID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if offer.Status != models.OfferStatusDraft {
		return apperrors.ErrInvalidTransition
	}
	delete(m.offers, offerID)
	return nil
}

type mockNotificationService struct {
	notifications []*models.Notification
	read          []uuid.UUID
}

func (m *mockNotificationService) Notify(ctx context.Context, n *models.Notification, emailTo string) error {
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockNotificationService) List(ctx context.Context, tenantID uuid.UUID, unreadOnly bool) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.TenantID != tenantID {
			continue
		}
		if unreadOnly && n.IsRead() {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID) error {
	for _, n := range m.notifications {
		if n.ID == notificationID && n.TenantID == tenantID {
			m.read = append(m.read, notificationID)
			return nil
		}
	}
	return apperrors.ErrNotFound
}
