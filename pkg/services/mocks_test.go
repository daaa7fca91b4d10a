package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/services/workqueue"
)

// passthroughTx runs the function without a real transaction.
type passthroughTx struct {
	runs int
	err  error
}

func (t *passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.runs++
	if t.err != nil {
		return t.err
	}
	return fn(ctx)
}

// passthroughScoper hands back the context unchanged.
type passthroughScoper struct {
	err error
}

func (s *passthroughScoper) WithTenantScope(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return ctx, func() {}, nil
}

// recordingEnqueuer captures enqueued tasks without running them.
type recordingEnqueuer struct {
	tasks []workqueue.Task
}

func (e *recordingEnqueuer) Enqueue(task workqueue.Task) {
	e.tasks = append(e.tasks, task)
}

type mockTagRepo struct {
	tags map[uuid.UUID]*models.TagDefinition

	listActiveErr error
	getErr        error
}

func newMockTagRepo(tags ...*models.TagDefinition) *mockTagRepo {
	m := &mockTagRepo{tags: make(map[uuid.UUID]*models.TagDefinition)}
	for _, tag := range tags {
		m.tags[tag.ID] = tag
	}
	return m
}

func (m *mockTagRepo) Create(ctx context.Context, tag *models.TagDefinition) error {
	m.tags[tag.ID] = tag
	return nil
}

func (m *mockTagRepo) GetByID(ctx context.Context, tenantID, tagID uuid.UUID) (*models.TagDefinition, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	tag, ok := m.tags[tagID]
	if !ok || tag.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	return tag, nil
}

func (m *mockTagRepo) List(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error) {
	var out []*models.TagDefinition
	for _, tag := range m.tags {
		if tag.TenantID == tenantID {
			out = append(out, tag)
		}
	}
	return out, nil
}

func (m *mockTagRepo) ListActiveWithCondition(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, error) {
	if m.listActiveErr != nil {
		return nil, m.listActiveErr
	}
	var out []*models.TagDefinition
	for _, tag := range m.tags {
		if tag.TenantID == tenantID && tag.IsActive && tag.HasCondition() {
			out = append(out, tag)
		}
	}
	return out, nil
}

func (m *mockTagRepo) Update(ctx context.Context, tag *models.TagDefinition) error {
	if _, ok := m.tags[tag.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.tags[tag.ID] = tag
	return nil
}

func (m *mockTagRepo) Delete(ctx context.Context, tenantID, tagID uuid.UUID) error {
	delete(m.tags, tagID)
	return nil
}

type mockClientRepo struct {
	clients []*models.Client

	pageCalls int
	getErr    error
}

func newMockClientRepo(clients ...*models.Client) *mockClientRepo {
	return &mockClientRepo{clients: clients}
}

func (m *mockClientRepo) Create(ctx context.Context, client *models.Client) error {
	m.clients = append(m.clients, client)
	return nil
}

func (m *mockClientRepo) GetByID(ctx context.Context, tenantID, clientID uuid.UUID) (*models.Client, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, c := range m.clients {
		if c.ID == clientID && c.TenantID == tenantID {
			return c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockClientRepo) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	var out []*models.Client
	for _, c := range m.clients {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockClientRepo) Update(ctx context.Context, client *models.Client) error {
	for i, c := range m.clients {
		if c.ID == client.ID {
			m.clients[i] = client
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockClientRepo) Delete(ctx context.Context, tenantID, clientID uuid.UUID) error {
	for i, c := range m.clients {
		if c.ID == clientID {
			m.clients = append(m.clients[:i], m.clients[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockClientRepo) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	count := 0
	for _, c := range m.clients {
		if c.TenantID == tenantID && c.IsActive() {
			count++
		}
	}
	return count, nil
}

func (m *mockClientRepo) ListActivePage(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*models.Client, error) {
	m.pageCalls++
	var active []*models.Client
	for _, c := range m.clients {
		if c.TenantID == tenantID && c.IsActive() {
			active = append(active, c)
		}
	}
	if offset >= len(active) {
		return nil, nil
	}
	end := offset + limit
	if end > len(active) {
		end = len(active)
	}
	return active[offset:end], nil
}

type mockOfferRepo struct {
	offers map[uuid.UUID]*models.Offer

	updateStatusErr error
}

func newMockOfferRepo(offers ...*models.Offer) *mockOfferRepo {
	m := &mockOfferRepo{offers: make(map[uuid.UUID]*models.Offer)}
	for _, offer := range offers {
		m.offers[offer.ID] = offer
	}
	return m
}

func (m *mockOfferRepo) Create(ctx context.Context, offer *models.Offer) error {
	m.offers[offer.ID] = offer
	return nil
}

func (m *mockOfferRepo) GetByID(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error) {
	offer, ok := m.offers[offerID]
	if !ok || offer.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	copied := *offer
	return &copied, nil
}

func (m *mockOfferRepo) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Offer, error) {
	var out []*models.Offer
	for _, offer := range m.offers {
		if offer.TenantID == tenantID && offer.ClientID == clientID {
			out = append(out, offer)
		}
	}
	return out, nil
}

func (m *mockOfferRepo) UpdateStatus(ctx context.Context, tenantID, offerID uuid.UUID, status string) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	offer, ok := m.offers[offerID]
	if !ok {
		return apperrors.ErrNotFound
	}
	offer.Status = status
	return nil
}

func (m *mockOfferRepo) Delete(ctx context.Context, tenantID, offerID uuid.UUID) error {
	delete(m.offers, offerID)
	return nil
}

type mockNotificationRepo struct {
	notifications []*models.Notification

	createErr error
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.notifications = append(m.notifications, notification)
	return nil
}

func (m *mockNotificationRepo) List(ctx context.Context, tenantID uuid.UUID, unreadOnly bool) ([]*models.Notification, error) {
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

func (m *mockNotificationRepo) MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID, readAt time.Time) error {
	for _, n := range m.notifications {
		if n.ID == notificationID && n.TenantID == tenantID {
			n.ReadAt = &readAt
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type mockMailer struct {
	sent []sentMail
	err  error
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// mockRuleEngine records calls instead of reconciling.
type mockRuleEngine struct {
	evaluated   []*models.Client
	reevaluated []uuid.UUID

	evaluateErr   error
	reevaluateErr error
}

func (m *mockRuleEngine) EvaluateAndAssign(ctx context.Context, client *models.Client) error {
	m.evaluated = append(m.evaluated, client)
	return m.evaluateErr
}

func (m *mockRuleEngine) ReevaluateTagForAllClients(ctx context.Context, tenantID, tagID uuid.UUID) error {
	m.reevaluated = append(m.reevaluated, tagID)
	return m.reevaluateErr
}

type assignmentKey struct {
	clientID uuid.UUID
	tagID    uuid.UUID
}

type mockAssignmentRepo struct {
	rows map[assignmentKey]*models.TagAssignment

	inserts     int
	autoDeletes int

	listErr   error
	getErr    error
	insertErr error
	deleteErr error
}

func newMockAssignmentRepo() *mockAssignmentRepo {
	return &mockAssignmentRepo{rows: make(map[assignmentKey]*models.TagAssignment)}
}

func (m *mockAssignmentRepo) add(clientID, tagID uuid.UUID, auto bool) {
	m.rows[assignmentKey{clientID, tagID}] = &models.TagAssignment{
		ClientID:       clientID,
		TagID:          tagID,
		IsAutoAssigned: auto,
		CreatedAt:      time.Now(),
	}
}

func (m *mockAssignmentRepo) has(clientID, tagID uuid.UUID) bool {
	_, ok := m.rows[assignmentKey{clientID, tagID}]
	return ok
}

func (m *mockAssignmentRepo) countForTag(tagID uuid.UUID) int {
	count := 0
	for key := range m.rows {
		if key.tagID == tagID {
			count++
		}
	}
	return count
}

func (m *mockAssignmentRepo) ListAutoForClient(ctx context.Context, clientID uuid.UUID) ([]*models.TagAssignment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.TagAssignment
	for key, row := range m.rows {
		if key.clientID == clientID && row.IsAutoAssigned {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) Get(ctx context.Context, clientID, tagID uuid.UUID) (*models.TagAssignment, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.rows[assignmentKey{clientID, tagID}], nil
}

func (m *mockAssignmentRepo) InsertIfAbsent(ctx context.Context, assignment *models.TagAssignment) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	key := assignmentKey{assignment.ClientID, assignment.TagID}
	if _, exists := m.rows[key]; exists {
		return false, nil
	}
	// Stored as given, like the real repository binds the struct's value.
	m.rows[key] = assignment
	m.inserts++
	return true, nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, clientID, tagID uuid.UUID) error {
	delete(m.rows, assignmentKey{clientID, tagID})
	return nil
}

func (m *mockAssignmentRepo) DeleteAuto(ctx context.Context, clientID, tagID uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	key := assignmentKey{clientID, tagID}
	if row, ok := m.rows[key]; ok && row.IsAutoAssigned {
		delete(m.rows, key)
		m.autoDeletes++
	}
	return nil
}

func (m *mockAssignmentRepo) DeleteAutoForTag(ctx context.Context, tagID uuid.UUID) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var removed int64
	for key, row := range m.rows {
		if key.tagID == tagID && row.IsAutoAssigned {
			delete(m.rows, key)
			removed++
		}
	}
	return removed, nil
}
