package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/models"
)

func newWalkTask(tags *mockTagRepo, clients *mockClientRepo, assignments *mockAssignmentRepo, tenantID, tagID uuid.UUID, batchSize int) *tagReevaluateTask {
	return newTagReevaluateTask(
		tenantID,
		tagID,
		&passthroughScoper{},
		tags,
		clients,
		assignments,
		NewConditionEvaluator(0),
		batchSize,
		zap.NewNop(),
	)
}

func tenantClients(tenantID uuid.UUID, n int, status string) []*models.Client {
	clients := make([]*models.Client, n)
	for i := range clients {
		clients[i] = &models.Client{
			ID:       uuid.New(),
			TenantID: tenantID,
			Name:     fmt.Sprintf("client-%03d", i),
			Status:   status,
		}
	}
	return clients
}

func TestWalk_AssignsAllMatchingClientsAcrossPages(t *testing.T) {
	tenantID := uuid.New()
	tag := activeTag(tenantID, leaf("status", models.CompareEquals, "customer"))

	clients := newMockClientRepo(tenantClients(tenantID, 250, models.ClientStatusCustomer)...)
	assignments := newMockAssignmentRepo()

	task := newWalkTask(newMockTagRepo(tag), clients, assignments, tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := assignments.countForTag(tag.ID); got != 250 {
		t.Errorf("expected 250 assignments, got %d", got)
	}
	// 250 active clients at 100 per page: 100, 100, 50
	if clients.pageCalls != 3 {
		t.Errorf("expected 3 pages, got %d", clients.pageCalls)
	}
}

func TestWalk_NoActiveClientsSkipsPaging(t *testing.T) {
	tenantID := uuid.New()
	tag := activeTag(tenantID, leaf("status", models.CompareEquals, "customer"))

	// Only archived clients, so the up-front count is zero
	clients := newMockClientRepo(tenantClients(tenantID, 4, models.ClientStatusArchived)...)

	task := newWalkTask(newMockTagRepo(tag), clients, newMockAssignmentRepo(), tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if clients.pageCalls != 0 {
		t.Errorf("expected walk to stop before paging, got %d page calls", clients.pageCalls)
	}
}

func TestWalk_RemovesAssignmentsThatNoLongerMatch(t *testing.T) {
	tenantID := uuid.New()
	tag := activeTag(tenantID, leaf("status", models.CompareEquals, "customer"))

	clientList := tenantClients(tenantID, 5, models.ClientStatusLead)
	assignments := newMockAssignmentRepo()
	for _, c := range clientList {
		assignments.add(c.ID, tag.ID, true)
	}

	task := newWalkTask(newMockTagRepo(tag), newMockClientRepo(clientList...), assignments, tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := assignments.countForTag(tag.ID); got != 0 {
		t.Errorf("expected all auto assignments removed, got %d", got)
	}
}

func TestWalk_ManualRowsSurviveNonMatch(t *testing.T) {
	tenantID := uuid.New()
	tag := activeTag(tenantID, leaf("status", models.CompareEquals, "customer"))

	clientList := tenantClients(tenantID, 2, models.ClientStatusLead)
	assignments := newMockAssignmentRepo()
	assignments.add(clientList[0].ID, tag.ID, false)
	assignments.add(clientList[1].ID, tag.ID, true)

	task := newWalkTask(newMockTagRepo(tag), newMockClientRepo(clientList...), assignments, tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !assignments.has(clientList[0].ID, tag.ID) {
		t.Error("manual assignment must survive the walk")
	}
	if assignments.has(clientList[1].ID, tag.ID) {
		t.Error("auto assignment for a non-matching client must be removed")
	}
}

func TestWalk_ManualRowBlocksDuplicateAutoInsert(t *testing.T) {
	tenantID := uuid.New()
	tag := activeTag(tenantID, leaf("status", models.CompareEquals, "customer"))

	clientList := tenantClients(tenantID, 1, models.ClientStatusCustomer)
	assignments := newMockAssignmentRepo()
	assignments.add(clientList[0].ID, tag.ID, false)

	task := newWalkTask(newMockTagRepo(tag), newMockClientRepo(clientList...), assignments, tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row, _ := assignments.Get(context.Background(), clientList[0].ID, tag.ID)
	if row == nil || row.IsAutoAssigned {
		t.Error("existing manual row must be preserved as-is")
	}
	if assignments.inserts != 0 {
		t.Errorf("expected no insert over manual row, got %d", assignments.inserts)
	}
}

func TestWalk_Idempotent(t *testing.T) {
	tenantID := uuid.New()
	tag := activeTag(tenantID, leaf("status", models.CompareEquals, "customer"))

	clients := newMockClientRepo(tenantClients(tenantID, 10, models.ClientStatusCustomer)...)
	assignments := newMockAssignmentRepo()

	task := newWalkTask(newMockTagRepo(tag), clients, assignments, tenantID, tag.ID, 100)
	for i := 0; i < 2; i++ {
		if err := task.Execute(context.Background(), nil); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i+1, err)
		}
	}

	if assignments.inserts != 10 {
		t.Errorf("expected 10 inserts total across both runs, got %d", assignments.inserts)
	}
}

func TestWalk_SkipsArchivedClients(t *testing.T) {
	tenantID := uuid.New()
	// Condition matches every client regardless of status
	tag := activeTag(tenantID, group(models.GroupAnd))

	active := tenantClients(tenantID, 3, models.ClientStatusCustomer)
	archived := tenantClients(tenantID, 2, models.ClientStatusArchived)
	all := append(append([]*models.Client{}, active...), archived...)

	assignments := newMockAssignmentRepo()
	task := newWalkTask(newMockTagRepo(tag), newMockClientRepo(all...), assignments, tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := assignments.countForTag(tag.ID); got != 3 {
		t.Errorf("expected only active clients tagged, got %d assignments", got)
	}
}

func TestWalk_TagDeletedBeforeExecution(t *testing.T) {
	tenantID := uuid.New()
	task := newWalkTask(newMockTagRepo(), newMockClientRepo(), newMockAssignmentRepo(), tenantID, uuid.New(), 100)

	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("expected nil for vanished tag, got %v", err)
	}
}

func TestWalk_ConditionClearedBetweenEnqueueAndRun(t *testing.T) {
	tenantID := uuid.New()
	tag := activeTag(tenantID, nil)

	assignments := newMockAssignmentRepo()
	assignments.add(uuid.New(), tag.ID, true)
	assignments.add(uuid.New(), tag.ID, true)

	task := newWalkTask(newMockTagRepo(tag), newMockClientRepo(), assignments, tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := assignments.countForTag(tag.ID); got != 0 {
		t.Errorf("expected auto rows removed, got %d", got)
	}
}

func TestWalk_PerClientErrorsAreSkipped(t *testing.T) {
	tenantID := uuid.New()
	// in-operator with a non-list value fails evaluation for every client
	tag := activeTag(tenantID, leaf("status", models.CompareIn, "customer"))

	clients := newMockClientRepo(tenantClients(tenantID, 5, models.ClientStatusCustomer)...)
	assignments := newMockAssignmentRepo()

	task := newWalkTask(newMockTagRepo(tag), clients, assignments, tenantID, tag.ID, 100)
	if err := task.Execute(context.Background(), nil); err != nil {
		t.Fatalf("walk must not fail on per-client evaluation errors, got %v", err)
	}

	if got := assignments.countForTag(tag.ID); got != 0 {
		t.Errorf("expected no assignments from failing evaluations, got %d", got)
	}
}
