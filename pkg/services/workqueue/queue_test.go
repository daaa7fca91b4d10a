package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// testTask is a simple task for testing.
type testTask struct {
	BaseTask
	executeFunc func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newTestTask(name string, bulk bool, fn func(ctx context.Context, enqueuer TaskEnqueuer) error) *testTask {
	return &testTask{
		BaseTask:    NewBaseTask(name, bulk),
		executeFunc: fn,
	}
}

func (t *testTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx, enqueuer)
	}
	return nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	q := New(zap.NewNop())

	executed := false
	task := newTestTask("test-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		executed = true
		return nil
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !executed {
		t.Error("task was not executed")
	}

	if q.CompletedCount() != 1 {
		t.Errorf("expected 1 completed, got %d", q.CompletedCount())
	}
}

func TestQueue_TaskFailure(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetryConfig()))

	expectedErr := errors.New("constraint violated")
	task := newTestTask("failing-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return expectedErr
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Wait(ctx)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}

	if !q.HasFailures() {
		t.Error("expected HasFailures to return true")
	}
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetryConfig()))

	var attempts int32
	task := newTestTask("flaky-task", true, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestQueue_NonRetryableFailsImmediately(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetryConfig()))

	var attempts int32
	task := newTestTask("broken-task", true, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("duplicate key value violates unique constraint")
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got)
	}
}

func TestQueue_BulkSerialization(t *testing.T) {
	q := New(zap.NewNop())

	var running int32
	var maxConcurrent int32
	var mu sync.Mutex

	// Three bulk walks must never overlap under the default strategy
	for i := 0; i < 3; i++ {
		task := newTestTask("bulk-walk", true, func(ctx context.Context, enqueuer TaskEnqueuer) error {
			current := atomic.AddInt32(&running, 1)
			mu.Lock()
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		q.Enqueue(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxConcurrent > 1 {
		t.Errorf("expected at most 1 concurrent bulk walk, saw %d", maxConcurrent)
	}
}

func TestQueue_ThrottledBulkStrategy(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledBulkStrategy(2)))

	var running int32
	var maxConcurrent int32
	var mu sync.Mutex

	for i := 0; i < 4; i++ {
		task := newTestTask("bulk-walk", true, func(ctx context.Context, enqueuer TaskEnqueuer) error {
			current := atomic.AddInt32(&running, 1)
			mu.Lock()
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		q.Enqueue(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxConcurrent > 2 {
		t.Errorf("expected at most 2 concurrent bulk walks, saw %d", maxConcurrent)
	}
}

func TestQueue_FollowUpTasks(t *testing.T) {
	q := New(zap.NewNop())

	var followUpRan int32
	parent := newTestTask("parent", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		enqueuer.Enqueue(newTestTask("child", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
			atomic.AddInt32(&followUpRan, 1)
			return nil
		}))
		return nil
	})

	q.Enqueue(parent)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&followUpRan) != 1 {
		t.Error("follow-up task did not run")
	}
	if q.CompletedCount() != 2 {
		t.Errorf("expected 2 completed tasks, got %d", q.CompletedCount())
	}
}

func TestQueue_Cancel(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	task := newTestTask("long-task", true, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	q.Enqueue(task)
	<-started
	q.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Wait returns nil: the cancelled task is not a failure
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error after cancel: %v", err)
	}

	if got := q.Progress().Cancelled; got != 1 {
		t.Errorf("expected 1 cancelled task in progress, got %d", got)
	}
	if q.HasFailures() {
		t.Error("a cancelled task must not count as a failure")
	}
}

func TestQueue_PrunesFinishedTasks(t *testing.T) {
	q := New(zap.NewNop())

	const n = 50
	for i := 0; i < n; i++ {
		q.Enqueue(newTestTask("noop", false, nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A process-lifetime queue must not accumulate terminal task states.
	if got := q.TaskCount(); got != 0 {
		t.Errorf("expected 0 retained task states after completion, got %d", got)
	}
	if got := len(q.GetTasks()); got != 0 {
		t.Errorf("expected empty snapshot after completion, got %d entries", got)
	}
	if !q.IsComplete() || q.PendingCount() != 0 {
		t.Error("expected queue to report complete with nothing pending")
	}
	if got := q.CompletedCount(); got != n {
		t.Errorf("expected %d completed, got %d", n, got)
	}

	p := q.Progress()
	if p.Total != n || p.Completed != n {
		t.Errorf("expected progress %d/%d completed, got %+v", n, n, p)
	}
	if p.Percentage() != 100 {
		t.Errorf("expected 100%%, got %d", p.Percentage())
	}
}

func TestQueue_WaitEmptyQueue(t *testing.T) {
	q := New(zap.NewNop())
	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("expected nil for empty queue, got %v", err)
	}
}

func TestProgress_Percentage(t *testing.T) {
	p := Progress{Total: 4, Completed: 2, Failed: 1, Pending: 1}
	if got := p.Percentage(); got != 75 {
		t.Errorf("expected 75%%, got %d", got)
	}

	empty := Progress{}
	if got := empty.Percentage(); got != 100 {
		t.Errorf("expected 100%% for empty progress, got %d", got)
	}
}
