package taskqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/premium/pkg/taskqueue"
)

func boolPtr(b bool) *bool { return &b }

func succeedHandler(result *taskqueue.TaskResult) taskqueue.HandlerFunc {
	return func(ctx context.Context, payload json.RawMessage) (*taskqueue.TaskResult, error) {
		return result, nil
	}
}

// notifierSpy records permanent-failure notifications.
type notifierSpy struct {
	mu    sync.Mutex
	tasks []taskqueue.Task
}

func (n *notifierSpy) TaskFailedPermanently(ctx context.Context, task taskqueue.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
}

func (n *notifierSpy) notified() []taskqueue.Task {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]taskqueue.Task(nil), n.tasks...)
}

func TestNew_RequiresStorage(t *testing.T) {
	t.Parallel()

	_, err := taskqueue.New(context.Background(), nil)
	assert.ErrorIs(t, err, taskqueue.ErrStorageNil)
}

func TestNew_PropagatesLoadFailure(t *testing.T) {
	t.Parallel()

	storage := taskqueue.NewMemoryStorage()
	storage.FailWith(errors.New("storage down"))

	_, err := taskqueue.New(context.Background(), storage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to restore task list")
}

func TestNew_ResetsInterruptedTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := time.Now().UTC()
	done := started.Add(-time.Minute)
	interrupted := taskqueue.Task{
		ID:        uuid.New(),
		Type:      taskqueue.TaskTypeVerifySubscription,
		Status:    taskqueue.TaskStatusProcessing,
		StartedAt: &started,
		CreatedAt: started,
	}
	finished := taskqueue.Task{
		ID:          uuid.New(),
		Type:        taskqueue.TaskTypeUpdatePremiumStatus,
		Status:      taskqueue.TaskStatusCompleted,
		CompletedAt: &done,
		CreatedAt:   started,
	}

	storage := taskqueue.NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, []taskqueue.Task{interrupted, finished}))

	q, err := taskqueue.New(ctx, storage)
	require.NoError(t, err)

	restored := q.GetTaskByID(interrupted.ID)
	require.NotNil(t, restored)
	assert.Equal(t, taskqueue.TaskStatusPending, restored.Status)
	assert.Nil(t, restored.StartedAt)

	kept := q.GetTaskByID(finished.ID)
	require.NotNil(t, kept)
	assert.Equal(t, taskqueue.TaskStatusCompleted, kept.Status)
}

func TestEnqueue_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := taskqueue.NewMemoryStorage()
	q, err := taskqueue.New(ctx, storage)
	require.NoError(t, err)
	q.RegisterHandler(taskqueue.TaskTypeUpdatePremiumStatus, succeedHandler(&taskqueue.TaskResult{
		Success:   true,
		Email:     "a@b.com",
		IsPremium: true,
	}))

	id, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
		Email:     "a@b.com",
		IsPremium: boolPtr(true),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	task := q.GetTaskByID(id)
	require.NotNil(t, task)
	assert.Equal(t, taskqueue.TaskTypeUpdatePremiumStatus, task.Type)
	assert.Zero(t, task.Retries)

	require.Eventually(t, func() bool {
		return q.GetTaskByID(id).Status == taskqueue.TaskStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	task = q.GetTaskByID(id)
	require.NotNil(t, task.CompletedAt)
	var result taskqueue.TaskResult
	require.NoError(t, json.Unmarshal(task.Result, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "a@b.com", result.Email)

	// The returned task is a copy; mutating it must not touch the queue.
	task.Status = taskqueue.TaskStatusFailed
	assert.Equal(t, taskqueue.TaskStatusCompleted, q.GetTaskByID(id).Status)

	assert.Nil(t, q.GetTaskByID(uuid.New()))
}

func TestEnqueue_RejectsInvalidTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := taskqueue.NewMemoryStorage()
	q, err := taskqueue.New(ctx, storage)
	require.NoError(t, err)

	tests := []struct {
		name     string
		taskType taskqueue.TaskType
		payload  any
		wantErr  error
	}{
		{
			name:     "unknown task type",
			taskType: taskqueue.TaskType("reticulate_splines"),
			payload:  map[string]string{},
			wantErr:  taskqueue.ErrInvalidTaskType,
		},
		{
			name:     "nil payload",
			taskType: taskqueue.TaskTypeVerifySubscription,
			payload:  nil,
			wantErr:  taskqueue.ErrInvalidPayload,
		},
		{
			name:     "verify without session",
			taskType: taskqueue.TaskTypeVerifySubscription,
			payload:  taskqueue.VerifySubscriptionPayload{Email: "a@b.com"},
			wantErr:  taskqueue.ErrSessionIDRequired,
		},
		{
			name:     "verify without email",
			taskType: taskqueue.TaskTypeVerifySubscription,
			payload:  taskqueue.VerifySubscriptionPayload{SessionID: "cs_1"},
			wantErr:  taskqueue.ErrEmailRequired,
		},
		{
			name:     "update without premium flag",
			taskType: taskqueue.TaskTypeUpdatePremiumStatus,
			payload:  taskqueue.UpdatePremiumStatusPayload{Email: "a@b.com"},
			wantErr:  taskqueue.ErrPremiumFlagRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := q.Enqueue(ctx, tt.taskType, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, uuid.Nil, id)
		})
	}

	// Rejected tasks are never stored, so nothing was persisted either.
	assert.Zero(t, storage.SaveCount())
}

func TestProcess_SequentialInEnqueueOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, err := taskqueue.New(ctx, taskqueue.NewMemoryStorage(),
		taskqueue.WithRetryDelay(5*time.Millisecond))
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		order     []string
		active    atomic.Int32
		maxActive atomic.Int32
	)
	q.RegisterHandler(taskqueue.TaskTypeUpdatePremiumStatus, func(ctx context.Context, payload json.RawMessage) (*taskqueue.TaskResult, error) {
		n := active.Add(1)
		if prev := maxActive.Load(); n > prev {
			maxActive.CompareAndSwap(prev, n)
		}
		time.Sleep(10 * time.Millisecond)

		var p taskqueue.UpdatePremiumStatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		mu.Lock()
		order = append(order, p.Email)
		mu.Unlock()

		active.Add(-1)
		return &taskqueue.TaskResult{Success: true, Email: p.Email}, nil
	})

	emails := []string{"first@example.com", "second@example.com", "third@example.com"}
	ids := make([]uuid.UUID, 0, len(emails))
	for _, email := range emails {
		id, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
			Email:     email,
			IsPremium: boolPtr(true),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if q.GetTaskByID(id).Status != taskqueue.TaskStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, emails, order, "tasks for the same queue run in enqueue order")
	assert.Equal(t, int32(1), maxActive.Load(), "at most one task runs at a time")
}

func TestProcess_RetriesUntilPermanentFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := taskqueue.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	notifier := &notifierSpy{}
	q, err := taskqueue.New(ctx, taskqueue.NewMemoryStorage(),
		taskqueue.WithClock(clock),
		taskqueue.WithFailureNotifier(notifier))
	require.NoError(t, err)

	var attempts atomic.Int32
	q.RegisterHandler(taskqueue.TaskTypeUpdatePremiumStatus, func(ctx context.Context, payload json.RawMessage) (*taskqueue.TaskResult, error) {
		attempts.Add(1)
		return nil, errors.New("docstore write refused")
	})

	id, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
		Email:     "doomed@example.com",
		IsPremium: boolPtr(false),
	})
	require.NoError(t, err)

	// First attempt runs on the enqueue-triggered drain; once it has
	// failed, a retry drain is scheduled on the clock.
	require.Eventually(t, func() bool {
		task := q.GetTaskByID(id)
		return task.Status == taskqueue.TaskStatusFailed && task.Retries == 1 &&
			clock.PendingTimers() == 1
	}, 5*time.Second, 5*time.Millisecond)

	// Each second of clock time buys exactly one more attempt.
	for want := 2; want < taskqueue.DefaultMaxRetries; want++ {
		clock.Advance(time.Second)
		task := q.GetTaskByID(id)
		assert.Equal(t, taskqueue.TaskStatusFailed, task.Status)
		assert.Equal(t, want, task.Retries)
	}

	clock.Advance(time.Second)
	task := q.GetTaskByID(id)
	assert.Equal(t, taskqueue.TaskStatusFailedPermanent, task.Status)
	assert.Equal(t, taskqueue.DefaultMaxRetries, task.Retries)
	assert.Equal(t, "docstore write refused", task.LastError)
	require.NotNil(t, task.LastErrorAt)
	assert.Equal(t, int32(taskqueue.DefaultMaxRetries), attempts.Load())

	// Exhausted tasks drop out of the candidate set for good.
	assert.Zero(t, clock.PendingTimers())
	clock.Advance(time.Minute)
	assert.Equal(t, int32(taskqueue.DefaultMaxRetries), attempts.Load())

	notified := notifier.notified()
	require.Len(t, notified, 1)
	assert.Equal(t, id, notified[0].ID)
	assert.Equal(t, taskqueue.TaskStatusFailedPermanent, notified[0].Status)
}

func TestProcess_UnregisteredHandlerFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := taskqueue.NewManualClock(time.Now().UTC())
	q, err := taskqueue.New(ctx, taskqueue.NewMemoryStorage(), taskqueue.WithClock(clock))
	require.NoError(t, err)

	id, err := q.Enqueue(ctx, taskqueue.TaskTypeVerifySubscription, taskqueue.VerifySubscriptionPayload{
		SessionID: "cs_1",
		Email:     "a@b.com",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task := q.GetTaskByID(id)
		return task.Status == taskqueue.TaskStatusFailed && task.Retries == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, q.GetTaskByID(id).LastError, taskqueue.ErrHandlerNotRegistered.Error())
}

func TestProcess_ContainsHandlerPanics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, err := taskqueue.New(ctx, taskqueue.NewMemoryStorage(),
		taskqueue.WithRetryDelay(5*time.Millisecond),
		taskqueue.WithMaxRetries(2))
	require.NoError(t, err)

	q.RegisterHandler(taskqueue.TaskTypeUpdatePremiumStatus, func(ctx context.Context, payload json.RawMessage) (*taskqueue.TaskResult, error) {
		var p taskqueue.UpdatePremiumStatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.Email == "boom@example.com" {
			panic("corrupted payload")
		}
		return &taskqueue.TaskResult{Success: true, Email: p.Email}, nil
	})

	panicID, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
		Email:     "boom@example.com",
		IsPremium: boolPtr(true),
	})
	require.NoError(t, err)
	okID, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
		Email:     "fine@example.com",
		IsPremium: boolPtr(true),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return q.GetTaskByID(okID).Status == taskqueue.TaskStatusCompleted &&
			q.GetTaskByID(panicID).Status == taskqueue.TaskStatusFailedPermanent
	}, 5*time.Second, 5*time.Millisecond)

	assert.Contains(t, q.GetTaskByID(panicID).LastError, "panic in task handler")
}

func TestProcess_SweepsCompletedTasksAfterRetention(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := taskqueue.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	q, err := taskqueue.New(ctx, taskqueue.NewMemoryStorage(), taskqueue.WithClock(clock))
	require.NoError(t, err)
	q.RegisterHandler(taskqueue.TaskTypeUpdatePremiumStatus, succeedHandler(&taskqueue.TaskResult{Success: true}))

	enqueue := func(email string) uuid.UUID {
		t.Helper()
		id, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
			Email:     email,
			IsPremium: boolPtr(true),
		})
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return q.GetTaskByID(id).Status == taskqueue.TaskStatusCompleted
		}, 5*time.Second, 5*time.Millisecond)
		return id
	}

	oldID := enqueue("old@example.com")
	clock.Advance(30 * time.Minute)
	midID := enqueue("mid@example.com")
	clock.Advance(31 * time.Minute)

	// The sweep runs at the end of a drain; this enqueue triggers one.
	newID := enqueue("new@example.com")

	assert.Nil(t, q.GetTaskByID(oldID), "completed over an hour ago, swept")
	assert.NotNil(t, q.GetTaskByID(midID), "still inside the retention window")
	assert.NotNil(t, q.GetTaskByID(newID))
}

func TestProcess_PersistsEveryTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := taskqueue.NewMemoryStorage()
	q, err := taskqueue.New(ctx, storage)
	require.NoError(t, err)
	q.RegisterHandler(taskqueue.TaskTypeUpdatePremiumStatus, succeedHandler(&taskqueue.TaskResult{Success: true}))

	id, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
		Email:     "a@b.com",
		IsPremium: boolPtr(true),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return q.GetTaskByID(id).Status == taskqueue.TaskStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	// enqueue, pending->processing, processing->completed
	assert.Equal(t, 3, storage.SaveCount())

	// What hit storage is the full task list with final state.
	loaded, err := storage.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, id, loaded[0].ID)
	assert.Equal(t, taskqueue.TaskStatusCompleted, loaded[0].Status)
}

func TestProcess_PersistenceFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := taskqueue.NewMemoryStorage()
	q, err := taskqueue.New(ctx, storage)
	require.NoError(t, err)
	q.RegisterHandler(taskqueue.TaskTypeUpdatePremiumStatus, succeedHandler(&taskqueue.TaskResult{Success: true}))

	storage.FailWith(errors.New("redis connection refused"))

	id, err := q.Enqueue(ctx, taskqueue.TaskTypeUpdatePremiumStatus, taskqueue.UpdatePremiumStatusPayload{
		Email:     "a@b.com",
		IsPremium: boolPtr(true),
	})
	require.NoError(t, err, "a broken persistence layer must not block enqueueing")

	require.Eventually(t, func() bool {
		return q.GetTaskByID(id).Status == taskqueue.TaskStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)
}
