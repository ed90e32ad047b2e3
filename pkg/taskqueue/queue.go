package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// HandlerFunc processes one task's payload and returns the result to store
// on completion. A returned error marks the attempt failed and schedules a
// retry until the retry budget runs out.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (*TaskResult, error)

// FailureNotifier is told about tasks that exhausted their retries. The
// queue calls it outside its lock and ignores anything it does.
type FailureNotifier interface {
	TaskFailedPermanently(ctx context.Context, task Task)
}

// Queue is a durable, retryable work queue with a single-flight sequential
// processor. It exclusively owns task lifecycle; collaborators reached from
// handlers are read or written but never locked.
type Queue struct {
	mu    sync.Mutex
	tasks []*Task
	byID  map[uuid.UUID]*Task

	handlers map[TaskType]HandlerFunc
	storage  Storage
	clock    Clock
	log      *slog.Logger
	notifier FailureNotifier

	maxRetries int
	retention  time.Duration
	retryDelay time.Duration

	processing atomic.Bool
	retryTimer Timer
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the clock. Tests use ManualClock.
func WithClock(clock Clock) Option {
	return func(q *Queue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithRetentionWindow overrides how long completed tasks are kept.
func WithRetentionWindow(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// WithRetryDelay overrides the pause between drains.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retryDelay = d
		}
	}
}

// WithFailureNotifier registers a notifier for permanent failures.
func WithFailureNotifier(n FailureNotifier) Option {
	return func(q *Queue) { q.notifier = n }
}

// New creates a Queue and restores any persisted tasks. Tasks found in the
// processing state never committed their outcome before a crash; they are
// reset to pending so the next drain retries them.
func New(ctx context.Context, storage Storage, opts ...Option) (*Queue, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	q := &Queue{
		handlers:   make(map[TaskType]HandlerFunc),
		byID:       make(map[uuid.UUID]*Task),
		storage:    storage,
		clock:      NewRealClock(),
		log:        slog.Default(),
		maxRetries: DefaultMaxRetries,
		retention:  DefaultRetentionWindow,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(q)
	}

	tasks, err := storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore task list: %w", err)
	}
	for i := range tasks {
		task := tasks[i]
		if task.Status == TaskStatusProcessing {
			task.Status = TaskStatusPending
			task.StartedAt = nil
		}
		q.tasks = append(q.tasks, &task)
		q.byID[task.ID] = &task
	}

	return q, nil
}

// RegisterHandler binds a handler to a task type, replacing any previous
// binding.
func (q *Queue) RegisterHandler(taskType TaskType, handler HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
}

// Enqueue validates the payload for the task type, appends a pending task,
// persists the list, and kicks the processor. The returned ID supports
// polling via GetTaskByID. Invalid tasks are never stored.
func (q *Queue) Enqueue(ctx context.Context, taskType TaskType, payload any) (uuid.UUID, error) {
	raw, err := validatePayload(taskType, payload)
	if err != nil {
		return uuid.Nil, err
	}

	task := &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Payload:   raw,
		Status:    TaskStatusPending,
		CreatedAt: q.clock.Now(),
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.byID[task.ID] = task
	q.persistLocked(ctx)
	q.mu.Unlock()

	q.log.DebugContext(ctx, "task enqueued",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(taskType)))

	// The drain must outlive the enqueueing request.
	go q.Process(context.WithoutCancel(ctx))

	return task.ID, nil
}

// GetTaskByID returns a copy of the task, or nil when unknown (including
// tasks already swept). No side effects.
func (q *Queue) GetTaskByID(id uuid.UUID) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.byID[id]
	if !ok {
		return nil
	}
	t := *task
	return &t
}

// Process drains the queue. Single-flight: a call arriving while a drain is
// running returns immediately. Candidates are every pending task plus every
// failed task with retries left, processed strictly in enqueue order; the
// task list is persisted after every transition. After the drain the
// retention sweep runs, and if retryable work remains another drain is
// scheduled after a fixed short delay.
func (q *Queue) Process(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}

	q.mu.Lock()
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	candidates := q.candidatesLocked()
	q.mu.Unlock()

	for _, id := range candidates {
		q.processOne(ctx, id)
	}

	q.mu.Lock()
	q.sweepLocked(ctx)
	// Release the single-flight flag before arming the timer so a callback
	// firing immediately can start the next drain instead of being dropped.
	q.processing.Store(false)
	if len(q.candidatesLocked()) > 0 {
		q.retryTimer = q.clock.AfterFunc(q.retryDelay, func() {
			q.Process(ctx)
		})
	}
	q.mu.Unlock()
}

// candidatesLocked selects the drain's work in insertion order.
func (q *Queue) candidatesLocked() []uuid.UUID {
	var ids []uuid.UUID
	for _, task := range q.tasks {
		switch task.Status {
		case TaskStatusPending:
			ids = append(ids, task.ID)
		case TaskStatusFailed:
			if task.Retries < q.maxRetries {
				ids = append(ids, task.ID)
			}
		}
	}
	return ids
}

// processOne runs a single task through one attempt.
func (q *Queue) processOne(ctx context.Context, id uuid.UUID) {
	q.mu.Lock()
	task, ok := q.byID[id]
	// Defensive re-check: skip anything another path already finished.
	if !ok || task.Status.Terminal() || task.Status == TaskStatusProcessing {
		q.mu.Unlock()
		return
	}
	now := q.clock.Now()
	task.Status = TaskStatusProcessing
	task.StartedAt = &now
	q.persistLocked(ctx)
	handler := q.handlers[task.Type]
	taskType := task.Type
	payload := task.Payload
	q.mu.Unlock()

	result, err := q.runHandler(ctx, handler, taskType, payload)

	q.mu.Lock()
	var permanent *Task
	if err != nil {
		task.Retries++
		task.LastError = err.Error()
		errAt := q.clock.Now()
		task.LastErrorAt = &errAt
		if task.Retries >= q.maxRetries {
			task.Status = TaskStatusFailedPermanent
			failed := *task
			permanent = &failed
		} else {
			task.Status = TaskStatusFailed
		}
	} else {
		task.Status = TaskStatusCompleted
		doneAt := q.clock.Now()
		task.CompletedAt = &doneAt
		if result != nil {
			if raw, merr := json.Marshal(result); merr == nil {
				task.Result = raw
			}
		}
	}
	retries := task.Retries
	q.persistLocked(ctx)
	q.mu.Unlock()

	if err != nil {
		q.log.WarnContext(ctx, "task attempt failed",
			slog.String("task_id", id.String()),
			slog.String("task_type", string(taskType)),
			slog.Int("retries", retries),
			slog.String("error", err.Error()))
	}

	if permanent != nil {
		q.log.ErrorContext(ctx, "task failed permanently",
			slog.String("task_id", id.String()),
			slog.String("task_type", string(taskType)),
			slog.Int("retries", permanent.Retries))
		if q.notifier != nil {
			q.notifier.TaskFailedPermanently(ctx, *permanent)
		}
	}
}

// runHandler executes the handler with panic containment so one broken task
// cannot abort the drain.
func (q *Queue) runHandler(ctx context.Context, handler HandlerFunc, taskType TaskType, payload json.RawMessage) (result *TaskResult, err error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, taskType)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic in task handler: %v", r)
		}
	}()

	return handler(ctx, payload)
}

// sweepLocked drops completed tasks older than the retention window.
func (q *Queue) sweepLocked(ctx context.Context) {
	cutoff := q.clock.Now().Add(-q.retention)
	kept := q.tasks[:0]
	removed := 0
	for _, task := range q.tasks {
		if task.Status == TaskStatusCompleted && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(q.byID, task.ID)
			removed++
			continue
		}
		kept = append(kept, task)
	}
	q.tasks = kept
	if removed > 0 {
		q.persistLocked(ctx)
	}
}

// persistLocked serializes the full task list to storage. Persistence
// failures are logged and swallowed: the in-memory list stays authoritative
// for this process.
func (q *Queue) persistLocked(ctx context.Context) {
	snapshot := make([]Task, len(q.tasks))
	for i, task := range q.tasks {
		snapshot[i] = *task
	}
	if err := q.storage.Save(ctx, snapshot); err != nil {
		q.log.WarnContext(ctx, "failed to persist task list",
			slog.Int("tasks", len(snapshot)),
			slog.String("error", err.Error()))
	}
}

// validatePayload normalizes and validates a payload for its task type.
func validatePayload(taskType TaskType, payload any) (json.RawMessage, error) {
	if !taskType.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTaskType, taskType)
	}
	if payload == nil {
		return nil, ErrInvalidPayload
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch taskType {
	case TaskTypeVerifySubscription:
		var p VerifySubscriptionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
	case TaskTypeUpdatePremiumStatus:
		var p UpdatePremiumStatusPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	return raw, nil
}
