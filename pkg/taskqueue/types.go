package taskqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the kind of reconciliation work a task performs.
type TaskType string

const (
	TaskTypeVerifySubscription  TaskType = "verify_subscription"
	TaskTypeUpdatePremiumStatus TaskType = "update_premium_status"
)

// Valid reports whether the task type is one the queue knows how to process.
func (t TaskType) Valid() bool {
	return t == TaskTypeVerifySubscription || t == TaskTypeUpdatePremiumStatus
}

// TaskStatus represents the state of a task in its lifecycle.
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "pending"
	TaskStatusProcessing      TaskStatus = "processing"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFailed          TaskStatus = "failed"
	TaskStatusFailedPermanent TaskStatus = "failed_permanent"
)

// Terminal reports whether the status ends the task's lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailedPermanent
}

const (
	// DefaultMaxRetries is how many failed attempts a task gets before it
	// becomes failed_permanent.
	DefaultMaxRetries = 5

	// DefaultRetentionWindow is how long completed tasks remain
	// queryable before the post-drain sweep drops them.
	DefaultRetentionWindow = time.Hour

	// DefaultRetryDelay is the fixed pause between drains while
	// retryable work remains. Deliberately constant rather than
	// exponential: the retry cap already bounds total work.
	DefaultRetryDelay = time.Second
)

// Task is one retryable unit of reconciliation work.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Type        TaskType        `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      TaskStatus      `json:"status"`
	Retries     int             `json:"retries"`
	LastError   string          `json:"lastError,omitempty"`
	LastErrorAt *time.Time      `json:"lastErrorAt,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// VerifySubscriptionPayload is the payload for verify_subscription tasks.
type VerifySubscriptionPayload struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
}

// Validate implements payload validation at enqueue time.
func (p VerifySubscriptionPayload) Validate() error {
	if p.SessionID == "" {
		return ErrSessionIDRequired
	}
	if p.Email == "" {
		return ErrEmailRequired
	}
	return nil
}

// UpdatePremiumStatusPayload is the payload for update_premium_status tasks.
// IsPremium is a pointer so that "explicitly false" survives validation.
type UpdatePremiumStatusPayload struct {
	Email              string            `json:"email"`
	IsPremium          *bool             `json:"isPremium"`
	SubscriptionStatus string            `json:"subscriptionStatus,omitempty"`
	CustomerID         string            `json:"customerId,omitempty"`
	SubscriptionID     string            `json:"subscriptionId,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Validate implements payload validation at enqueue time.
func (p UpdatePremiumStatusPayload) Validate() error {
	if p.Email == "" {
		return ErrEmailRequired
	}
	if p.IsPremium == nil {
		return ErrPremiumFlagRequired
	}
	return nil
}

// TaskResult is the normalized result stored on completed tasks.
type TaskResult struct {
	Success   bool   `json:"success"`
	Email     string `json:"email,omitempty"`
	IsPremium bool   `json:"isPremium,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
