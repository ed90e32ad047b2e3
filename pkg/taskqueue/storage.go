package taskqueue

import "context"

// Storage persists the full task list as one blob under a well-known key.
// Whole-blob semantics keep the durable copy trivially consistent with the
// in-memory list: every save replaces the previous snapshot.
type Storage interface {
	// Load returns the last persisted task list, or an empty slice when
	// nothing has been saved yet.
	Load(ctx context.Context) ([]Task, error)

	// Save replaces the persisted task list.
	Save(ctx context.Context, tasks []Task) error
}
