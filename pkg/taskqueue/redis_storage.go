package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStorageKey is the well-known key the task list is stored under.
const DefaultStorageKey = "premium:reconciliation:tasks"

// RedisStorage implements Storage on a Redis string key.
type RedisStorage struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStorage creates Redis-backed task storage. An empty key selects
// DefaultStorageKey.
func NewRedisStorage(client redis.UniversalClient, key string) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultStorageKey
	}
	return &RedisStorage{client: client, key: key}, nil
}

// Load implements Storage.
func (s *RedisStorage) Load(ctx context.Context) ([]Task, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Task{}, nil
		}
		return nil, fmt.Errorf("failed to load task list: %w", err)
	}

	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode task list: %w", err)
	}
	return tasks, nil
}

// Save implements Storage.
func (s *RedisStorage) Save(ctx context.Context, tasks []Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode task list: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save task list: %w", err)
	}
	return nil
}
