package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	projectKeyPrefix = "sketch:project:" // sketch:project:{name} -> JSON state
	projectSetKey    = "sketch:projects" // set of project names
	maxUpdateRetries = 8
)

// RedisStore keeps each project as one JSON value plus a name index set.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) EnsureLoaded(ctx context.Context) error {
	if s == nil || s.client == nil {
		return ErrStoreNil
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, name string) (State, bool, error) {
	data, err := s.client.Get(ctx, projectKey(name)).Bytes()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to get project: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return state, true, nil
}

func (s *RedisStore) Put(ctx context.Context, state State) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, projectKey(state.ProjectName), data, 0)
	pipe.SAdd(ctx, projectSetKey, state.ProjectName)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put project: %w", err)
	}
	return nil
}

// Update retries when another writer changes the project between read and write.
func (s *RedisStore) Update(ctx context.Context, name string, update func(*State) error) (State, bool, error) {
	key := projectKey(name)
	var (
		out   State
		found bool
	)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("failed to unmarshal project: %w", err)
		}
		if err := update(&state); err != nil {
			return err
		}
		state.UpdatedAt = time.Now().UTC()
		raw, err := json.Marshal(state)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err == nil {
			out = state
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return State{}, found, err
		}
		return out, found, nil
	}
	return State{}, true, fmt.Errorf("failed to update project %q: too much contention", name)
}

func (s *RedisStore) Delete(ctx context.Context, name string) (bool, error) {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, projectKey(name))
	pipe.SRem(ctx, projectSetKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	return del.Val() > 0, nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, projectSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func projectKey(name string) string {
	return projectKeyPrefix + name
}
