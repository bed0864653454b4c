// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCounterStore is a distributed CounterStore for multi-replica
// deployments. Counting uses INCR with a window expiry set on the first
// increment; an over-limit increment is compensated with DECR. Redis
// errors fail open so a counter outage never blocks actions.
type RedisCounterStore struct {
	client *redis.Client
	window time.Duration
	logger *log.Logger
}

// NewRedisCounterStore creates a counter store on an existing client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{
		client: client,
		window: Window,
		logger: log.New(os.Stdout, "[POLICY_REDIS] ", log.LstdFlags),
	}
}

// NewRedisCounterStoreFromURL connects to redis and verifies the
// connection before returning the store.
func NewRedisCounterStoreFromURL(redisURL string) (*RedisCounterStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCounterStore(client), nil
}

func (s *RedisCounterStore) key(key string) string {
	return "counter:" + key
}

// TryAcquire implements CounterStore.
func (s *RedisCounterStore) TryAcquire(ctx context.Context, key string, limit int) (bool, error) {
	rkey := s.key(key)

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr failed: %w", err)
	}

	// First increment in a window owns the expiry.
	if count == 1 {
		if err := s.client.Expire(ctx, rkey, s.window).Err(); err != nil {
			s.logger.Printf("failed to set expiry on %s: %v", rkey, err)
		}
	}

	if count > int64(limit) {
		if err := s.client.Decr(ctx, rkey).Err(); err != nil {
			s.logger.Printf("failed to compensate over-limit incr on %s: %v", rkey, err)
		}
		return false, nil
	}
	return true, nil
}

// Release implements CounterStore.
func (s *RedisCounterStore) Release(ctx context.Context, key string) error {
	if err := s.client.Decr(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis decr failed: %w", err)
	}
	return nil
}

// Count implements CounterStore.
func (s *RedisCounterStore) Count(ctx context.Context, key string) (int, error) {
	val, err := s.client.Get(ctx, s.key(key)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}
