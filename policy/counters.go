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
	"sync"
	"time"
)

// Window is the rolling usage window applied to daily caps.
const Window = 24 * time.Hour

// CounterStore tracks usage counts per key within a rolling window. It is
// injected into the Enforcer so the in-memory implementation can later be
// swapped for a distributed one without touching call sites.
//
// TryAcquire atomically checks the counter against the limit and, if under
// it, commits exactly one increment. Two concurrent acquisitions at the
// limit boundary must never both succeed.
type CounterStore interface {
	// TryAcquire increments the key's counter if doing so keeps it at or
	// under limit. It returns whether the acquisition succeeded.
	TryAcquire(ctx context.Context, key string, limit int) (bool, error)

	// Release undoes one increment. Used to compensate when a later check
	// in the same evaluation denies the action.
	Release(ctx context.Context, key string) error

	// Count returns the current count for a key (0 if absent or expired).
	Count(ctx context.Context, key string) (int, error)
}

// counterEntry holds one key's count and window start.
type counterEntry struct {
	count       int
	windowStart time.Time
}

// MemoryCounterStore is the default CounterStore: process-local, lock
// protected, intentionally volatile. A restart resets all counts; that is
// an accepted limitation, not a bug.
type MemoryCounterStore struct {
	entries map[string]*counterEntry
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

// NewMemoryCounterStore creates an in-memory counter store with the
// standard 24h rolling window.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]*counterEntry),
		window:  Window,
		now:     time.Now,
	}
}

// entry returns the live entry for a key, resetting it when the window
// has rolled over. Caller must hold the lock.
func (s *MemoryCounterStore) entry(key string) *counterEntry {
	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.After(e.windowStart.Add(s.window)) {
		e = &counterEntry{windowStart: now}
		s.entries[key] = e
	}
	return e
}

// TryAcquire implements CounterStore.
func (s *MemoryCounterStore) TryAcquire(_ context.Context, key string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	if e.count >= limit {
		return false, nil
	}
	e.count++
	return true, nil
}

// Release implements CounterStore.
func (s *MemoryCounterStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.count > 0 {
		e.count--
	}
	return nil
}

// Count implements CounterStore.
func (s *MemoryCounterStore) Count(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.After(e.windowStart.Add(s.window)) {
		return 0, nil
	}
	return e.count, nil
}
