// Package cache holds the in-process analytics view and its Redis-backed
// companions (report cache and refresh bus).
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshots serves an immutable value to concurrent readers while a single
// writer rebuilds it. Readers see the previous value until Refresh swaps in
// the next one.
type Snapshots[T any] struct {
	mu      sync.Mutex
	cur     atomic.Pointer[T]
	at      atomic.Int64
	version atomic.Uint64
}

func NewSnapshots[T any]() *Snapshots[T] { return &Snapshots[T]{} }

// Load returns the current value, or nil before the first refresh.
func (s *Snapshots[T]) Load() *T { return s.cur.Load() }

func (s *Snapshots[T]) Loaded() bool { return s.cur.Load() != nil }

// UpdatedAt is the zero time before the first refresh.
func (s *Snapshots[T]) UpdatedAt() time.Time {
	ns := s.at.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func (s *Snapshots[T]) Version() uint64 { return s.version.Load() }

// Refresh runs build under the writer lock and publishes its result. On error
// the current value stays in place.
func (s *Snapshots[T]) Refresh(ctx context.Context, build func(ctx context.Context, prev *T) (*T, error)) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := build(ctx, s.cur.Load())
	if err != nil {
		return s.cur.Load(), err
	}
	s.Store(next)
	return next, nil
}

// Store publishes v without running a build. Callers outside Refresh must not
// race with a writer; it exists for peers that received a ready value.
func (s *Snapshots[T]) Store(v *T) {
	if v == nil {
		return
	}
	s.cur.Store(v)
	s.at.Store(time.Now().UnixNano())
	s.version.Add(1)
}
