// Package lock provides user-level locking for the in-process account store.
package lock

import (
	"context"
	"sort"
	"sync"
)

// userMutex wraps a mutex with reference counting for cleanup.
type userMutex struct {
	mu       sync.Mutex
	refCount int
}

// UserLock provides per-user locking so two operations on the same account
// never interleave.
type UserLock struct {
	locks sync.Map // map[string]*userMutex
	pool  sync.Pool
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{
		pool: sync.Pool{
			New: func() any {
				return &userMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given user ID.
func (ul *UserLock) getLock(userID string) *userMutex {
	if v, ok := ul.locks.Load(userID); ok {
		return v.(*userMutex)
	}

	newLock := ul.pool.Get().(*userMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := ul.locks.LoadOrStore(userID, newLock)
	if loaded {
		ul.pool.Put(newLock)
	}
	return actual.(*userMutex)
}

// Lock acquires the lock for a user.
func (ul *UserLock) Lock(userID string) {
	lock := ul.getLock(userID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a user.
func (ul *UserLock) Unlock(userID string) {
	if v, ok := ul.locks.Load(userID); ok {
		lock := v.(*userMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// SortedUnique returns the distinct ids in ascending order. Every multi-account
// lock is taken in this order, so two operations can never deadlock.
func SortedUnique(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LockMany acquires the locks of all given users in sorted order and returns
// a function that releases them in reverse order.
func (ul *UserLock) LockMany(userIDs []string) (unlock func()) {
	ids := SortedUnique(userIDs)
	for _, id := range ids {
		ul.Lock(id)
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			ul.Unlock(ids[i])
		}
	}
}

// WithLocks executes fn while holding the locks of every given user.
// The context is checked once all locks are held.
func (ul *UserLock) WithLocks(ctx context.Context, userIDs []string, fn func() error) error {
	unlock := ul.LockMany(userIDs)
	defer unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
