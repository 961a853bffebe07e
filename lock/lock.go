// Package lock provides per-node advisory locks so two invocations never
// advance the same node at once.
package lock

import (
	"context"
	"errors"
	"sync"
)

// Custom errors for lock operations
var (
	ErrLocked  = errors.New("lock is held")
	ErrNotHeld = errors.New("lock not held")
)

// Locker hands out exclusive, non-blocking locks by key.
type Locker interface {
	// TryLock acquires key or fails with ErrLocked. The returned function
	// releases it.
	TryLock(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *Local) TryLock(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
			err = nil
		})
		return err
	}, nil
}
