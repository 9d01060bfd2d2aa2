// Package locks serializes work on a shared key, such as an import of one
// source, across goroutines or across processes.
package locks

import (
	"context"
	"sync"
)

// Locker hands out non-blocking, keyed locks. TryLock reports ok=false when
// the key is already held; the caller must call unlock exactly once when ok.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// Local is a process-local Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return unlock, true, nil
}

var _ Locker = (*Local)(nil)
