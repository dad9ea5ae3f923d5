// Package locking provides in-process implementations of port.Locker.
package locking

import (
	"context"
	"sync"
)

// LocalLocker is a keyed mutex for a single bot process. Waiting respects ctx.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a new LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: make(map[string]*keyLock)}
}

// Lock implements port.Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	k, ok := l.keys[key]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, k, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, k, true) })
	}, nil
}

func (l *LocalLocker) release(key string, k *keyLock, held bool) {
	if held {
		<-k.ch
	}
	l.mu.Lock()
	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}
