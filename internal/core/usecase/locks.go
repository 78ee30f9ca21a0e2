package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// walletLocks serializes operations on the same wallet inside one process.
// Entries are reference counted and dropped once nobody holds or waits on them.
type walletLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*walletLock
}

type walletLock struct {
	sem  chan struct{}
	refs int
}

func newWalletLocks() *walletLocks {
	return &walletLocks{locks: make(map[uuid.UUID]*walletLock)}
}

// Lock blocks until the wallet lock is held or ctx is done.
func (l *walletLocks) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &walletLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			l.release(id, lock)
		}, nil
	case <-ctx.Done():
		l.release(id, lock)
		return nil, ctx.Err()
	}
}

func (l *walletLocks) release(id uuid.UUID, lock *walletLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *walletLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
