package execution

import (
	"context"
	"sync"
)

// Locker serializes ledger submissions per key (the wallet public key).
// The coordinator holds it only around sendTransaction, so at most one
// submission per wallet is on the wire at a time; confirmation runs after
// release and several sent transactions may await confirmation together.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

// ChainLocker acquires every locker in order and releases in reverse.
// Used to hold the in-process lock before a distributed one.
type ChainLocker []Locker

// Lock implements Locker.
func (c ChainLocker) Lock(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(c))
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		releases = append(releases, unlock)
	}
	return release, nil
}

var (
	_ Locker = (*LocalLocker)(nil)
	_ Locker = ChainLocker(nil)
)
