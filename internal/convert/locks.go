package convert

import (
	"context"
	"sync"
)

// nameLocks serializes work per package name. Packages with the same base
// name extract into the same directory.
type nameLocks struct {
	mu    sync.Mutex
	slots map[string]*nameSlot
}

type nameSlot struct {
	ch   chan struct{}
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{slots: make(map[string]*nameSlot)}
}

// lock waits for name to be free or ctx to end. The returned func releases it.
func (l *nameLocks) lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[name]
	if !ok {
		slot = &nameSlot{ch: make(chan struct{}, 1)}
		l.slots[name] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			l.release(name, slot)
		}, nil
	case <-ctx.Done():
		l.release(name, slot)
		return nil, ctx.Err()
	}
}

func (l *nameLocks) release(name string, slot *nameSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, name)
	}
}
