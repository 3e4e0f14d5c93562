package ledger

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// lockTable hands out one exclusive lock per account id. Entries are reference
// counted and removed once nobody holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*accountLock
}

type accountLock struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]*accountLock)}
}

// acquire locks every id in ascending byte order, so two callers locking the
// same pair can never wait on each other. On ctx expiry it releases whatever
// it already holds and returns ctx.Err().
func (t *lockTable) acquire(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	ordered := orderIDs(ids)
	held := make([]uuid.UUID, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			t.unlock(held[i])
		}
	}

	for _, id := range ordered {
		l := t.ref(id)
		select {
		case l.ch <- struct{}{}:
			held = append(held, id)
		case <-ctx.Done():
			t.unref(id)
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (t *lockTable) ref(id uuid.UUID) *accountLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &accountLock{ch: make(chan struct{}, 1)}
		t.locks[id] = l
	}
	l.refs++
	return l
}

func (t *lockTable) unref(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
}

func (t *lockTable) unlock(id uuid.UUID) {
	t.mu.Lock()
	l := t.locks[id]
	t.mu.Unlock()
	<-l.ch
	t.unref(id)
}

// size reports how many account locks are currently tracked.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

func orderIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
