// Package tracker holds the bounded set of protocol-funded addresses.
package tracker

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// Tracker is an insertion-ordered address set capped at a fixed limit.
// When an insert pushes the size over the limit the oldest inserted address is evicted.
// Lookups and re-adds never refresh an address's position.
type Tracker struct {
	limit   int
	order   *list.List // front = oldest
	index   map[domain.Address]*list.Element
	onEvict func(domain.Address)
	mu      sync.RWMutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEvictHook registers a callback invoked with every evicted address.
func WithEvictHook(fn func(domain.Address)) Option {
	return func(t *Tracker) { t.onEvict = fn }
}

// New creates a tracker holding at most limit addresses.
func New(limit int, opts ...Option) (*Tracker, error) {
	if limit < 1 {
		return nil, fmt.Errorf("address limit must be >= 1, got %d", limit)
	}
	t := &Tracker{
		limit: limit,
		order: list.New(),
		index: make(map[domain.Address]*list.Element, limit),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Contains checks if an address is tracked.
func (t *Tracker) Contains(address domain.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[domain.NormalizeAddress(string(address))]
	return ok
}

// Add tracks an address as the newest member. It returns false when the
// address was already tracked, in which case nothing changes.
func (t *Tracker) Add(address domain.Address) bool {
	addr := domain.NormalizeAddress(string(address))

	t.mu.Lock()
	if _, ok := t.index[addr]; ok {
		t.mu.Unlock()
		return false
	}
	t.index[addr] = t.order.PushBack(addr)

	var evicted domain.Address
	if t.order.Len() > t.limit {
		oldest := t.order.Front()
		evicted = t.order.Remove(oldest).(domain.Address)
		delete(t.index, evicted)
	}
	t.mu.Unlock()

	if evicted != "" && t.onEvict != nil {
		t.onEvict(evicted)
	}
	return true
}

// Size returns the number of tracked addresses.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.order.Len()
}

// Limit returns the configured capacity.
func (t *Tracker) Limit() int {
	return t.limit
}

// Addresses returns the tracked addresses, oldest first.
func (t *Tracker) Addresses() []domain.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]domain.Address, 0, t.order.Len())
	for e := t.order.Front(); e != nil; e = e.Next() {
		result = append(result, e.Value.(domain.Address))
	}
	return result
}
