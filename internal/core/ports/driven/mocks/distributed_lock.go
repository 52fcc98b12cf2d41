package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// lockTable is the lock state shared by every peer of a MockDistributedLock,
// standing in for the Redis keys or advisory locks several instances contend on.
type lockTable struct {
	mu      sync.Mutex
	holders map[string]lockHolder
}

type lockHolder struct {
	owner  string
	expiry time.Time
}

func (t *lockTable) holder(name string, now time.Time) (lockHolder, bool) {
	h, ok := t.holders[name]
	if !ok || !now.Before(h.expiry) {
		return lockHolder{}, false
	}
	return h, true
}

// MockDistributedLock is one instance's view of an in-memory lock table.
// Peers created with Peer contend for the same names under other owner ids.
type MockDistributedLock struct {
	table *lockTable
	owner string

	mu       sync.Mutex
	acquired []string
	released []string

	// AcquireFn replaces the default Acquire when set.
	AcquireFn func(name string, ttl time.Duration) (bool, error)
	// PingFn replaces the default Ping when set.
	PingFn func() error
}

// NewMockDistributedLock creates a lock backed by a fresh table.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		table: &lockTable{holders: make(map[string]lockHolder)},
		owner: "instance-0",
	}
}

// Peer returns a lock for another instance sharing this lock table.
func (m *MockDistributedLock) Peer(owner string) *MockDistributedLock {
	return &MockDistributedLock{table: m.table, owner: owner}
}

// Acquire takes the lock unless any owner holds an unexpired entry. Like
// SET NX, a second Acquire by the same owner fails too.
func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	now := time.Now()
	if _, held := m.table.holder(name, now); held {
		return false, nil
	}
	m.table.holders[name] = lockHolder{owner: m.owner, expiry: now.Add(ttl)}

	m.mu.Lock()
	m.acquired = append(m.acquired, name)
	m.mu.Unlock()
	return true, nil
}

// Release drops the lock only when this instance holds it.
func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	if h, held := m.table.holder(name, time.Now()); held && h.owner == m.owner {
		delete(m.table.holders, name)
	}

	m.mu.Lock()
	m.released = append(m.released, name)
	m.mu.Unlock()
	return nil
}

// Extend pushes out the expiry of a lock this instance holds.
func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	h, held := m.table.holder(name, time.Now())
	if !held || h.owner != m.owner {
		return fmt.Errorf("%w: %s", domain.ErrLockNotAcquired, name)
	}
	h.expiry = time.Now().Add(ttl)
	m.table.holders[name] = h
	return nil
}

// Ping reports the backend as healthy unless PingFn says otherwise.
func (m *MockDistributedLock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// Acquired returns the names this instance acquired through the default path.
func (m *MockDistributedLock) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquired...)
}

// Released returns the names this instance released.
func (m *MockDistributedLock) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// IsHeld reports whether any owner holds name.
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()
	_, held := m.table.holder(name, time.Now())
	return held
}

// SetLockHeld makes another instance hold name for ttl.
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()
	m.table.holders[name] = lockHolder{owner: "external-owner", expiry: time.Now().Add(ttl)}
}
