// Package store persists chat state as scoped key/value blobs. The
// workspace scope holds per-workspace data such as session history; the
// profile scope holds data shared across workspaces such as pending
// session transfers.
package store

import (
	"context"
	"sync"
)

// Scope selects the visibility of a stored key.
type Scope string

const (
	// ScopeWorkspace keys are namespaced per workspace.
	ScopeWorkspace Scope = "workspace"
	// ScopeProfile keys are shared across every workspace.
	ScopeProfile Scope = "profile"
)

// Driver is the storage backend. Keys arrive fully namespaced.
type Driver interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store composes scoped keys for a single workspace on top of a Driver.
type Store struct {
	driver    Driver
	workspace string
}

// New creates a store bound to the given workspace identifier.
func New(driver Driver, workspace string) *Store {
	return &Store{driver: driver, workspace: workspace}
}

// Workspace returns the workspace identifier this store is bound to.
func (s *Store) Workspace() string {
	return s.workspace
}

func (s *Store) composeKey(scope Scope, key string) string {
	if scope == ScopeWorkspace {
		return "workspace/" + s.workspace + "/" + key
	}
	return "profile/" + key
}

func (s *Store) Get(ctx context.Context, scope Scope, key string) ([]byte, bool, error) {
	return s.driver.Get(ctx, s.composeKey(scope, key))
}

func (s *Store) Set(ctx context.Context, scope Scope, key string, value []byte) error {
	return s.driver.Set(ctx, s.composeKey(scope, key), value)
}

func (s *Store) Delete(ctx context.Context, scope Scope, key string) error {
	return s.driver.Delete(ctx, s.composeKey(scope, key))
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// MemoryDriver is an in-process Driver used for tests and the "memory"
// storage mode.
type MemoryDriver struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{data: make(map[string][]byte)}
}

func (d *MemoryDriver) Get(_ context.Context, key string) ([]byte, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, ok := d.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (d *MemoryDriver) Set(_ context.Context, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	d.data[key] = stored
	return nil
}

func (d *MemoryDriver) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, key)
	return nil
}

func (d *MemoryDriver) Close() error {
	return nil
}

var _ Driver = (*MemoryDriver)(nil)
