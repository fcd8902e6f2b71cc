package router

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/threefoldtech/s3-cas/pkg/metastore"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

// MetastoreFactory opens (creating if needed) a metastore.Store rooted at
// dir. Swapping this lets a Router choose AtomicBackend, CompensatedBackend,
// or any other Store implementation without the router itself knowing which.
type MetastoreFactory func(dir string) (metastore.Store, error)

// AtomicFactory builds a MetastoreFactory backed by metastore.AtomicBackend.
func AtomicFactory(inlineLimit int, durability types.Durability) MetastoreFactory {
	return func(dir string) (metastore.Store, error) {
		return metastore.NewAtomicBackend(dir, inlineLimit, durability)
	}
}

// CompensatedFactory builds a MetastoreFactory backed by
// metastore.CompensatedBackend.
func CompensatedFactory(inlineLimit int, durability types.Durability) MetastoreFactory {
	return func(dir string) (metastore.Store, error) {
		return metastore.NewCompensatedBackend(dir, inlineLimit, durability)
	}
}

// TenantHandle composes one tenant's private bucket/object metastore with
// the process-wide shared block/path/multipart metastore, giving the
// object-level API (pkg/objectstore) everything it needs for that tenant.
type TenantHandle struct {
	UserID string
	// Local holds this tenant's bucket registry and per-bucket object trees.
	Local metastore.Store
	// Shared holds the block, path, and multipart trees common to every
	// tenant. Only ever mutated through transactions.
	Shared metastore.Store
	// BlockRoot is the disk directory block files are read from and
	// written to, shared across all tenants.
	BlockRoot string
}

// Router is the singleton shared-pool / per-tenant routing layer: one
// shared block+path+multipart metastore, plus a lazily-populated,
// read/write-lock-guarded cache of per-tenant metastore handles.
//
// GetForTenant follows the standard double-checked-locking shape: a read
// lock first, and only on a cache miss does a caller take the write lock,
// re-check, and construct.
type Router struct {
	shared    metastore.Store
	blockRoot string
	metaRoot  string
	factory   MetastoreFactory

	mu      sync.RWMutex
	tenants map[string]*TenantHandle
}

// New opens (or creates) the shared metastore under metaRoot/blocks/db and
// returns a Router ready to serve tenants. Per-tenant metastores are opened
// under metaRoot/user_<id>/db using factory on first access.
func New(metaRoot string, blockRoot string, factory MetastoreFactory) (*Router, error) {
	sharedDir := filepath.Join(metaRoot, "blocks", "db")
	shared, err := factory(sharedDir)
	if err != nil {
		return nil, fmt.Errorf("router: open shared metastore: %w", err)
	}
	return &Router{
		shared:    shared,
		blockRoot: blockRoot,
		metaRoot:  metaRoot,
		factory:   factory,
		tenants:   make(map[string]*TenantHandle),
	}, nil
}

// GetForTenant returns the cached TenantHandle for userID, constructing and
// caching it on first access.
func (r *Router) GetForTenant(userID string) (*TenantHandle, error) {
	r.mu.RLock()
	handle, ok := r.tenants[userID]
	r.mu.RUnlock()
	if ok {
		return handle, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.tenants[userID]; ok {
		return handle, nil
	}

	dir := filepath.Join(r.metaRoot, "user_"+userID, "db")
	store, err := r.factory(dir)
	if err != nil {
		return nil, fmt.Errorf("router: open tenant metastore for %s: %w", userID, err)
	}
	handle = &TenantHandle{
		UserID:    userID,
		Local:     store,
		Shared:    r.shared,
		BlockRoot: r.blockRoot,
	}
	r.tenants[userID] = handle
	return handle, nil
}

// Shared returns the process-wide block/path/multipart metastore, for
// components (e.g. the user directory) that live outside any one tenant's
// namespace but still need a metastore to persist to.
func (r *Router) Shared() metastore.Store {
	return r.shared
}

// Close closes the shared metastore and every cached tenant metastore.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, handle := range r.tenants {
		if err := handle.Local.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.shared.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
