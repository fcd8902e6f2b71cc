// Package objectstore implements the object-level API (§4.7): bucket and
// object CRUD, range-filtered listing, range-based reads via
// GetObjectPaths, copy, and multipart upload, for one tenant at a time.
// It composes a pkg/router.TenantHandle rather than owning any storage
// itself — the tenant's bucket/object trees and the shared block/path/
// multipart trees are both reached through the handle.
package objectstore
