// Package router implements the shared-pool / per-tenant routing layer: a
// singleton block+path+multipart metastore shared by every tenant, and a
// lazily-populated, lock-guarded cache of per-tenant bucket/object
// metastores. See Router.GetForTenant.
package router
