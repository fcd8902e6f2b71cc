/*
Package metastore implements the typed key-value abstraction over bbolt
that the storage engine uses for all metadata: block refcounts, path
allocation, bucket/object indices, multipart parts, and auxiliary named
trees (the user directory lives in one).

# Architecture

	┌────────────────── METASTORE ──────────────────────┐
	│                                                     │
	│  ┌───────────────────────────────────────┐        │
	│  │              Store                      │        │
	│  │  AtomicBackend    | CompensatedBackend  │        │
	│  │  (real bbolt tx)  | (per-call commits + │        │
	│  │                   |  compensation log)  │        │
	│  └──────────────────┬──────────────────────┘        │
	│                     │                                 │
	│  ┌──────────────────▼──────────────────────┐        │
	│  │              bbolt buckets                │        │
	│  │  _ALL_BUCKETS     bucket name → BucketMeta│        │
	│  │  _BLOCKS          BlockID → Block          │        │
	│  │  _PATHS           path bytes → BlockID     │        │
	│  │  _MULTIPART_PARTS (uploadID,part) → part   │        │
	│  │  _OBJECTS/<name>  object key → Object      │        │
	│  │  <named>          auxiliary (e.g. users)   │        │
	│  └────────────────────────────────────────────┘       │
	└─────────────────────────────────────────────────────┘

# Backends

AtomicBackend wraps one real bbolt write transaction per WriteBlock /
DeleteObject call, spanning the block and path buckets — true multi-bucket
atomicity.

CompensatedBackend has no native cross-bucket atomicity: each mutation
commits immediately in its own bbolt transaction, and the returned Tx
tracks what it did so Rollback can best-effort undo it. Commit is a no-op
— the effect was already durable the moment WriteBlock returned.

Both variants satisfy the same Store/Tx interfaces; callers pick one at
construction and otherwise can't tell them apart except under failure
injection, where the atomic variant rolls back cleanly and the compensated
one does its best.

# Transactions

Tx.WriteBlock is the one multi-bucket primitive: it checks whether a block
already exists (bumping its refcount) or allocates a path (pkg/blockstore)
and inserts a new Block with rc=1. Object deletion's refcount bookkeeping
lives in Store.DeleteObject directly rather than behind the generic Tx,
since it needs to range over an object's whole block list atomically with
the object-index removal.

# Durability

The Durability enum (Buffer/Fsync/Fdatasync) is accepted at construction
but not applied: every commit is an ordinary bbolt write transaction,
which bbolt always syncs, so all three settings behave alike. This
package does not use or expose db.Batch — see SPEC_FULL.md §13.
*/
package metastore
