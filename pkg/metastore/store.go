package metastore

import "github.com/threefoldtech/s3-cas/pkg/types"

// Tree is a logically isolated keyed partition within a metastore backend.
// Iteration yields keys in lexicographic order.
type Tree interface {
	Insert(key, value []byte) error
	Remove(key []byte) error
	Contains(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	ForEach(fn func(key, value []byte) error) error
}

// BucketTree is a per-bucket object tree: a Tree plus range iteration used
// by list_objects.
type BucketTree interface {
	Tree
	// Range iterates keys >= start in lexicographic order, calling fn for
	// each. fn returns false to stop iteration early.
	Range(start []byte, fn func(key, value []byte) (bool, error)) error
}

// BlockTree is the shared block tree: keyed by BlockID, holding decoded
// Block records.
type BlockTree interface {
	Get(id types.BlockID) (types.Block, bool, error)
	Put(id types.BlockID, b types.Block) error
	Delete(id types.BlockID) error
	ForEach(fn func(id types.BlockID, b types.Block) error) error
}

// Tx is a scoped, multi-tree mutation context for block writes and object
// deletes. A transactional backend commits it atomically; a compensated
// backend has already applied each mutation and keeps a compensation log
// for Rollback.
type Tx interface {
	// WriteBlock records that data_len bytes with digest blockHash are
	// being written. If the block already exists, its refcount is bumped.
	// If it is new, a path is allocated (pkg/blockstore) and the block is
	// inserted with rc=1. keyHasBlock lets the caller short-circuit when it
	// already knows (e.g. from a prior lookup) that the block is present,
	// avoiding a redundant read.
	WriteBlock(blockHash types.BlockID, dataLen uint64, keyHasBlock bool) (isNew bool, block types.Block, err error)
	Commit() error
	Rollback()
}

// Store is the metastore abstraction: typed KV trees plus transactions.
// Two implementations exist, both atop go.etcd.io/bbolt: AtomicBackend
// (true multi-bucket bbolt transactions) and CompensatedBackend (per-tree
// commits with a best-effort rollback log). See DESIGN.md.
type Store interface {
	// MaxInlinedDataLength returns the inlining budget: the largest object
	// payload that may be stored inline rather than as blocks. Zero
	// disables inlining.
	MaxInlinedDataLength() int

	AllBucketsTree() (Tree, error)
	BucketTree(name string) (BucketTree, error)
	BlockTree() (BlockTree, error)
	PathTree() (Tree, error)
	MultipartTree() (Tree, error)
	NamedTree(name string) (Tree, error)

	BucketExists(name string) (bool, error)
	InsertBucket(name string, raw []byte) error
	DropBucket(name string) error
	ListBuckets() ([]types.BucketMeta, error)

	GetMeta(bucket, key string) ([]byte, bool, error)
	InsertMeta(bucket, key string, raw []byte) error

	// DeleteObject is the transactional object-removal primitive (§4.5):
	// it decrements the refcount of every block the object references,
	// removes rc-exhausted blocks from the block tree (leaving their path
	// entries pinned), and returns the BlockIDs the caller must now unlink
	// from disk.
	DeleteObject(bucket, key string) ([]types.BlockID, error)

	// ReleaseBlocks decrements the refcount of each given BlockID by one,
	// removing rc-exhausted blocks from the block tree (path entries left
	// pinned, same as DeleteObject). It returns the BlockIDs actually
	// removed. Used by callers (pkg/objectstore) whose object record lives
	// in a different metastore than the shared block tree, so they can't
	// use DeleteObject's single-store read-modify-write directly.
	ReleaseBlocks(ids []types.BlockID) ([]types.BlockID, error)

	// BumpBlocks increments the refcount of each given BlockID by one, for
	// copy_object's "reference the same blocks from a new object" case.
	// Every ID must already exist in the block tree.
	BumpBlocks(ids []types.BlockID) error

	BeginTx() (Tx, error)

	// NumKeys returns (bucket count, block count, path count) for
	// observability.
	NumKeys() (buckets, blocks, paths int)
	// DiskSpace returns the backend's on-disk footprint in bytes.
	DiskSpace() int64

	Close() error
}
