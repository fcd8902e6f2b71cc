package metastore

import (
	"fmt"

	"github.com/threefoldtech/s3-cas/pkg/blockstore"
	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/log"
	"github.com/threefoldtech/s3-cas/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// AtomicBackend is the transactional metastore variant: WriteBlock and
// DeleteObject run inside one real bbolt transaction spanning the block
// and path buckets, committed atomically.
type AtomicBackend struct {
	base
}

// NewAtomicBackend opens (creating if needed) a bbolt-backed metastore at
// root with the given inlining budget and durability.
func NewAtomicBackend(root string, inlineLimit int, durability types.Durability) (*AtomicBackend, error) {
	db, path, err := openBolt(root, durability)
	if err != nil {
		return nil, err
	}
	return &AtomicBackend{base: base{db: db, path: path, inlineLimit: inlineLimit}}, nil
}

func (s *AtomicBackend) Close() error {
	return s.db.Close()
}

// BeginTx starts a real bbolt write transaction. WriteBlock calls made
// through the returned Tx operate on the block and path buckets within it;
// Commit/Rollback delegate to the underlying bolt.Tx.
func (s *AtomicBackend) BeginTx() (Tx, error) {
	btx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("metastore: %w: begin: %w", casserr.ErrTransaction, err)
	}
	return &atomicTx{btx: btx}, nil
}

type atomicTx struct {
	btx  *bolt.Tx
	done bool
}

func (t *atomicTx) WriteBlock(blockHash types.BlockID, dataLen uint64, keyHasBlock bool) (bool, types.Block, error) {
	blockBucket, err := t.btx.CreateBucketIfNotExists(bucketBlocks)
	if err != nil {
		return false, types.Block{}, fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
	}

	if !keyHasBlock {
		if existing := blockBucket.Get(blockHash[:]); existing != nil {
			keyHasBlock = true
		}
	}

	if keyHasBlock {
		existing := blockBucket.Get(blockHash[:])
		if existing == nil {
			return false, types.Block{}, fmt.Errorf("metastore: %w: block %s vanished mid-transaction", casserr.ErrCorruption, blockHash)
		}
		block, err := types.DecodeBlock(existing)
		if err != nil {
			return false, types.Block{}, fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
		}
		block.RC++
		enc, err := types.EncodeBlock(block)
		if err != nil {
			return false, types.Block{}, err
		}
		if err := blockBucket.Put(blockHash[:], enc); err != nil {
			return false, types.Block{}, fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
		}
		return false, block, nil
	}

	pathBucket, err := t.btx.CreateBucketIfNotExists(bucketPaths)
	if err != nil {
		return false, types.Block{}, fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
	}
	path, err := blockstore.AllocatePath(&txPathTree{b: pathBucket}, blockHash)
	if err != nil {
		return false, types.Block{}, err
	}
	block := types.Block{Size: dataLen, Path: path, RC: 1}
	enc, err := types.EncodeBlock(block)
	if err != nil {
		return false, types.Block{}, err
	}
	if err := blockBucket.Put(blockHash[:], enc); err != nil {
		return false, types.Block{}, fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
	}
	return true, block, nil
}

func (t *atomicTx) Commit() error {
	t.done = true
	if err := t.btx.Commit(); err != nil {
		return fmt.Errorf("metastore: %w: commit: %w", casserr.ErrTransaction, err)
	}
	return nil
}

func (t *atomicTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	_ = t.btx.Rollback()
}

// txPathTree adapts a live bolt.Bucket to blockstore.PathTree so path
// allocation runs inside the same bbolt transaction as the block write.
type txPathTree struct {
	b *bolt.Bucket
}

func (p *txPathTree) Contains(key []byte) (bool, error) {
	return p.b.Get(key) != nil, nil
}

func (p *txPathTree) Insert(key, value []byte) error {
	return p.b.Put(key, value)
}

// ReleaseBlocks decrements the refcount of each id by one in a single
// transaction, removing and returning any that hit zero.
func (s *AtomicBackend) ReleaseBlocks(ids []types.BlockID) ([]types.BlockID, error) {
	var removed []types.BlockID
	err := s.db.Update(func(tx *bolt.Tx) error {
		blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
		if err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
		}
		for _, id := range ids {
			raw := blockBucket.Get(id[:])
			if raw == nil {
				continue // corruption signal, not fatal: §7
			}
			block, err := types.DecodeBlock(raw)
			if err != nil {
				continue
			}
			if block.RC > 1 {
				block.RC--
				enc, err := types.EncodeBlock(block)
				if err != nil {
					return err
				}
				if err := blockBucket.Put(id[:], enc); err != nil {
					return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
				}
				continue
			}
			if err := blockBucket.Delete(id[:]); err != nil {
				return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
			}
			removed = append(removed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// BumpBlocks increments the refcount of each id by one in a single
// transaction.
func (s *AtomicBackend) BumpBlocks(ids []types.BlockID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
		if err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
		}
		for _, id := range ids {
			raw := blockBucket.Get(id[:])
			if raw == nil {
				return fmt.Errorf("metastore: %w: block %s not found", casserr.ErrNotFound, id)
			}
			block, err := types.DecodeBlock(raw)
			if err != nil {
				return fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
			}
			block.RC++
			enc, err := types.EncodeBlock(block)
			if err != nil {
				return err
			}
			if err := blockBucket.Put(id[:], enc); err != nil {
				return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
			}
		}
		return nil
	})
}

// DeleteObject performs the transactional read-modify-write of §4.5: fetch
// the object, decrement each referenced block's refcount, remove
// rc-exhausted blocks from the block tree (path entries untouched), commit,
// and return the removed BlockIDs for the caller to unlink from disk.
func (s *AtomicBackend) DeleteObject(bucketName, key string) ([]types.BlockID, error) {
	var removed []types.BlockID

	err := s.db.Update(func(tx *bolt.Tx) error {
		objRoot := tx.Bucket(bucketObjectsRoot)
		if objRoot == nil {
			return nil
		}
		objBucket := objRoot.Bucket([]byte(bucketName))
		if objBucket == nil {
			return nil
		}
		raw := objBucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		obj, err := types.DecodeObject(raw)
		if err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
		}
		if err := objBucket.Delete([]byte(key)); err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
		}
		if obj.Variant == types.VariantInline {
			return nil
		}

		blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
		if err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
		}
		for _, id := range obj.Blocks {
			raw := blockBucket.Get(id[:])
			if raw == nil {
				// Corruption signal, not fatal: log-and-continue per §7.
				log.WithBlock(id.String()).Warn().Str("bucket", bucketName).Str("key", key).Msg("block missing from block tree during delete")
				continue
			}
			block, err := types.DecodeBlock(raw)
			if err != nil {
				continue
			}
			if block.RC > 1 {
				block.RC--
				enc, err := types.EncodeBlock(block)
				if err != nil {
					return err
				}
				if err := blockBucket.Put(id[:], enc); err != nil {
					return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
				}
				continue
			}
			if err := blockBucket.Delete(id[:]); err != nil {
				return fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
			}
			removed = append(removed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
