package metastore

import (
	"fmt"

	"github.com/threefoldtech/s3-cas/pkg/blockstore"
	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// CompensatedBackend is the non-transactional metastore variant: it has no
// native multi-bucket atomicity. Each WriteBlock mutation lands in its own
// short bbolt update immediately (so Commit is a no-op — the effect is
// already observable); CompensatedTx keeps a log so Rollback can
// best-effort undo what it did. Commit = observable immediately; rollback
// = best-effort compensation (see SPEC_FULL.md §13).
type CompensatedBackend struct {
	base
}

// NewCompensatedBackend opens (creating if needed) a bbolt-backed
// metastore at root, using the compensated (non-transactional) write
// discipline.
func NewCompensatedBackend(root string, inlineLimit int, durability types.Durability) (*CompensatedBackend, error) {
	db, path, err := openBolt(root, durability)
	if err != nil {
		return nil, err
	}
	return &CompensatedBackend{base: base{db: db, path: path, inlineLimit: inlineLimit}}, nil
}

func (s *CompensatedBackend) Close() error {
	return s.db.Close()
}

// compensation is one undo step recorded by CompensatedTx.
type compensation struct {
	// newBlock is set when this step created a brand new Block; rollback
	// deletes it and its path entry.
	newBlock  bool
	blockHash types.BlockID
	path      []byte
	// bumpedExisting is set when this step only incremented an existing
	// block's refcount; rollback decrements it back.
	bumpedExisting bool
}

type compensatedTx struct {
	db  *bolt.DB
	log []compensation
}

func (s *CompensatedBackend) BeginTx() (Tx, error) {
	return &compensatedTx{db: s.db}, nil
}

func (t *compensatedTx) WriteBlock(blockHash types.BlockID, dataLen uint64, keyHasBlock bool) (bool, types.Block, error) {
	var (
		isNew bool
		block types.Block
	)

	err := t.db.Update(func(tx *bolt.Tx) error {
		blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
		if err != nil {
			return err
		}

		if !keyHasBlock {
			keyHasBlock = blockBucket.Get(blockHash[:]) != nil
		}

		if keyHasBlock {
			raw := blockBucket.Get(blockHash[:])
			if raw == nil {
				return fmt.Errorf("metastore: %w: block %s vanished", casserr.ErrCorruption, blockHash)
			}
			decoded, err := types.DecodeBlock(raw)
			if err != nil {
				return fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
			}
			decoded.RC++
			enc, err := types.EncodeBlock(decoded)
			if err != nil {
				return err
			}
			if err := blockBucket.Put(blockHash[:], enc); err != nil {
				return err
			}
			block = decoded
			return nil
		}

		pathBucket, err := tx.CreateBucketIfNotExists(bucketPaths)
		if err != nil {
			return err
		}
		path, err := blockstore.AllocatePath(&txPathTree{b: pathBucket}, blockHash)
		if err != nil {
			return err
		}
		block = types.Block{Size: dataLen, Path: path, RC: 1}
		enc, err := types.EncodeBlock(block)
		if err != nil {
			return err
		}
		if err := blockBucket.Put(blockHash[:], enc); err != nil {
			return err
		}
		isNew = true
		return nil
	})
	if err != nil {
		return false, types.Block{}, fmt.Errorf("metastore: write_block: %w", err)
	}

	if isNew {
		t.log = append(t.log, compensation{newBlock: true, blockHash: blockHash, path: block.Path})
	} else {
		t.log = append(t.log, compensation{bumpedExisting: true, blockHash: blockHash})
	}
	return isNew, block, nil
}

// Commit is a no-op: every WriteBlock call already landed in its own
// committed bbolt transaction.
func (t *compensatedTx) Commit() error {
	t.log = nil
	return nil
}

// Rollback best-effort undoes the recorded steps in reverse order. Partial
// failure here is expected and non-fatal — see SPEC_FULL.md §7.
func (t *compensatedTx) Rollback() {
	for i := len(t.log) - 1; i >= 0; i-- {
		step := t.log[i]
		_ = t.db.Update(func(tx *bolt.Tx) error {
			blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
			if err != nil {
				return err
			}
			if step.newBlock {
				if err := blockBucket.Delete(step.blockHash[:]); err != nil {
					return err
				}
				if pathBucket := tx.Bucket(bucketPaths); pathBucket != nil && step.path != nil {
					_ = pathBucket.Delete(step.path)
				}
				return nil
			}
			if step.bumpedExisting {
				raw := blockBucket.Get(step.blockHash[:])
				if raw == nil {
					return nil
				}
				decoded, err := types.DecodeBlock(raw)
				if err != nil {
					return nil
				}
				if decoded.RC > 0 {
					decoded.RC--
				}
				enc, err := types.EncodeBlock(decoded)
				if err != nil {
					return nil
				}
				return blockBucket.Put(step.blockHash[:], enc)
			}
			return nil
		})
	}
	t.log = nil
}

// ReleaseBlocks decrements each id's refcount in its own bbolt update,
// mirroring AtomicBackend.ReleaseBlocks but without a spanning transaction.
func (s *CompensatedBackend) ReleaseBlocks(ids []types.BlockID) ([]types.BlockID, error) {
	var removed []types.BlockID
	for _, id := range ids {
		var deleted bool
		err := s.db.Update(func(tx *bolt.Tx) error {
			blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
			if err != nil {
				return err
			}
			raw := blockBucket.Get(id[:])
			if raw == nil {
				return nil
			}
			block, err := types.DecodeBlock(raw)
			if err != nil {
				return nil
			}
			if block.RC > 1 {
				block.RC--
				enc, err := types.EncodeBlock(block)
				if err != nil {
					return err
				}
				return blockBucket.Put(id[:], enc)
			}
			deleted = true
			return blockBucket.Delete(id[:])
		})
		if err != nil {
			continue
		}
		if deleted {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// BumpBlocks increments each id's refcount in its own bbolt update.
func (s *CompensatedBackend) BumpBlocks(ids []types.BlockID) error {
	for _, id := range ids {
		err := s.db.Update(func(tx *bolt.Tx) error {
			blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
			if err != nil {
				return err
			}
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
			return blockBucket.Put(id[:], enc)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteObject mirrors AtomicBackend.DeleteObject's algorithm but applies
// each step (object removal, then each block's refcount update) as its own
// bbolt transaction rather than one spanning transaction — the
// non-transactional backend's defining trade: if a later step fails, the
// earlier steps are not undone, and cleanup is advisory (§7).
func (s *CompensatedBackend) DeleteObject(bucketName, key string) ([]types.BlockID, error) {
	var obj types.Object
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
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
		decoded, err := types.DecodeObject(raw)
		if err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
		}
		obj, found = decoded, true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		objRoot := tx.Bucket(bucketObjectsRoot)
		if objRoot == nil {
			return nil
		}
		objBucket := objRoot.Bucket([]byte(bucketName))
		if objBucket == nil {
			return nil
		}
		return objBucket.Delete([]byte(key))
	}); err != nil {
		return nil, fmt.Errorf("metastore: %w: %w", casserr.ErrTransaction, err)
	}

	if obj.Variant == types.VariantInline {
		return nil, nil
	}

	var removed []types.BlockID
	for _, id := range obj.Blocks {
		var deleted bool
		err := s.db.Update(func(tx *bolt.Tx) error {
			blockBucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
			if err != nil {
				return err
			}
			raw := blockBucket.Get(id[:])
			if raw == nil {
				return nil
			}
			block, err := types.DecodeBlock(raw)
			if err != nil {
				return nil
			}
			if block.RC > 1 {
				block.RC--
				enc, err := types.EncodeBlock(block)
				if err != nil {
					return err
				}
				return blockBucket.Put(id[:], enc)
			}
			deleted = true
			return blockBucket.Delete(id[:])
		})
		if err != nil {
			continue
		}
		if deleted {
			removed = append(removed, id)
		}
	}
	return removed, nil
}
