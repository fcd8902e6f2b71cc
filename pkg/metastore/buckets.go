package metastore

import (
	"fmt"

	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAllBuckets  = []byte("_ALL_BUCKETS")
	bucketBlocks      = []byte("_BLOCKS")
	bucketPaths       = []byte("_PATHS")
	bucketMultipart   = []byte("_MULTIPART_PARTS")
	bucketObjectsRoot = []byte("_OBJECTS")
)

// boltTree is a Tree backed by a single top-level bbolt bucket. Each call
// opens its own transaction, matching the teacher's view/update-per-call
// idiom; callers needing cross-tree atomicity use Tx instead.
type boltTree struct {
	db     *bolt.DB
	bucket []byte
}

func (t *boltTree) Insert(key, value []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(t.bucket)
		if err != nil {
			return fmt.Errorf("metastore: create bucket %s: %w", t.bucket, err)
		}
		return b.Put(key, value)
	})
}

func (t *boltTree) Remove(key []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
}

func (t *boltTree) Contains(key []byte) (bool, error) {
	var found bool
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return nil
		}
		found = b.Get(key) != nil
		return nil
	})
	return found, err
}

func (t *boltTree) Get(key []byte) ([]byte, error) {
	var out []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (t *boltTree) ForEach(fn func(key, value []byte) error) error {
	return t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(fn)
	})
}

// nestedBoltTree is a Tree backed by a bucket nested under a parent bucket
// (used for per-bucket object trees under _OBJECTS/<bucket-name>).
type nestedBoltTree struct {
	db     *bolt.DB
	parent []byte
	name   []byte
}

func (t *nestedBoltTree) withBucket(write bool, fn func(b *bolt.Bucket) error) error {
	do := t.db.View
	if write {
		do = t.db.Update
	}
	return do(func(tx *bolt.Tx) error {
		parent := tx.Bucket(t.parent)
		if parent == nil {
			if !write {
				return nil
			}
			var err error
			parent, err = tx.CreateBucketIfNotExists(t.parent)
			if err != nil {
				return err
			}
		}
		b := parent.Bucket(t.name)
		if b == nil {
			if !write {
				return nil
			}
			var err error
			b, err = parent.CreateBucketIfNotExists(t.name)
			if err != nil {
				return err
			}
		}
		return fn(b)
	})
}

func (t *nestedBoltTree) Insert(key, value []byte) error {
	return t.withBucket(true, func(b *bolt.Bucket) error { return b.Put(key, value) })
}

func (t *nestedBoltTree) Remove(key []byte) error {
	return t.withBucket(true, func(b *bolt.Bucket) error { return b.Delete(key) })
}

func (t *nestedBoltTree) Contains(key []byte) (bool, error) {
	var found bool
	err := t.withBucket(false, func(b *bolt.Bucket) error {
		found = b.Get(key) != nil
		return nil
	})
	return found, err
}

func (t *nestedBoltTree) Get(key []byte) ([]byte, error) {
	var out []byte
	err := t.withBucket(false, func(b *bolt.Bucket) error {
		v := b.Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (t *nestedBoltTree) ForEach(fn func(key, value []byte) error) error {
	return t.withBucket(false, func(b *bolt.Bucket) error { return b.ForEach(fn) })
}

func (t *nestedBoltTree) Range(start []byte, fn func(key, value []byte) (bool, error)) error {
	return t.withBucket(false, func(b *bolt.Bucket) error {
		c := b.Cursor()
		var k, v []byte
		if len(start) == 0 {
			k, v = c.First()
		} else {
			k, v = c.Seek(start)
		}
		for ; k != nil; k, v = c.Next() {
			cont, err := fn(k, v)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// boltBlockTree is the shared block tree, keyed by BlockID, holding
// types.Block-encoded values.
type boltBlockTree struct {
	db *bolt.DB
}

func (t *boltBlockTree) Get(id types.BlockID) (types.Block, bool, error) {
	var (
		block types.Block
		found bool
	)
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocks)
		if b == nil {
			return nil
		}
		v := b.Get(id[:])
		if v == nil {
			return nil
		}
		decoded, err := types.DecodeBlock(v)
		if err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
		}
		block, found = decoded, true
		return nil
	})
	return block, found, err
}

func (t *boltBlockTree) Put(id types.BlockID, b types.Block) error {
	enc, err := types.EncodeBlock(b)
	if err != nil {
		return fmt.Errorf("metastore: encode block %s: %w", id, err)
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketBlocks)
		if err != nil {
			return err
		}
		return bucket.Put(id[:], enc)
	})
}

func (t *boltBlockTree) Delete(id types.BlockID) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocks)
		if b == nil {
			return nil
		}
		return b.Delete(id[:])
	})
}

func (t *boltBlockTree) ForEach(fn func(id types.BlockID, b types.Block) error) error {
	return t.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBlocks)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var id types.BlockID
			copy(id[:], k)
			block, err := types.DecodeBlock(v)
			if err != nil {
				return fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
			}
			return fn(id, block)
		})
	})
}
