package metastore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// base implements every Store method that doesn't need backend-specific
// transaction semantics. AtomicBackend and CompensatedBackend embed it and
// add BeginTx, DeleteObject, and Close.
type base struct {
	db          *bolt.DB
	path        string
	inlineLimit int
}

func openBolt(root string, durability types.Durability) (*bolt.DB, string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, "", fmt.Errorf("metastore: create root %s: %w", root, err)
	}
	dbPath := filepath.Join(root, "meta.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, "", fmt.Errorf("metastore: open %s: %w", dbPath, err)
	}
	// The durability setting is not applied: bbolt fsyncs every committed
	// write transaction, and no write in this package goes through db.Batch.
	_ = durability
	return db, dbPath, nil
}

func (s *base) MaxInlinedDataLength() int {
	return s.inlineLimit
}

func (s *base) AllBucketsTree() (Tree, error) {
	return &boltTree{db: s.db, bucket: bucketAllBuckets}, nil
}

func (s *base) BucketTree(name string) (BucketTree, error) {
	return &nestedBoltTree{db: s.db, parent: bucketObjectsRoot, name: []byte(name)}, nil
}

func (s *base) BlockTree() (BlockTree, error) {
	return &boltBlockTree{db: s.db}, nil
}

func (s *base) PathTree() (Tree, error) {
	return &boltTree{db: s.db, bucket: bucketPaths}, nil
}

func (s *base) MultipartTree() (Tree, error) {
	return &boltTree{db: s.db, bucket: bucketMultipart}, nil
}

func (s *base) NamedTree(name string) (Tree, error) {
	return &boltTree{db: s.db, bucket: []byte(name)}, nil
}

func (s *base) BucketExists(name string) (bool, error) {
	t, _ := s.AllBucketsTree()
	return t.Contains([]byte(name))
}

func (s *base) InsertBucket(name string, raw []byte) error {
	t, _ := s.AllBucketsTree()
	if err := t.Insert([]byte(name), raw); err != nil {
		return err
	}
	// Materialize the per-bucket object tree eagerly so BucketTree lookups
	// after InsertBucket never race a lazily-created nested bucket.
	return s.db.Update(func(tx *bolt.Tx) error {
		parent, err := tx.CreateBucketIfNotExists(bucketObjectsRoot)
		if err != nil {
			return err
		}
		_, err = parent.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

func (s *base) DropBucket(name string) error {
	t, _ := s.AllBucketsTree()
	if err := t.Remove([]byte(name)); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketObjectsRoot)
		if parent == nil {
			return nil
		}
		if parent.Bucket([]byte(name)) == nil {
			return nil
		}
		return parent.DeleteBucket([]byte(name))
	})
}

func (s *base) ListBuckets() ([]types.BucketMeta, error) {
	t, _ := s.AllBucketsTree()
	var out []types.BucketMeta
	err := t.ForEach(func(_, v []byte) error {
		meta, err := types.DecodeBucketMeta(v)
		if err != nil {
			return fmt.Errorf("metastore: %w: %w", casserr.ErrCorruption, err)
		}
		out = append(out, meta)
		return nil
	})
	return out, err
}

func (s *base) GetMeta(bucket, key string) ([]byte, bool, error) {
	t, err := s.BucketTree(bucket)
	if err != nil {
		return nil, false, err
	}
	v, err := t.Get([]byte(key))
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

func (s *base) InsertMeta(bucket, key string, raw []byte) error {
	t, err := s.BucketTree(bucket)
	if err != nil {
		return err
	}
	return t.Insert([]byte(key), raw)
}

func (s *base) NumKeys() (buckets, blocks, paths int) {
	_ = s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketAllBuckets); b != nil {
			buckets = b.Stats().KeyN
		}
		if b := tx.Bucket(bucketBlocks); b != nil {
			blocks = b.Stats().KeyN
		}
		if b := tx.Bucket(bucketPaths); b != nil {
			paths = b.Stats().KeyN
		}
		return nil
	})
	return
}

func (s *base) DiskSpace() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}
