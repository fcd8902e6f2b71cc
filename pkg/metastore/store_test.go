package metastore

import (
	"crypto/md5"
	"testing"

	"github.com/threefoldtech/s3-cas/pkg/types"
)

func blockID(b byte) types.BlockID {
	sum := md5.Sum([]byte{b})
	return types.BlockID(sum)
}

func newBackends(t *testing.T) map[string]Store {
	t.Helper()
	atomic, err := NewAtomicBackend(t.TempDir(), 0, types.DurabilityFsync)
	if err != nil {
		t.Fatalf("NewAtomicBackend() error = %v", err)
	}
	t.Cleanup(func() { _ = atomic.Close() })

	compensated, err := NewCompensatedBackend(t.TempDir(), 0, types.DurabilityFsync)
	if err != nil {
		t.Fatalf("NewCompensatedBackend() error = %v", err)
	}
	t.Cleanup(func() { _ = compensated.Close() })

	return map[string]Store{
		"atomic":      atomic,
		"compensated": compensated,
	}
}

func TestBucketCRUD(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			meta := types.BucketMeta{Name: "b1"}
			enc, err := types.EncodeBucketMeta(meta)
			if err != nil {
				t.Fatalf("EncodeBucketMeta() error = %v", err)
			}

			exists, err := store.BucketExists("b1")
			if err != nil || exists {
				t.Fatalf("BucketExists() = %v, %v, want false, nil", exists, err)
			}

			if err := store.InsertBucket("b1", enc); err != nil {
				t.Fatalf("InsertBucket() error = %v", err)
			}

			exists, err = store.BucketExists("b1")
			if err != nil || !exists {
				t.Fatalf("BucketExists() = %v, %v, want true, nil", exists, err)
			}

			buckets, err := store.ListBuckets()
			if err != nil {
				t.Fatalf("ListBuckets() error = %v", err)
			}
			if len(buckets) != 1 || buckets[0].Name != "b1" {
				t.Fatalf("ListBuckets() = %+v, want one bucket named b1", buckets)
			}

			if err := store.DropBucket("b1"); err != nil {
				t.Fatalf("DropBucket() error = %v", err)
			}
			exists, _ = store.BucketExists("b1")
			if exists {
				t.Error("BucketExists() after DropBucket() = true, want false")
			}
		})
	}
}

func TestWriteBlockDedupBumpsRefcount(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			id := blockID(1)

			tx1, err := store.BeginTx()
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			isNew, block, err := tx1.WriteBlock(id, 100, false)
			if err != nil {
				t.Fatalf("WriteBlock() error = %v", err)
			}
			if !isNew {
				t.Error("first WriteBlock() isNew = false, want true")
			}
			if block.RC != 1 {
				t.Errorf("first WriteBlock() rc = %d, want 1", block.RC)
			}
			if err := tx1.Commit(); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}

			tx2, err := store.BeginTx()
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			isNew, block, err = tx2.WriteBlock(id, 100, false)
			if err != nil {
				t.Fatalf("second WriteBlock() error = %v", err)
			}
			if isNew {
				t.Error("second WriteBlock() isNew = true, want false")
			}
			if block.RC != 2 {
				t.Errorf("second WriteBlock() rc = %d, want 2", block.RC)
			}
			if err := tx2.Commit(); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}

			blockTree, err := store.BlockTree()
			if err != nil {
				t.Fatalf("BlockTree() error = %v", err)
			}
			stored, found, err := blockTree.Get(id)
			if err != nil || !found {
				t.Fatalf("BlockTree.Get() = %+v, %v, %v", stored, found, err)
			}
			if stored.RC != 2 {
				t.Errorf("stored rc = %d, want 2", stored.RC)
			}
		})
	}
}

func TestAtomicTxRollbackDiscardsNewBlock(t *testing.T) {
	store, err := NewAtomicBackend(t.TempDir(), 0, types.DurabilityFsync)
	if err != nil {
		t.Fatalf("NewAtomicBackend() error = %v", err)
	}
	defer store.Close()

	id := blockID(2)
	tx, err := store.BeginTx()
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if _, _, err := tx.WriteBlock(id, 10, false); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}
	tx.Rollback()

	blockTree, _ := store.BlockTree()
	_, found, err := blockTree.Get(id)
	if err != nil {
		t.Fatalf("BlockTree.Get() error = %v", err)
	}
	if found {
		t.Error("block should not exist after Rollback()")
	}
}

func TestDeleteObjectDecrementsThenRemovesRefcount(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			meta, _ := types.EncodeBucketMeta(types.BucketMeta{Name: "b"})
			if err := store.InsertBucket("b", meta); err != nil {
				t.Fatalf("InsertBucket() error = %v", err)
			}

			id := blockID(3)
			tx, err := store.BeginTx()
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			if _, _, err := tx.WriteBlock(id, 10, false); err != nil {
				t.Fatalf("WriteBlock() error = %v", err)
			}
			if err := tx.Commit(); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}

			// Bump refcount to 2 via a second write so deletion only
			// decrements on the first delete.
			tx2, _ := store.BeginTx()
			if _, _, err := tx2.WriteBlock(id, 10, false); err != nil {
				t.Fatalf("WriteBlock() error = %v", err)
			}
			_ = tx2.Commit()

			obj := types.Object{Size: 10, Variant: types.VariantSinglePart, Blocks: []types.BlockID{id}}
			enc, err := types.EncodeObject(obj)
			if err != nil {
				t.Fatalf("EncodeObject() error = %v", err)
			}
			if err := store.InsertMeta("b", "key1", enc); err != nil {
				t.Fatalf("InsertMeta() error = %v", err)
			}

			removed, err := store.DeleteObject("b", "key1")
			if err != nil {
				t.Fatalf("DeleteObject() error = %v", err)
			}
			if len(removed) != 0 {
				t.Errorf("DeleteObject() removed = %v, want none (rc should drop from 2 to 1)", removed)
			}

			blockTree, _ := store.BlockTree()
			block, found, err := blockTree.Get(id)
			if err != nil || !found {
				t.Fatalf("block should still exist after first delete: found=%v err=%v", found, err)
			}
			if block.RC != 1 {
				t.Errorf("rc after first delete = %d, want 1", block.RC)
			}

			// Second object referencing the same block; deleting it should
			// now remove the block entirely.
			if err := store.InsertMeta("b", "key2", enc); err != nil {
				t.Fatalf("InsertMeta() error = %v", err)
			}
			removed, err = store.DeleteObject("b", "key2")
			if err != nil {
				t.Fatalf("DeleteObject() error = %v", err)
			}
			if len(removed) != 1 || removed[0] != id {
				t.Errorf("DeleteObject() removed = %v, want [%v]", removed, id)
			}

			_, found, _ = blockTree.Get(id)
			if found {
				t.Error("block should be gone after rc reaches 0")
			}
		})
	}
}

func TestReleaseAndBumpBlocks(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			id := blockID(9)
			tx, err := store.BeginTx()
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			if _, _, err := tx.WriteBlock(id, 10, false); err != nil {
				t.Fatalf("WriteBlock() error = %v", err)
			}
			if err := tx.Commit(); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}

			if err := store.BumpBlocks([]types.BlockID{id}); err != nil {
				t.Fatalf("BumpBlocks() error = %v", err)
			}
			blockTree, _ := store.BlockTree()
			block, _, _ := blockTree.Get(id)
			if block.RC != 2 {
				t.Fatalf("rc after BumpBlocks() = %d, want 2", block.RC)
			}

			removed, err := store.ReleaseBlocks([]types.BlockID{id})
			if err != nil {
				t.Fatalf("ReleaseBlocks() error = %v", err)
			}
			if len(removed) != 0 {
				t.Fatalf("ReleaseBlocks() removed = %v, want none (rc 2->1)", removed)
			}
			block, _, _ = blockTree.Get(id)
			if block.RC != 1 {
				t.Fatalf("rc after first ReleaseBlocks() = %d, want 1", block.RC)
			}

			removed, err = store.ReleaseBlocks([]types.BlockID{id})
			if err != nil {
				t.Fatalf("ReleaseBlocks() error = %v", err)
			}
			if len(removed) != 1 || removed[0] != id {
				t.Fatalf("ReleaseBlocks() removed = %v, want [%v]", removed, id)
			}
			_, found, _ := blockTree.Get(id)
			if found {
				t.Error("block should be gone after rc reaches 0")
			}
		})
	}
}

func TestDeleteObjectNotFoundReturnsEmpty(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			removed, err := store.DeleteObject("missing-bucket", "missing-key")
			if err != nil {
				t.Fatalf("DeleteObject() error = %v, want nil", err)
			}
			if len(removed) != 0 {
				t.Errorf("DeleteObject() removed = %v, want empty", removed)
			}
		})
	}
}
