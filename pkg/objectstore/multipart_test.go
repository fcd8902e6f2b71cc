package objectstore

import (
	"bytes"
	"context"
	"testing"
)

func TestMultipartUploadCompleteAssemblesParts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateBucket("b"); err != nil {
		t.Fatalf("CreateBucket() error = %v", err)
	}

	uploadID, err := store.CreateMultipartUpload("b", "k")
	if err != nil {
		t.Fatalf("CreateMultipartUpload() error = %v", err)
	}

	part1 := randomData(t, 1024)
	part2 := randomData(t, 2048)
	if _, err := store.UploadPart(ctx, uploadID, 2, bytes.NewReader(part2)); err != nil {
		t.Fatalf("UploadPart(2) error = %v", err)
	}
	if _, err := store.UploadPart(ctx, uploadID, 1, bytes.NewReader(part1)); err != nil {
		t.Fatalf("UploadPart(1) error = %v", err)
	}

	obj, err := store.CompleteMultipartUpload(uploadID)
	if err != nil {
		t.Fatalf("CompleteMultipartUpload() error = %v", err)
	}
	if obj.Size != uint64(len(part1)+len(part2)) {
		t.Errorf("obj.Size = %d, want %d", obj.Size, len(part1)+len(part2))
	}
	if obj.PartCount != 2 {
		t.Errorf("obj.PartCount = %d, want 2", obj.PartCount)
	}

	head, err := store.HeadObject("b", "k")
	if err != nil {
		t.Fatalf("HeadObject() error = %v", err)
	}
	if head.Size != obj.Size {
		t.Errorf("HeadObject().Size = %d, want %d", head.Size, obj.Size)
	}

	parts, err := store.listParts(uploadID)
	if err != nil {
		t.Fatalf("listParts() error = %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("listParts() after complete = %v, want empty", parts)
	}
}

func TestMultipartUploadAbortReleasesBlocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateBucket("b"); err != nil {
		t.Fatalf("CreateBucket() error = %v", err)
	}

	uploadID, err := store.CreateMultipartUpload("b", "k")
	if err != nil {
		t.Fatalf("CreateMultipartUpload() error = %v", err)
	}

	data := randomData(t, 4096)
	part, err := store.UploadPart(ctx, uploadID, 1, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("UploadPart() error = %v", err)
	}

	blockTree, err := store.handle.Shared.BlockTree()
	if err != nil {
		t.Fatalf("BlockTree() error = %v", err)
	}
	if _, found, _ := blockTree.Get(part.Blocks[0]); !found {
		t.Fatal("uploaded part's block missing before abort")
	}

	if err := store.AbortMultipartUpload(uploadID); err != nil {
		t.Fatalf("AbortMultipartUpload() error = %v", err)
	}

	if _, found, _ := blockTree.Get(part.Blocks[0]); found {
		t.Error("uploaded part's block still present after abort released its only reference")
	}
	if _, err := store.HeadObject("b", "k"); err == nil {
		t.Error("HeadObject() after abort: want error (no object ever created), got nil")
	}

	parts, err := store.listParts(uploadID)
	if err != nil {
		t.Fatalf("listParts() error = %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("listParts() after abort = %v, want empty", parts)
	}
}

func TestMultipartCompletingOverwritesPreviousObjectBlocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateBucket("b"); err != nil {
		t.Fatalf("CreateBucket() error = %v", err)
	}

	original := randomData(t, 512)
	firstObj, err := store.PutObject(ctx, "b", "k", bytes.NewReader(original))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}

	uploadID, err := store.CreateMultipartUpload("b", "k")
	if err != nil {
		t.Fatalf("CreateMultipartUpload() error = %v", err)
	}
	if _, err := store.UploadPart(ctx, uploadID, 1, bytes.NewReader(randomData(t, 256))); err != nil {
		t.Fatalf("UploadPart() error = %v", err)
	}
	if _, err := store.CompleteMultipartUpload(uploadID); err != nil {
		t.Fatalf("CompleteMultipartUpload() error = %v", err)
	}

	blockTree, _ := store.handle.Shared.BlockTree()
	if _, found, _ := blockTree.Get(firstObj.Blocks[0]); found {
		t.Error("original single-part object's block should be released once the multipart upload overwrites its key")
	}
}
