package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/threefoldtech/s3-cas/pkg/blockstore"
	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/ingest"
	"github.com/threefoldtech/s3-cas/pkg/log"
	"github.com/threefoldtech/s3-cas/pkg/metrics"
	"github.com/threefoldtech/s3-cas/pkg/router"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

// ObjectStore is the object-level API (§4.7) for one tenant: buckets,
// objects, ranges, and multipart uploads, composing a TenantHandle's local
// bucket/object trees with the shared block/path/multipart trees.
type ObjectStore struct {
	handle *router.TenantHandle
	sink   metrics.Sink
}

// New returns an ObjectStore scoped to handle's tenant. Metrics observations
// are discarded unless WithSink is used.
func New(handle *router.TenantHandle) *ObjectStore {
	return &ObjectStore{handle: handle, sink: metrics.NoopSink{}}
}

// WithSink returns a copy of o that records operation metrics into sink.
func (o *ObjectStore) WithSink(sink metrics.Sink) *ObjectStore {
	cp := *o
	cp.sink = sink
	return &cp
}

// CreateBucket creates an empty bucket, failing if one by that name already
// exists for this tenant.
func (o *ObjectStore) CreateBucket(name string) error {
	exists, err := o.handle.Local.BucketExists(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("objectstore: bucket %q: %w", name, casserr.ErrAlreadyExists)
	}
	raw, err := types.EncodeBucketMeta(types.BucketMeta{Name: name, CTime: time.Now()})
	if err != nil {
		return fmt.Errorf("objectstore: encode bucket meta: %w", err)
	}
	return o.handle.Local.InsertBucket(name, raw)
}

// DeleteBucket deletes every object in bucket (via the same refcount GC as
// DeleteObject) and then drops the bucket tree itself.
func (o *ObjectStore) DeleteBucket(name string) error {
	exists, err := o.handle.Local.BucketExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("objectstore: bucket %q: %w", name, casserr.ErrNotFound)
	}

	entries, err := o.ListObjects(name, types.ListObjectsQuery{})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := o.DeleteObject(name, entry.Key); err != nil {
			return fmt.Errorf("objectstore: delete %s/%s during bucket drop: %w", name, entry.Key, err)
		}
	}
	return o.handle.Local.DropBucket(name)
}

// ListBuckets returns this tenant's buckets in lexicographic order.
func (o *ObjectStore) ListBuckets() ([]types.BucketMeta, error) {
	return o.handle.Local.ListBuckets()
}

// HeadObject returns an object's metadata record.
func (o *ObjectStore) HeadObject(bucket, key string) (types.Object, error) {
	raw, found, err := o.handle.Local.GetMeta(bucket, key)
	if err != nil {
		return types.Object{}, err
	}
	if !found {
		return types.Object{}, fmt.Errorf("objectstore: %s/%s: %w", bucket, key, casserr.ErrNotFound)
	}
	obj, err := types.DecodeObject(raw)
	if err != nil {
		return types.Object{}, fmt.Errorf("objectstore: %w: %w", casserr.ErrCorruption, err)
	}
	return obj, nil
}

// GetObjectPaths returns an object's metadata plus its ordered block disk
// locations, for pkg/blockstream range reads. Inline objects have no block
// locations — their bytes live directly in Object.Inline.
func (o *ObjectStore) GetObjectPaths(bucket, key string) (types.Object, []types.BlockLocation, error) {
	obj, err := o.HeadObject(bucket, key)
	if err != nil {
		return types.Object{}, nil, err
	}
	if obj.Variant == types.VariantInline {
		return obj, nil, nil
	}

	blockTree, err := o.handle.Shared.BlockTree()
	if err != nil {
		return types.Object{}, nil, err
	}
	locations := make([]types.BlockLocation, len(obj.Blocks))
	for i, id := range obj.Blocks {
		block, found, err := blockTree.Get(id)
		if err != nil {
			return types.Object{}, nil, err
		}
		if !found {
			return types.Object{}, nil, fmt.Errorf("objectstore: %w: block %s referenced by %s/%s is missing", casserr.ErrCorruption, id, bucket, key)
		}
		locations[i] = types.BlockLocation{
			DiskPath: blockstore.FileLocation(o.handle.BlockRoot, block.Path),
			Size:     block.Size,
		}
	}
	return obj, locations, nil
}

// PutObject ingests r (§4.3) and writes the resulting Object record at
// (bucket, key), inlining the payload if it fits the tenant's inlining
// budget. If an object already existed at this key, its old blocks are
// released after the new record is committed.
func (o *ObjectStore) PutObject(ctx context.Context, bucket, key string, r io.Reader) (types.Object, error) {
	start := time.Now()
	obj, err := o.putObject(ctx, bucket, key, r)
	o.sink.ObjectOp("put", outcomeOf(err), time.Since(start))
	return obj, err
}

func (o *ObjectStore) putObject(ctx context.Context, bucket, key string, r io.Reader) (types.Object, error) {
	previousRaw, hadPrevious, err := o.handle.Local.GetMeta(bucket, key)
	if err != nil {
		return types.Object{}, err
	}

	obj, err := o.ingestObject(ctx, r)
	if err != nil {
		return types.Object{}, err
	}

	enc, err := types.EncodeObject(obj)
	if err != nil {
		return types.Object{}, fmt.Errorf("objectstore: encode object: %w", err)
	}
	if err := o.handle.Local.InsertMeta(bucket, key, enc); err != nil {
		return types.Object{}, err
	}

	if hadPrevious {
		previous, err := types.DecodeObject(previousRaw)
		if err == nil && previous.Variant != types.VariantInline {
			o.releaseBlocksAndUnlink(previous.Blocks)
		}
	}
	return obj, nil
}

// outcomeOf maps an operation error to the "outcome" label used by
// ObjectOpsTotal: "ok" when err is nil, "error" otherwise.
func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (o *ObjectStore) ingestObject(ctx context.Context, r io.Reader) (types.Object, error) {
	inlineLimit := o.handle.Local.MaxInlinedDataLength()
	now := time.Now()

	if inlineLimit > 0 {
		peek := make([]byte, inlineLimit+1)
		n, err := io.ReadFull(r, peek)
		switch err {
		case io.EOF, io.ErrUnexpectedEOF:
			data := peek[:n]
			return types.Object{
				Size:         uint64(n),
				ETag:         md5Sum(data),
				CTime:        now,
				LastModified: now,
				Variant:      types.VariantInline,
				Inline:       append([]byte(nil), data...),
			}, nil
		case nil:
			r = io.MultiReader(newBytesReader(peek), r)
		default:
			return types.Object{}, fmt.Errorf("objectstore: read: %w", err)
		}
	}

	ingestStart := time.Now()
	result, err := ingest.Ingest(ctx, o.handle.Shared, o.handle.BlockRoot, r)
	o.sink.ObserveIngestDuration(time.Since(ingestStart))
	if err != nil {
		o.sink.IngestChunk("error")
		return types.Object{}, err
	}
	for range result.Blocks {
		o.sink.IngestChunk("ok")
	}
	o.sink.IngestBytes(int(result.Size))
	return types.Object{
		Size:         result.Size,
		ETag:         result.Digest,
		CTime:        now,
		LastModified: now,
		Variant:      types.VariantSinglePart,
		Blocks:       result.Blocks,
	}, nil
}

// DeleteObject removes (bucket, key)'s metadata record and releases the
// refcount of (and, where it reaches zero, unlinks) every block it
// referenced — the GC algorithm of §4.5, adapted to the shared/tenant
// metastore split: the object record lives in the tenant store, the block
// refcounts live in the shared store, so this composes Local.GetMeta +
// Local's Tree.Remove with Shared.ReleaseBlocks rather than using either
// store's single-file DeleteObject convenience method.
func (o *ObjectStore) DeleteObject(bucket, key string) error {
	start := time.Now()
	err := o.deleteObject(bucket, key)
	o.sink.ObjectOp("delete", outcomeOf(err), time.Since(start))
	return err
}

func (o *ObjectStore) deleteObject(bucket, key string) error {
	raw, found, err := o.handle.Local.GetMeta(bucket, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	obj, err := types.DecodeObject(raw)
	if err != nil {
		return fmt.Errorf("objectstore: %w: %w", casserr.ErrCorruption, err)
	}

	tree, err := o.handle.Local.BucketTree(bucket)
	if err != nil {
		return err
	}
	if err := tree.Remove([]byte(key)); err != nil {
		return fmt.Errorf("objectstore: %w", err)
	}

	if obj.Variant != types.VariantInline {
		o.releaseBlocksAndUnlink(obj.Blocks)
	}
	return nil
}

// CopyObject reads the source object, bumps the refcount of every block it
// references, and writes a new Object record at the destination with a
// refreshed LastModified. Inline objects are copied by value; no refcounts
// are touched.
func (o *ObjectStore) CopyObject(srcBucket, srcKey, dstBucket, dstKey string) (types.Object, error) {
	start := time.Now()
	obj, err := o.copyObject(srcBucket, srcKey, dstBucket, dstKey)
	o.sink.ObjectOp("copy", outcomeOf(err), time.Since(start))
	return obj, err
}

func (o *ObjectStore) copyObject(srcBucket, srcKey, dstBucket, dstKey string) (types.Object, error) {
	src, err := o.HeadObject(srcBucket, srcKey)
	if err != nil {
		return types.Object{}, err
	}

	dst := src
	dst.LastModified = time.Now()

	if src.Variant != types.VariantInline {
		if err := o.handle.Shared.BumpBlocks(src.Blocks); err != nil {
			return types.Object{}, err
		}
		dst.Blocks = append([]types.BlockID(nil), src.Blocks...)
	} else {
		dst.Inline = append([]byte(nil), src.Inline...)
	}

	enc, err := types.EncodeObject(dst)
	if err != nil {
		return types.Object{}, fmt.Errorf("objectstore: encode object: %w", err)
	}
	if err := o.handle.Local.InsertMeta(dstBucket, dstKey, enc); err != nil {
		return types.Object{}, err
	}
	return dst, nil
}

// releaseBlocksAndUnlink is the shared tail of §4.5's delete algorithm:
// decrement refcounts, and for every block that reaches zero, unlink its
// file and only then remove its path entry. A failed unlink leaves the
// path entry in place — a dangling reservation, harmless per §4.5's
// rationale — and is logged, not propagated, since the metastore mutation
// already committed.
func (o *ObjectStore) releaseBlocksAndUnlink(ids []types.BlockID) {
	if len(ids) == 0 {
		return
	}

	blockTree, err := o.handle.Shared.BlockTree()
	if err != nil {
		log.Logger.Error().Err(err).Msg("objectstore: block tree unavailable during release")
		return
	}
	paths := make(map[types.BlockID][]byte, len(ids))
	for _, id := range ids {
		if block, found, err := blockTree.Get(id); err == nil && found {
			paths[id] = block.Path
		}
	}

	removed, err := o.handle.Shared.ReleaseBlocks(ids)
	if err != nil {
		log.Logger.Error().Err(err).Msg("objectstore: release_blocks failed")
		return
	}
	if len(removed) > 0 {
		o.sink.BlocksReleased(len(removed))
	}

	pathTree, err := o.handle.Shared.PathTree()
	if err != nil {
		log.Logger.Error().Err(err).Msg("objectstore: path tree unavailable during unlink")
		return
	}
	for _, id := range removed {
		path, ok := paths[id]
		if !ok {
			continue
		}
		loc := blockstore.FileLocation(o.handle.BlockRoot, path)
		if err := os.Remove(loc); err != nil && !os.IsNotExist(err) {
			log.WithBlock(id.String()).Warn().Err(err).Msg("objectstore: unlink failed, path entry left pinned")
			o.sink.BlockUnlinkFailure()
			continue
		}
		if err := pathTree.Remove(path); err != nil {
			log.WithBlock(id.String()).Warn().Err(err).Msg("objectstore: path entry removal failed after unlink")
		}
	}
}
