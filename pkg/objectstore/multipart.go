package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/ingest"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

// uploadMeta records the destination a multipart upload will complete to.
// Stored under the bare upload ID key, distinguishable from part records
// (stored under uploadID + 8-byte part number) by length alone.
type uploadMeta struct {
	Bucket string
	Key    string
}

// CreateMultipartUpload starts a new upload targeting (bucket, key) and
// returns its upload ID.
func (o *ObjectStore) CreateMultipartUpload(bucket, key string) (string, error) {
	tree, err := o.handle.Shared.MultipartTree()
	if err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	raw, err := json.Marshal(uploadMeta{Bucket: bucket, Key: key})
	if err != nil {
		return "", fmt.Errorf("objectstore: encode upload meta: %w", err)
	}
	if err := tree.Insert([]byte(uploadID), raw); err != nil {
		return "", fmt.Errorf("objectstore: %w", err)
	}
	o.sink.MultipartUploadStarted()
	return uploadID, nil
}

// UploadPart ingests r as part partNumber of uploadID, persisting the
// resulting block list in the multipart tree.
func (o *ObjectStore) UploadPart(ctx context.Context, uploadID string, partNumber uint64, r io.Reader) (types.MultiPart, error) {
	tree, err := o.handle.Shared.MultipartTree()
	if err != nil {
		return types.MultiPart{}, err
	}
	metaRaw, err := tree.Get([]byte(uploadID))
	if err != nil {
		return types.MultiPart{}, err
	}
	if metaRaw == nil {
		return types.MultiPart{}, fmt.Errorf("objectstore: upload %s: %w", uploadID, casserr.ErrNotFound)
	}

	result, err := ingest.Ingest(ctx, o.handle.Shared, o.handle.BlockRoot, r)
	if err != nil {
		return types.MultiPart{}, err
	}
	part := types.MultiPart{UploadID: uploadID, PartNumber: partNumber, Blocks: result.Blocks, Size: result.Size, ETag: result.Digest}

	enc, err := types.EncodeMultiPart(part)
	if err != nil {
		return types.MultiPart{}, fmt.Errorf("objectstore: encode part: %w", err)
	}
	if err := tree.Insert(multipartPartKey(uploadID, partNumber), enc); err != nil {
		return types.MultiPart{}, fmt.Errorf("objectstore: %w", err)
	}
	o.sink.MultipartPart()
	return part, nil
}

// CompleteMultipartUpload assembles the uploaded parts (ordered by part
// number) into a single VariantMultiPart Object at the upload's target
// (bucket, key), releasing any blocks the overwritten key previously held,
// then clears the upload's part records.
func (o *ObjectStore) CompleteMultipartUpload(uploadID string) (types.Object, error) {
	tree, err := o.handle.Shared.MultipartTree()
	if err != nil {
		return types.Object{}, err
	}
	metaRaw, err := tree.Get([]byte(uploadID))
	if err != nil {
		return types.Object{}, err
	}
	if metaRaw == nil {
		return types.Object{}, fmt.Errorf("objectstore: upload %s: %w", uploadID, casserr.ErrNotFound)
	}
	var meta uploadMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return types.Object{}, fmt.Errorf("objectstore: %w: %w", casserr.ErrCorruption, err)
	}

	parts, err := o.listParts(uploadID)
	if err != nil {
		return types.Object{}, err
	}

	var blocks []types.BlockID
	var total uint64
	hasher := md5.New()
	for _, p := range parts {
		blocks = append(blocks, p.Blocks...)
		total += p.Size
		hasher.Write(p.ETag[:])
	}
	var etag [16]byte
	copy(etag[:], hasher.Sum(nil))

	now := time.Now()
	obj := types.Object{
		Size:         total,
		ETag:         etag,
		CTime:        now,
		LastModified: now,
		Variant:      types.VariantMultiPart,
		Blocks:       blocks,
		PartCount:    uint64(len(parts)),
	}

	previousRaw, hadPrevious, err := o.handle.Local.GetMeta(meta.Bucket, meta.Key)
	if err != nil {
		return types.Object{}, err
	}

	enc, err := types.EncodeObject(obj)
	if err != nil {
		return types.Object{}, fmt.Errorf("objectstore: encode object: %w", err)
	}
	if err := o.handle.Local.InsertMeta(meta.Bucket, meta.Key, enc); err != nil {
		return types.Object{}, err
	}

	if hadPrevious {
		previous, err := types.DecodeObject(previousRaw)
		if err == nil && previous.Variant != types.VariantInline {
			o.releaseBlocksAndUnlink(previous.Blocks)
		}
	}

	if err := o.clearUpload(uploadID, parts); err != nil {
		return types.Object{}, err
	}
	o.sink.MultipartUploadFinished()
	return obj, nil
}

// AbortMultipartUpload releases the refcount of every block already
// committed by an uploaded part, then discards the upload's records. An
// aborted upload never produces an Object.
func (o *ObjectStore) AbortMultipartUpload(uploadID string) error {
	parts, err := o.listParts(uploadID)
	if err != nil {
		return err
	}
	var blocks []types.BlockID
	for _, p := range parts {
		blocks = append(blocks, p.Blocks...)
	}
	o.releaseBlocksAndUnlink(blocks)
	if err := o.clearUpload(uploadID, parts); err != nil {
		return err
	}
	o.sink.MultipartUploadFinished()
	return nil
}

func (o *ObjectStore) clearUpload(uploadID string, parts []types.MultiPart) error {
	tree, err := o.handle.Shared.MultipartTree()
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := tree.Remove(multipartPartKey(uploadID, p.PartNumber)); err != nil {
			return fmt.Errorf("objectstore: %w", err)
		}
	}
	if err := tree.Remove([]byte(uploadID)); err != nil {
		return fmt.Errorf("objectstore: %w", err)
	}
	return nil
}

// listParts returns uploadID's parts sorted by part number, found by
// filtering the multipart tree's full key space to entries whose key is
// uploadID followed by an 8-byte part number (the upload's own meta record
// is the bare uploadID key and so never matches).
func (o *ObjectStore) listParts(uploadID string) ([]types.MultiPart, error) {
	tree, err := o.handle.Shared.MultipartTree()
	if err != nil {
		return nil, err
	}
	prefix := []byte(uploadID)
	var parts []types.MultiPart
	err = tree.ForEach(func(key, value []byte) error {
		if len(key) != len(prefix)+8 || string(key[:len(prefix)]) != uploadID {
			return nil
		}
		part, err := types.DecodeMultiPart(value)
		if err != nil {
			return fmt.Errorf("objectstore: %w: %w", casserr.ErrCorruption, err)
		}
		parts = append(parts, part)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func multipartPartKey(uploadID string, partNumber uint64) []byte {
	key := make([]byte, len(uploadID)+8)
	copy(key, uploadID)
	binary.BigEndian.PutUint64(key[len(uploadID):], partNumber)
	return key
}
