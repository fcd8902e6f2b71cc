package types

import (
	"encoding/binary"
	"fmt"
	"time"
)

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Encoded record layouts. These are pinned by the external contract: callers
// outside this repo (CLI inspection tools, future wire-protocol adapters)
// round-trip these exact byte layouts, so the encoding lives here rather than
// behind a general-purpose serialization library.

// InlineOverhead is the encoded overhead of an Inline-variant Object beyond
// its raw payload: size(8) + e_tag(16) + ctime(8) + last_modified(8) +
// variant-tag(1) + inline-length-prefix(8).
const InlineOverhead = 8 + 16 + 8 + 8 + 1 + 8

// EncodeBlock serializes a Block as size(u64) + path-len(u8) + path-bytes +
// rc(u64).
func EncodeBlock(b Block) ([]byte, error) {
	if len(b.Path) > BlockIDSize {
		return nil, fmt.Errorf("types: block path length %d exceeds %d", len(b.Path), BlockIDSize)
	}
	out := make([]byte, 8+1+len(b.Path)+8)
	binary.BigEndian.PutUint64(out[0:8], b.Size)
	out[8] = byte(len(b.Path))
	copy(out[9:9+len(b.Path)], b.Path)
	binary.BigEndian.PutUint64(out[9+len(b.Path):], b.RC)
	return out, nil
}

// DecodeBlock parses the format written by EncodeBlock.
func DecodeBlock(data []byte) (Block, error) {
	if len(data) < 9 {
		return Block{}, fmt.Errorf("types: %w: block record too short (%d bytes)", ErrCorrupt, len(data))
	}
	size := binary.BigEndian.Uint64(data[0:8])
	pathLen := int(data[8])
	if len(data) < 9+pathLen+8 {
		return Block{}, fmt.Errorf("types: %w: block record truncated", ErrCorrupt)
	}
	path := make([]byte, pathLen)
	copy(path, data[9:9+pathLen])
	rc := binary.BigEndian.Uint64(data[9+pathLen:])
	return Block{Size: size, Path: path, RC: rc}, nil
}

// ErrCorrupt marks a decode failure caused by a malformed on-disk record.
// Defined here (rather than imported from pkg/casserr) to keep this package
// free of a dependency on its own consumers; pkg/casserr wraps it.
var ErrCorrupt = fmt.Errorf("corrupt record")

// EncodeBucketMeta serializes name-len(u16) + name-bytes + ctime(u64).
func EncodeBucketMeta(b BucketMeta) ([]byte, error) {
	if len(b.Name) > 0xFFFF {
		return nil, fmt.Errorf("types: bucket name too long (%d bytes)", len(b.Name))
	}
	out := make([]byte, 2+len(b.Name)+8)
	binary.BigEndian.PutUint16(out[0:2], uint16(len(b.Name)))
	copy(out[2:2+len(b.Name)], b.Name)
	binary.BigEndian.PutUint64(out[2+len(b.Name):], uint64(b.CTime.Unix()))
	return out, nil
}

// DecodeBucketMeta parses the format written by EncodeBucketMeta.
func DecodeBucketMeta(data []byte) (BucketMeta, error) {
	if len(data) < 2 {
		return BucketMeta{}, fmt.Errorf("types: %w: bucket record too short", ErrCorrupt)
	}
	nameLen := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+nameLen+8 {
		return BucketMeta{}, fmt.Errorf("types: %w: bucket record truncated", ErrCorrupt)
	}
	name := string(data[2 : 2+nameLen])
	ctime := int64(binary.BigEndian.Uint64(data[2+nameLen:]))
	return BucketMeta{Name: name, CTime: unixTime(ctime)}, nil
}

// EncodeObject serializes size(u64) + e_tag(16) + ctime(u64) +
// last_modified(u64) + variant-tag(u8) + variant-payload.
func EncodeObject(o Object) ([]byte, error) {
	head := make([]byte, 8+16+8+8+1)
	binary.BigEndian.PutUint64(head[0:8], o.Size)
	copy(head[8:24], o.ETag[:])
	binary.BigEndian.PutUint64(head[24:32], uint64(o.CTime.Unix()))
	binary.BigEndian.PutUint64(head[32:40], uint64(o.LastModified.Unix()))
	head[40] = byte(o.Variant)

	var payload []byte
	switch o.Variant {
	case VariantInline:
		payload = make([]byte, 8+len(o.Inline))
		binary.BigEndian.PutUint64(payload[0:8], uint64(len(o.Inline)))
		copy(payload[8:], o.Inline)
	case VariantSinglePart:
		payload = encodeBlockList(o.Blocks)
	case VariantMultiPart:
		list := encodeBlockList(o.Blocks)
		payload = make([]byte, len(list)+8)
		copy(payload, list)
		binary.BigEndian.PutUint64(payload[len(list):], o.PartCount)
	default:
		return nil, fmt.Errorf("types: unknown object variant %d", o.Variant)
	}
	return append(head, payload...), nil
}

func encodeBlockList(blocks []BlockID) []byte {
	out := make([]byte, 8+len(blocks)*BlockIDSize)
	binary.BigEndian.PutUint64(out[0:8], uint64(len(blocks)))
	for i, b := range blocks {
		copy(out[8+i*BlockIDSize:], b[:])
	}
	return out
}

func decodeBlockList(data []byte) ([]BlockID, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("types: %w: block list too short", ErrCorrupt)
	}
	n := int(binary.BigEndian.Uint64(data[0:8]))
	need := 8 + n*BlockIDSize
	if len(data) < need {
		return nil, 0, fmt.Errorf("types: %w: block list truncated", ErrCorrupt)
	}
	blocks := make([]BlockID, n)
	for i := 0; i < n; i++ {
		copy(blocks[i][:], data[8+i*BlockIDSize:8+(i+1)*BlockIDSize])
	}
	return blocks, need, nil
}

// EncodeMultiPart serializes upload-id-len(u16) + upload-id-bytes +
// part-number(u64) + block-list + size(u64) + e_tag(16), for a part record
// held in the multipart tree between upload_part and complete/abort.
func EncodeMultiPart(p MultiPart) ([]byte, error) {
	if len(p.UploadID) > 0xFFFF {
		return nil, fmt.Errorf("types: upload id too long (%d bytes)", len(p.UploadID))
	}
	head := make([]byte, 2+len(p.UploadID)+8)
	binary.BigEndian.PutUint16(head[0:2], uint16(len(p.UploadID)))
	copy(head[2:2+len(p.UploadID)], p.UploadID)
	binary.BigEndian.PutUint64(head[2+len(p.UploadID):], p.PartNumber)

	list := encodeBlockList(p.Blocks)
	tail := make([]byte, 8+16)
	binary.BigEndian.PutUint64(tail[0:8], p.Size)
	copy(tail[8:24], p.ETag[:])

	out := make([]byte, 0, len(head)+len(list)+len(tail))
	out = append(out, head...)
	out = append(out, list...)
	out = append(out, tail...)
	return out, nil
}

// DecodeMultiPart parses the format written by EncodeMultiPart.
func DecodeMultiPart(data []byte) (MultiPart, error) {
	if len(data) < 2 {
		return MultiPart{}, fmt.Errorf("types: %w: multipart record too short", ErrCorrupt)
	}
	idLen := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+idLen+8 {
		return MultiPart{}, fmt.Errorf("types: %w: multipart record truncated", ErrCorrupt)
	}
	uploadID := string(data[2 : 2+idLen])
	partNumber := binary.BigEndian.Uint64(data[2+idLen : 2+idLen+8])

	rest := data[2+idLen+8:]
	blocks, consumed, err := decodeBlockList(rest)
	if err != nil {
		return MultiPart{}, err
	}
	if len(rest) < consumed+8+16 {
		return MultiPart{}, fmt.Errorf("types: %w: multipart record truncated", ErrCorrupt)
	}
	size := binary.BigEndian.Uint64(rest[consumed : consumed+8])
	var etag [16]byte
	copy(etag[:], rest[consumed+8:consumed+24])

	return MultiPart{UploadID: uploadID, PartNumber: partNumber, Blocks: blocks, Size: size, ETag: etag}, nil
}

// DecodeObject parses the format written by EncodeObject.
func DecodeObject(data []byte) (Object, error) {
	if len(data) < 41 {
		return Object{}, fmt.Errorf("types: %w: object record too short", ErrCorrupt)
	}
	o := Object{
		Size:         binary.BigEndian.Uint64(data[0:8]),
		CTime:        unixTime(int64(binary.BigEndian.Uint64(data[24:32]))),
		LastModified: unixTime(int64(binary.BigEndian.Uint64(data[32:40]))),
		Variant:      ObjectVariant(data[40]),
	}
	copy(o.ETag[:], data[8:24])
	rest := data[41:]

	switch o.Variant {
	case VariantInline:
		if len(rest) < 8 {
			return Object{}, fmt.Errorf("types: %w: inline object truncated", ErrCorrupt)
		}
		n := int(binary.BigEndian.Uint64(rest[0:8]))
		if len(rest) < 8+n {
			return Object{}, fmt.Errorf("types: %w: inline payload truncated", ErrCorrupt)
		}
		o.Inline = make([]byte, n)
		copy(o.Inline, rest[8:8+n])
	case VariantSinglePart:
		blocks, _, err := decodeBlockList(rest)
		if err != nil {
			return Object{}, err
		}
		o.Blocks = blocks
	case VariantMultiPart:
		blocks, consumed, err := decodeBlockList(rest)
		if err != nil {
			return Object{}, err
		}
		if len(rest) < consumed+8 {
			return Object{}, fmt.Errorf("types: %w: multipart object truncated", ErrCorrupt)
		}
		o.Blocks = blocks
		o.PartCount = binary.BigEndian.Uint64(rest[consumed : consumed+8])
	default:
		return Object{}, fmt.Errorf("types: %w: unknown object variant %d", ErrCorrupt, o.Variant)
	}
	return o, nil
}
