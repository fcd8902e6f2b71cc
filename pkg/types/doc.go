/*
Package types defines the core data structures of the content-addressable
storage engine: blocks, objects, buckets, multipart uploads, and user
credential records.

# Core Types

Addressing:
  - BlockID: 16-byte MD5 digest identifying a block.
  - Block: size, allocated path prefix, and reference count for a
    deduplicated chunk.

Objects:
  - Object: size, whole-payload e_tag, timestamps, and one of three payload
    variants (Inline, SinglePart, MultiPart).
  - BucketMeta: bucket name and creation time.
  - MultiPart: one uploaded part of a multipart upload.
  - PathEntry: the BlockID a path-tree prefix resolves to.

Ranges:
  - RangeRequest: All, FromStart(n), Last(n), or Range(start, end).

Users:
  - UserRecord: tenant identity and S3 credentials.

# Encoding

Block, Object, and BucketMeta have a pinned binary layout (see codec.go)
because external tooling round-trips these exact bytes; everything else in
this repo is free to use whatever in-memory representation is convenient.
*/
package types
