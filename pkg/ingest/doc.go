// Package ingest implements the streaming chunk/hash/dedup/write pipeline:
// a byte stream in, an ordered BlockID list plus whole-stream MD5 digest
// out. Chunking is sequential (it must be, to preserve byte order and feed
// the running digest); hashing, metastore writes, and disk writes for up to
// Config.Concurrency chunks happen concurrently, with results reassembled
// by chunk index before being returned.
package ingest
