package ingest

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/threefoldtech/s3-cas/pkg/blockstore"
	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/metastore"
	"github.com/threefoldtech/s3-cas/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the reference in-flight chunk count from §4.3.
const DefaultConcurrency = 5

// Config tunes an Ingest call.
type Config struct {
	// Concurrency caps the number of chunks hashed/written concurrently.
	// Zero or negative falls back to DefaultConcurrency.
	Concurrency int
}

// Result is the outcome of ingesting a byte stream: the ordered block list,
// the whole-stream MD5 digest, and the total byte count.
type Result struct {
	Blocks []types.BlockID
	Digest [16]byte
	Size   uint64
}

type chunk struct {
	index int
	data  []byte
}

// Ingest consumes r, chunking it into BlockSize pieces, deduping each chunk
// against store via WriteBlock, and writing new chunks to disk under root.
// It returns the ordered BlockID list and whole-stream digest regardless of
// how many chunks were new versus deduplicated.
//
// On the first chunk error, Ingest fails fast: already-committed chunks are
// left in place (their path entries keep future identical content dedup'd
// correctly).
func Ingest(ctx context.Context, store metastore.Store, root string, r io.Reader) (Result, error) {
	return IngestWithConfig(ctx, store, root, r, Config{})
}

// IngestWithConfig is Ingest with an explicit concurrency override.
func IngestWithConfig(ctx context.Context, store metastore.Store, root string, r io.Reader, cfg Config) (Result, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	hasher := md5.New()
	var total uint64

	chunks := make(chan chunk, concurrency)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		buf := make([]byte, types.BlockSize)
		index := 0
		for {
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				hasher.Write(buf[:n])
				total += uint64(n)
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- chunk{index: index, data: data}:
				case <-gctx.Done():
					return gctx.Err()
				}
				index++
			}
			switch err {
			case nil:
				continue
			case io.EOF, io.ErrUnexpectedEOF:
				return nil
			default:
				return fmt.Errorf("ingest: read stream: %w: %w", casserr.ErrIo, err)
			}
		}
	})

	type indexedBlock struct {
		index int
		id    types.BlockID
	}
	var (
		mu        sync.Mutex
		collected []indexedBlock
	)

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for c := range chunks {
				id := types.BlockID(md5.Sum(c.data))

				tx, err := store.BeginTx()
				if err != nil {
					return fmt.Errorf("ingest: begin tx for chunk %d: %w", c.index, err)
				}
				isNew, block, err := tx.WriteBlock(id, uint64(len(c.data)), false)
				if err != nil {
					tx.Rollback()
					return fmt.Errorf("ingest: write_block chunk %d: %w", c.index, err)
				}
				if err := tx.Commit(); err != nil {
					return fmt.Errorf("ingest: commit chunk %d: %w", c.index, err)
				}

				if isNew {
					// The transaction already committed; a failure here
					// leaves the block reserved-but-empty on disk (§7).
					if err := writeChunkFile(root, block.Path, c.data); err != nil {
						return fmt.Errorf("ingest: write chunk %d to disk: %w", c.index, err)
					}
				}

				mu.Lock()
				collected = append(collected, indexedBlock{index: c.index, id: id})
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })
	blocks := make([]types.BlockID, len(collected))
	for i, c := range collected {
		blocks[i] = c.id
	}

	var digest [16]byte
	copy(digest[:], hasher.Sum(nil))
	return Result{Blocks: blocks, Digest: digest, Size: total}, nil
}

func writeChunkFile(root string, path []byte, data []byte) error {
	loc := blockstore.FileLocation(root, path)
	if err := os.MkdirAll(filepath.Dir(loc), 0o755); err != nil {
		return fmt.Errorf("ingest: mkdir %s: %w: %w", filepath.Dir(loc), casserr.ErrIo, err)
	}
	if err := os.WriteFile(loc, data, 0o644); err != nil {
		return fmt.Errorf("ingest: write %s: %w: %w", loc, casserr.ErrIo, err)
	}
	return nil
}
