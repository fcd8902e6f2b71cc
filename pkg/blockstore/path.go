package blockstore

import (
	"encoding/hex"
	"fmt"

	"github.com/threefoldtech/s3-cas/pkg/types"
)

// PathTree is the minimal capability AllocatePath needs from a metastore
// path tree: membership test and insertion, keyed by prefix bytes. Kept
// narrow so this package has no import-time dependency on pkg/metastore.
type PathTree interface {
	Contains(key []byte) (bool, error)
	Insert(key, value []byte) error
}

// AllocatePath assigns id the shortest prefix (1..BlockIDSize bytes) not
// already present in pt, inserts the (prefix -> id) entry, and returns the
// prefix. If every prefix is already taken by a different BlockID, that
// would require two distinct MD5 digests sharing all 16 bytes — an
// unreachable condition this function reports as an error rather than
// panicking, so callers can surface it through the normal error path.
func AllocatePath(pt PathTree, id types.BlockID) ([]byte, error) {
	for i := 1; i <= types.BlockIDSize; i++ {
		prefix := id[:i]
		ok, err := pt.Contains(prefix)
		if err != nil {
			return nil, fmt.Errorf("blockstore: checking path prefix: %w", err)
		}
		if !ok {
			if err := pt.Insert(prefix, id[:]); err != nil {
				return nil, fmt.Errorf("blockstore: reserving path prefix: %w", err)
			}
			out := make([]byte, i)
			copy(out, prefix)
			return out, nil
		}
	}
	return nil, fmt.Errorf("blockstore: no free path prefix for block %s: impossible state", id)
}

// FileLocation derives the on-disk path for a Block's allocated path bytes,
// relative to an fs root: <root>/<dir0>/<dir1>/<rest>. The first and second
// bytes become directory components to avoid directory fan-out; the "_"
// sentinel (not a valid hex digit) fills a missing component for short
// paths so the mapping stays injective across path lengths.
func FileLocation(root string, path []byte) string {
	h := hex.EncodeToString(path)

	dir0 := h[:min(2, len(h))]
	dir1 := "_"
	rest := "_"
	if len(h) >= 4 {
		dir1 = h[2:4]
	}
	if len(h) > 4 {
		rest = h[4:]
	}
	return root + "/" + dir0 + "/" + dir1 + "/" + rest
}
