package objectstore

import (
	"fmt"
	"strings"

	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

// ObjectEntry is one (key, Object) pair returned by ListObjects.
type ObjectEntry struct {
	Key    string
	Object types.Object
}

// ListObjects returns bucket's objects in lexicographic key order, filtered
// by query per §4.7's range-filter semantics: the effective start is the
// greater of StartAfter and ContinuationToken; if that lies beyond Prefix's
// lexicographic upper bound the result is empty; if it lies strictly below
// Prefix it is ignored in favor of scanning from Prefix; otherwise the scan
// begins at the effective start and skips keys at or below it.
func (o *ObjectStore) ListObjects(bucket string, q types.ListObjectsQuery) ([]ObjectEntry, error) {
	tree, err := o.handle.Local.BucketTree(bucket)
	if err != nil {
		return nil, err
	}

	effectiveStart := q.StartAfter
	if q.ContinuationToken > effectiveStart {
		effectiveStart = q.ContinuationToken
	}

	bound, unbounded := prefixUpperBound(q.Prefix)
	if !unbounded && effectiveStart != "" && effectiveStart >= bound {
		return nil, nil
	}

	scanFrom := q.Prefix
	skipAt := ""
	if effectiveStart != "" && effectiveStart >= q.Prefix {
		scanFrom = effectiveStart
		skipAt = effectiveStart
	}

	var entries []ObjectEntry
	err = tree.Range([]byte(scanFrom), func(key, value []byte) (bool, error) {
		k := string(key)
		if !unbounded && k >= bound {
			return false, nil
		}
		if !strings.HasPrefix(k, q.Prefix) {
			return true, nil
		}
		if skipAt != "" && k <= skipAt {
			return true, nil
		}
		obj, err := types.DecodeObject(value)
		if err != nil {
			return false, fmt.Errorf("objectstore: %w: %w", casserr.ErrCorruption, err)
		}
		entries = append(entries, ObjectEntry{Key: k, Object: obj})
		if q.Limit > 0 && len(entries) >= q.Limit {
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// prefixUpperBound returns the lexicographically smallest key strictly
// greater than every string with the given prefix, by incrementing the
// last byte not already 0xFF and truncating the rest. unbounded is true
// when no such bound exists (empty prefix, or prefix is all 0xFF bytes) —
// every key lexicographically >= prefix matches.
func prefixUpperBound(prefix string) (bound string, unbounded bool) {
	if prefix == "" {
		return "", true
	}
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xFF {
			b[i]++
			return string(b[:i+1]), false
		}
	}
	return "", true
}
