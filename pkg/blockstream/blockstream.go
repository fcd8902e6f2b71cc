package blockstream

import (
	"fmt"
	"io"
	"os"

	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

// segment is one contiguous on-disk byte range to emit, already clipped to
// the requested range — computed once, up front, with no file I/O.
type segment struct {
	path   string
	offset uint64
	length uint64
}

// BlockStream lazily assembles an object's payload, or a byte-range slice of
// it, from its ordered block locations. It implements io.Reader. It is
// single-shot: once exhausted or failed, construct a new BlockStream rather
// than reusing this one.
type BlockStream struct {
	segments  []segment
	idx       int
	cur       *os.File
	remaining uint64
}

// New builds a BlockStream over locations (in object order) for the given
// objectSize and range request. It performs no I/O — only arithmetic over
// block sizes — so blocks entirely outside the requested range are never
// opened.
func New(locations []types.BlockLocation, objectSize uint64, req types.RangeRequest) (*BlockStream, error) {
	start, end, err := resolveRange(req, objectSize)
	if err != nil {
		return nil, err
	}
	return &BlockStream{segments: buildSegments(locations, start, end)}, nil
}

func resolveRange(req types.RangeRequest, size uint64) (start, end uint64, err error) {
	switch req.Kind {
	case types.RangeAll:
		return 0, size, nil
	case types.RangeFromStart:
		n := req.N
		if n > size {
			n = size
		}
		return 0, n, nil
	case types.RangeLast:
		n := req.N
		if n > size {
			n = size
		}
		return size - n, size, nil
	case types.RangeBetween:
		if req.Start >= size {
			return 0, 0, fmt.Errorf("blockstream: %w: start %d >= size %d", casserr.ErrInvalidRange, req.Start, size)
		}
		end := req.End + 1
		if end > size {
			end = size
		}
		return req.Start, end, nil
	default:
		return 0, 0, fmt.Errorf("blockstream: %w: unknown range kind %d", casserr.ErrInvalidRange, req.Kind)
	}
}

func buildSegments(locations []types.BlockLocation, start, end uint64) []segment {
	var segs []segment
	cum := uint64(0)
	for _, loc := range locations {
		blockStart, blockEnd := cum, cum+loc.Size
		cum = blockEnd

		if blockEnd <= start {
			continue // fully before the range: no I/O
		}
		if blockStart >= end {
			break // fully after the range: stop scanning
		}

		segStart, segEnd := start, end
		if blockStart > segStart {
			segStart = blockStart
		}
		if blockEnd < segEnd {
			segEnd = blockEnd
		}
		segs = append(segs, segment{
			path:   loc.DiskPath,
			offset: segStart - blockStart,
			length: segEnd - segStart,
		})
	}
	return segs
}

// Read implements io.Reader, opening each segment's file in turn and
// emitting only its clipped byte range.
func (s *BlockStream) Read(p []byte) (int, error) {
	for {
		if s.remaining > 0 {
			want := len(p)
			if uint64(want) > s.remaining {
				want = int(s.remaining)
			}
			n, err := s.cur.Read(p[:want])
			s.remaining -= uint64(n)
			if s.remaining == 0 {
				s.cur.Close()
				s.cur = nil
			}
			if n > 0 {
				return n, nil
			}
			if err == io.EOF {
				if s.remaining > 0 {
					return 0, fmt.Errorf("blockstream: %w: block file shorter than expected", casserr.ErrCorruption)
				}
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("blockstream: read: %w: %w", casserr.ErrIo, err)
			}
			continue
		}

		if s.idx >= len(s.segments) {
			return 0, io.EOF
		}
		seg := s.segments[s.idx]
		s.idx++
		if seg.length == 0 {
			continue
		}

		f, err := os.Open(seg.path)
		if err != nil {
			return 0, fmt.Errorf("blockstream: open %s: %w: %w", seg.path, casserr.ErrIo, err)
		}
		if seg.offset > 0 {
			if _, err := f.Seek(int64(seg.offset), io.SeekStart); err != nil {
				f.Close()
				return 0, fmt.Errorf("blockstream: seek %s: %w: %w", seg.path, casserr.ErrIo, err)
			}
		}
		s.cur = f
		s.remaining = seg.length
	}
}

// Close releases the currently open segment file, if any. Safe to call
// after the stream is exhausted.
func (s *BlockStream) Close() error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}
