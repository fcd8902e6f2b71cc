package blockstore

import (
	"testing"

	"github.com/threefoldtech/s3-cas/pkg/types"
)

type fakePathTree struct {
	entries map[string][]byte
}

func newFakePathTree() *fakePathTree {
	return &fakePathTree{entries: make(map[string][]byte)}
}

func (f *fakePathTree) Contains(key []byte) (bool, error) {
	_, ok := f.entries[string(key)]
	return ok, nil
}

func (f *fakePathTree) Insert(key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	f.entries[string(key)] = cp
	return nil
}

func TestAllocatePathShortestPrefix(t *testing.T) {
	pt := newFakePathTree()

	var id1 types.BlockID
	id1[0] = 0xaa

	path, err := AllocatePath(pt, id1)
	if err != nil {
		t.Fatalf("AllocatePath() error = %v", err)
	}
	if len(path) != 1 || path[0] != 0xaa {
		t.Fatalf("AllocatePath() = %x, want [aa]", path)
	}
}

func TestAllocatePathCollisionExtendsPrefix(t *testing.T) {
	pt := newFakePathTree()

	var id1, id2 types.BlockID
	id1[0] = 0xaa
	id1[1] = 0x01
	id2[0] = 0xaa
	id2[1] = 0x02

	p1, err := AllocatePath(pt, id1)
	if err != nil {
		t.Fatalf("AllocatePath(id1) error = %v", err)
	}
	if len(p1) != 1 {
		t.Fatalf("AllocatePath(id1) = %x, want length 1", p1)
	}

	p2, err := AllocatePath(pt, id2)
	if err != nil {
		t.Fatalf("AllocatePath(id2) error = %v", err)
	}
	if len(p2) != 2 {
		t.Fatalf("AllocatePath(id2) = %x, want length 2 (0xaa taken)", p2)
	}
}

func TestAllocatePathSameIDTwiceExtendsPrefix(t *testing.T) {
	pt := newFakePathTree()
	var id types.BlockID
	id[0] = 0x10

	p1, err := AllocatePath(pt, id)
	if err != nil {
		t.Fatalf("AllocatePath() error = %v", err)
	}

	// Re-running with the exact same ID after it has already been claimed
	// is a caller bug (write_block should check key_has_block first), but
	// exercising it here pins what AllocatePath does: it extends the
	// prefix since [0x10] is already taken by this same ID.
	p2, err := AllocatePath(pt, id)
	if err != nil {
		t.Fatalf("AllocatePath() second call error = %v", err)
	}
	if len(p2) <= len(p1) {
		t.Errorf("AllocatePath() second call should extend the prefix: got %x then %x", p1, p2)
	}
}

func TestFileLocation(t *testing.T) {
	tests := []struct {
		name string
		path []byte
		want string
	}{
		{name: "1 byte", path: []byte{0xab}, want: "/root/ab/_/_"},
		{name: "2 bytes", path: []byte{0xab, 0xcd}, want: "/root/ab/cd/_"},
		{name: "3 bytes", path: []byte{0xab, 0xcd, 0xef}, want: "/root/ab/cd/ef"},
		{name: "16 bytes", path: []byte{0xab, 0xcd, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, want: "/root/ab/cd/0102030405060708090a0b0c0d0e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileLocation("/root", tt.path); got != tt.want {
				t.Errorf("FileLocation() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileLocationNeverCollides(t *testing.T) {
	a := FileLocation("/root", []byte{0x01})
	b := FileLocation("/root", []byte{0x01, 0x02})
	if a == b {
		t.Errorf("FileLocation() collided for prefixes of different lengths: %q", a)
	}
}
