package pager

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"simdex/internal/base"
)

// Freelist tracks reusable page ids. Pages are handed out lowest id first so
// the store stays compact.
type Freelist struct {
	free *roaring64.Bitmap
}

func newFreelist() *Freelist {
	return &Freelist{free: roaring64.New()}
}

// Allocate returns a free page id, or 0 if none available.
func (f *Freelist) Allocate() base.PageID {
	if f.free.IsEmpty() {
		return 0
	}
	id := f.free.Minimum()
	f.free.Remove(id)
	return base.PageID(id)
}

// Free adds a page id to the free list
func (f *Freelist) Free(id base.PageID) {
	f.free.Add(uint64(id))
}

func (f *Freelist) Contains(id base.PageID) bool {
	return f.free.Contains(uint64(id))
}

// Len returns the number of free pages
func (f *Freelist) Len() int {
	return int(f.free.GetCardinality())
}

// Serialize encodes the free set in the portable roaring format.
func (f *Freelist) Serialize() ([]byte, error) {
	f.free.RunOptimize()
	return f.free.ToBytes()
}

// Deserialize replaces the free set with an encoded one.
func (f *Freelist) Deserialize(data []byte) error {
	bm := roaring64.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return err
	}
	f.free = bm
	return nil
}
