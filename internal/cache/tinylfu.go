package cache

import (
	"github.com/dgraph-io/ristretto/v2"

	"simdex/internal/base"
)

// TinyLFU is a frequency-admitting cache. Writes are buffered by the
// underlying cache, so every mutation waits for the buffer to drain; a Put
// may still be refused by the admission policy.
type TinyLFU[V any] struct {
	c *ristretto.Cache[uint64, V]
	counters
}

func NewTinyLFU[V any](size int) (*TinyLFU[V], error) {
	t := &TinyLFU[V]{}
	c, err := ristretto.NewCache(&ristretto.Config[uint64, V]{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
		// Costs count nodes, not bytes.
		IgnoreInternalCost: true,
		OnEvict: func(*ristretto.Item[V]) {
			t.evictions.Add(1)
		},
	})
	if err != nil {
		return nil, err
	}
	t.c = c
	return t, nil
}

func (t *TinyLFU[V]) Get(id base.PageID) (V, bool) {
	v, ok := t.c.Get(uint64(id))
	t.record(ok)
	return v, ok
}

func (t *TinyLFU[V]) Put(id base.PageID, v V) {
	t.c.Set(uint64(id), v, 1)
	t.c.Wait()
}

func (t *TinyLFU[V]) Remove(id base.PageID) {
	t.c.Del(uint64(id))
	t.c.Wait()
}

func (t *TinyLFU[V]) Purge() {
	t.c.Clear()
}

func (t *TinyLFU[V]) Stats() Stats {
	return t.stats()
}

func (t *TinyLFU[V]) Close() {
	t.c.Close()
}
