package pager

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simdex/internal/base"
	"simdex/internal/storage"
)

const testPageSize = 512

func newTestPager(t *testing.T, store storage.Store) *Pager {
	t.Helper()
	p, err := Open(store, Config{PageSize: testPageSize})
	require.NoError(t, err)
	return p
}

func testMeta() base.Meta {
	return base.Meta{
		Magic:        base.MagicNumber,
		Version:      base.FormatVersion,
		DirCapacity:  4,
		LeafCapacity: 4,
	}
}

func TestPagerSinglePageChain(t *testing.T) {
	t.Parallel()

	p := newTestPager(t, storage.NewMemory())
	assert.True(t, p.Created())

	id, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(1), id)

	payload := []byte("leaf node payload")
	require.NoError(t, p.WriteChain(id, base.KindNode, payload))

	got, err := p.ReadChain(id, base.KindNode)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPagerChainGrowAndShrink(t *testing.T) {
	t.Parallel()

	p := newTestPager(t, storage.NewMemory())
	id, err := p.Allocate()
	require.NoError(t, err)

	per := base.PayloadSize(testPageSize)
	big := bytes.Repeat([]byte{0x5A}, 3*per+10)
	require.NoError(t, p.WriteChain(id, base.KindNode, big))
	assert.Equal(t, uint64(5), p.Stats().NumPages)

	got, err := p.ReadChain(id, base.KindNode)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	// Shrinking frees the continuation pages; the head stays put.
	small := []byte("supernode split back into a single page")
	require.NoError(t, p.WriteChain(id, base.KindNode, small))
	assert.Equal(t, uint64(3), p.Stats().FreePages)

	got, err = p.ReadChain(id, base.KindNode)
	require.NoError(t, err)
	assert.Equal(t, small, got)

	// Freed pages are reused lowest first.
	next, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(2), next)
}

func TestPagerFreeChain(t *testing.T) {
	t.Parallel()

	p := newTestPager(t, storage.NewMemory())
	id, err := p.Allocate()
	require.NoError(t, err)
	payload := make([]byte, 2*base.PayloadSize(testPageSize))
	require.NoError(t, p.WriteChain(id, base.KindNode, payload))

	require.NoError(t, p.FreeChain(id))
	assert.Equal(t, uint64(2), p.Stats().FreePages)
}

func TestPagerReadChainErrors(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	p := newTestPager(t, store)
	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.WriteChain(id, base.KindNode, []byte("payload")))

	_, err = p.ReadChain(id, base.KindFreelist)
	assert.ErrorIs(t, err, base.ErrInvalidKind)

	_, err = p.ReadChain(99, base.KindNode)
	assert.ErrorIs(t, err, base.ErrPageOutOfRange)

	// Flip a payload byte behind the pager's back.
	off := int64(id)*testPageSize + base.PageHeaderSize
	_, err = store.WriteAt([]byte{'P'}, off)
	require.NoError(t, err)
	_, err = p.ReadChain(id, base.KindNode)
	assert.ErrorIs(t, err, base.ErrInvalidChecksum)
}

func TestPagerMaxPages(t *testing.T) {
	t.Parallel()

	p, err := Open(storage.NewMemory(), Config{PageSize: testPageSize, MaxPages: 3})
	require.NoError(t, err)

	_, err = p.Allocate()
	require.NoError(t, err)
	_, err = p.Allocate()
	require.NoError(t, err)
	_, err = p.Allocate()
	assert.ErrorIs(t, err, base.ErrNoSpace)
}

func TestPagerInvalidPageSize(t *testing.T) {
	t.Parallel()

	_, err := Open(storage.NewMemory(), Config{PageSize: 100})
	assert.ErrorIs(t, err, base.ErrInvalidPageSize)
}

func TestPagerCommitReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pager.db")
	store, err := storage.NewFile(path)
	require.NoError(t, err)
	p := newTestPager(t, store)

	var ids []base.PageID
	for i := 0; i < 6; i++ {
		id, err := p.Allocate()
		require.NoError(t, err)
		require.NoError(t, p.WriteChain(id, base.KindNode, []byte{byte(i)}))
		ids = append(ids, id)
	}
	p.Free(ids[1])
	p.Free(ids[3])
	p.Free(ids[4])

	meta := testMeta()
	meta.Root = ids[0]
	meta.Count = 42
	idset := []byte("encoded id set")
	require.NoError(t, p.Commit(meta, idset))
	require.NoError(t, p.Commit(meta, idset))
	assert.Equal(t, uint64(2), p.Meta().Generation)
	require.NoError(t, p.Close())

	store, err = storage.NewFile(path)
	require.NoError(t, err)
	p, err = Open(store, Config{PageSize: base.DefaultPageSize})
	require.NoError(t, err)
	defer p.Close()

	assert.False(t, p.Created())
	assert.Equal(t, testPageSize, p.PageSize())
	m := p.Meta()
	assert.Equal(t, ids[0], m.Root)
	assert.Equal(t, uint64(42), m.Count)
	assert.Equal(t, uint64(2), m.Generation)
	assert.Equal(t, idset, p.IDSet())

	got, err := p.ReadChain(ids[5], base.KindNode)
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, got)

	// Bookkeeping chains reuse the lowest free pages; the rest of the free
	// set survives the reopen.
	next, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, ids[4], next)
}

func TestPagerTornMetaSlot(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	p := newTestPager(t, store)
	require.NoError(t, p.Commit(testMeta(), nil))
	meta := testMeta()
	meta.Count = 7
	require.NoError(t, p.Commit(meta, nil))

	// Generation 2 lives in slot 0; tearing it falls back to slot 1.
	_, err := store.WriteAt([]byte{0xFF, 0xFF}, 60)
	require.NoError(t, err)

	p, err = Open(store, Config{PageSize: testPageSize})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Meta().Generation)
	assert.Equal(t, uint64(0), p.Meta().Count)

	// Tearing the remaining slot leaves nothing to open.
	_, err = store.WriteAt([]byte{0xFF, 0xFF}, base.MetaSlotSize+60)
	require.NoError(t, err)
	_, err = Open(store, Config{PageSize: testPageSize})
	assert.ErrorIs(t, err, base.ErrInvalidChecksum)
}
