package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	buf := make([]byte, DefaultPageSize)
	want := PageHeader{
		Checksum: 0xDEADBEEFCAFEBABE,
		Next:     42,
		Length:   9000,
		Kind:     KindNode,
		Reserved: 7,
	}
	WritePageHeader(buf, want)

	assert.Equal(t, want, ReadPageHeader(buf))
}

func TestPageHeaderByteLayout(t *testing.T) {
	t.Parallel()

	buf := make([]byte, PageHeaderSize)
	WritePageHeader(buf, PageHeader{
		Checksum: 0x0123456789ABCDEF,
		Next:     0x1122334455667788,
		Length:   0x9ABCDEF0,
		Kind:     0x1234,
		Reserved: 0x5678,
	})

	expected := []byte{
		// Checksum (8 bytes, little-endian)
		0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01,
		// Next (8 bytes, little-endian)
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
		// Length (4 bytes, little-endian)
		0xF0, 0xDE, 0xBC, 0x9A,
		// Kind (2 bytes, little-endian)
		0x34, 0x12,
		// Reserved (2 bytes, little-endian)
		0x78, 0x56,
	}
	for i, b := range expected {
		assert.Equal(t, b, buf[i], "byte[%d]", i)
	}
}

func TestPagesFor(t *testing.T) {
	t.Parallel()

	per := PayloadSize(DefaultPageSize)
	assert.Equal(t, 1, PagesFor(0, DefaultPageSize))
	assert.Equal(t, 1, PagesFor(per, DefaultPageSize))
	assert.Equal(t, 2, PagesFor(per+1, DefaultPageSize))
	assert.Equal(t, 3, PagesFor(3*per, DefaultPageSize))
}

func TestValidPageSize(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidPageSize(DefaultPageSize))
	assert.True(t, ValidPageSize(MinPageSize))
	assert.False(t, ValidPageSize(MinPageSize-8))
	assert.False(t, ValidPageSize(4097))
	assert.False(t, ValidPageSize(MaxPageSize*2))
}

func newTestMeta() Meta {
	return Meta{
		Magic:        MagicNumber,
		Version:      FormatVersion,
		Variant:      3,
		Space:        1,
		PageSize:     DefaultPageSize,
		DirCapacity:  50,
		LeafCapacity: 100,
		MinFill:      400,
		KMax:         10,
		ObjectSize:   16,
		Dim:          2,
		MaxBlocks:    4,
		Root:         7,
		Height:       3,
		NumPages:     120,
		Count:        4000,
		FreelistHead: 11,
		IDSetHead:    12,
		Generation:   5,
	}
}

func TestMetaRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestMeta()
	buf := make([]byte, MetaSlotSize)
	m.Encode(buf)

	got := DecodeMeta(buf)
	require.NoError(t, got.Validate())
	assert.Equal(t, m, got)
}

func TestMetaValidate(t *testing.T) {
	t.Parallel()

	encode := func(m Meta) Meta {
		buf := make([]byte, MetaSlotSize)
		m.Encode(buf)
		return DecodeMeta(buf)
	}

	t.Run("bad magic", func(t *testing.T) {
		m := newTestMeta()
		m.Magic = 0x12345678
		got := encode(m)
		assert.ErrorIs(t, got.Validate(), ErrInvalidMagicNumber)
	})

	t.Run("bad version", func(t *testing.T) {
		m := newTestMeta()
		m.Version = 99
		got := encode(m)
		assert.ErrorIs(t, got.Validate(), ErrInvalidVersion)
	})

	t.Run("bad page size", func(t *testing.T) {
		m := newTestMeta()
		m.PageSize = 100
		got := encode(m)
		assert.ErrorIs(t, got.Validate(), ErrInvalidPageSize)
	})

	t.Run("flipped bit", func(t *testing.T) {
		m := newTestMeta()
		buf := make([]byte, MetaSlotSize)
		m.Encode(buf)
		buf[64] ^= 0x01
		got := DecodeMeta(buf)
		assert.ErrorIs(t, got.Validate(), ErrInvalidChecksum)
	})

	t.Run("capacity too small", func(t *testing.T) {
		m := newTestMeta()
		m.LeafCapacity = 1
		got := encode(m)
		assert.ErrorIs(t, got.Validate(), ErrInvalidCapacity)
	})
}
