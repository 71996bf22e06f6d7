package base

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	// MetaSlotSize is the space reserved per meta copy in the header page.
	MetaSlotSize = 128
	// metaSize is the encoded size; the checksum covers bytes [0, metaSize-8).
	metaSize = 104
)

// Meta is the tree header. Two copies live in page 0 (slot = Generation % 2)
// so a torn write of one slot leaves the other intact.
//
// Layout (little endian):
// [Magic: 4][Version: 2][Variant: 1][Space: 1][PageSize: 4][DirCapacity: 4]
// [LeafCapacity: 4][MinFill: 2][KMax: 2][ObjectSize: 4][Dim: 4][MaxBlocks: 2]
// [Flags: 2][Reserved: 4][Root: 8][Height: 4][Reserved: 4][NumPages: 8]
// [Count: 8][FreelistHead: 8][IDSetHead: 8][Generation: 8][Checksum: 8]
// Total: 104 bytes
type Meta struct {
	Magic        uint32
	Version      uint16
	Variant      uint8
	Space        uint8
	PageSize     uint32
	DirCapacity  uint32
	LeafCapacity uint32
	MinFill      uint16 // per mille
	KMax         uint16
	ObjectSize   uint32
	Dim          uint32
	MaxBlocks    uint16
	Flags        uint16
	Root         PageID
	Height       uint32
	NumPages     uint64
	Count        uint64
	FreelistHead PageID
	IDSetHead    PageID
	Generation   uint64
	Checksum     uint64
}

// Encode writes the meta into buf (at least MetaSlotSize bytes) and stamps
// the checksum.
func (m *Meta) Encode(buf []byte) {
	clear(buf[:MetaSlotSize])
	le := binary.LittleEndian
	le.PutUint32(buf[0:], m.Magic)
	le.PutUint16(buf[4:], m.Version)
	buf[6] = m.Variant
	buf[7] = m.Space
	le.PutUint32(buf[8:], m.PageSize)
	le.PutUint32(buf[12:], m.DirCapacity)
	le.PutUint32(buf[16:], m.LeafCapacity)
	le.PutUint16(buf[20:], m.MinFill)
	le.PutUint16(buf[22:], m.KMax)
	le.PutUint32(buf[24:], m.ObjectSize)
	le.PutUint32(buf[28:], m.Dim)
	le.PutUint16(buf[32:], m.MaxBlocks)
	le.PutUint16(buf[34:], m.Flags)
	le.PutUint64(buf[40:], uint64(m.Root))
	le.PutUint32(buf[48:], m.Height)
	le.PutUint64(buf[56:], m.NumPages)
	le.PutUint64(buf[64:], m.Count)
	le.PutUint64(buf[72:], uint64(m.FreelistHead))
	le.PutUint64(buf[80:], uint64(m.IDSetHead))
	le.PutUint64(buf[88:], m.Generation)
	m.Checksum = xxhash.Sum64(buf[:metaSize-8])
	le.PutUint64(buf[96:], m.Checksum)
}

// DecodeMeta reads a meta copy from buf without validating it.
func DecodeMeta(buf []byte) Meta {
	le := binary.LittleEndian
	return Meta{
		Magic:        le.Uint32(buf[0:]),
		Version:      le.Uint16(buf[4:]),
		Variant:      buf[6],
		Space:        buf[7],
		PageSize:     le.Uint32(buf[8:]),
		DirCapacity:  le.Uint32(buf[12:]),
		LeafCapacity: le.Uint32(buf[16:]),
		MinFill:      le.Uint16(buf[20:]),
		KMax:         le.Uint16(buf[22:]),
		ObjectSize:   le.Uint32(buf[24:]),
		Dim:          le.Uint32(buf[28:]),
		MaxBlocks:    le.Uint16(buf[32:]),
		Flags:        le.Uint16(buf[34:]),
		Root:         PageID(le.Uint64(buf[40:])),
		Height:       le.Uint32(buf[48:]),
		NumPages:     le.Uint64(buf[56:]),
		Count:        le.Uint64(buf[64:]),
		FreelistHead: PageID(le.Uint64(buf[72:])),
		IDSetHead:    PageID(le.Uint64(buf[80:])),
		Generation:   le.Uint64(buf[88:]),
		Checksum:     le.Uint64(buf[96:]),
	}
}

// CalculateChecksum recomputes the checksum over the encoded fields.
func (m *Meta) CalculateChecksum() uint64 {
	var buf [MetaSlotSize]byte
	c := *m
	c.Encode(buf[:])
	return c.Checksum
}

// Validate checks if the metadata is valid
func (m *Meta) Validate() error {
	if m.Magic != MagicNumber {
		return ErrInvalidMagicNumber
	}
	if m.Version != FormatVersion {
		return ErrInvalidVersion
	}
	if !ValidPageSize(int(m.PageSize)) {
		return ErrInvalidPageSize
	}
	if m.Checksum != m.CalculateChecksum() {
		return ErrInvalidChecksum
	}
	if m.DirCapacity < 2 || m.LeafCapacity < 2 {
		return ErrInvalidCapacity
	}
	return nil
}
