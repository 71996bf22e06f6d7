package base

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultPageSize = 4096
	MinPageSize     = 512
	MaxPageSize     = 1 << 20

	// PageHeaderSize is Checksum(8) + Next(8) + Length(4) + Kind(2) + Reserved(2)
	PageHeaderSize = 24

	// MagicNumber for file format identification ("sidx" in hex)
	MagicNumber uint32 = 0x73696478

	FormatVersion uint16 = 1

	// HeaderPageID is the page holding both meta slots. Page id 0 doubles as
	// the "no page" marker in chain links.
	HeaderPageID PageID = 0
)

// PageKind tags the record a page chain holds.
type PageKind uint16

const (
	KindFree         PageKind = 0
	KindNode         PageKind = 1
	KindContinuation PageKind = 2
	KindFreelist     PageKind = 3
	KindIDSet        PageKind = 4
)

type PageID uint64

// PageHeader is the fixed header at the start of every non-meta page.
//
// PAGE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Header (24 bytes)                                                   │
// │ Checksum, Next, Length, Kind, Reserved                              │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Payload (PageSize - 24 bytes)                                       │
// │   first page: start of the record                                   │
// │   continuation pages: following slices of the same record           │
// └─────────────────────────────────────────────────────────────────────┘
//
// Records larger than one page (supernodes, freelist, id set) are chained
// through Next. Checksum and Length are only meaningful on the first page of
// a chain; they cover the complete record.
type PageHeader struct {
	Checksum uint64   // 8 bytes: xxhash64 of the record payload
	Next     PageID   // 8 bytes: next page of the chain, 0 = end
	Length   uint32   // 4 bytes: total record length in bytes
	Kind     PageKind // 2 bytes
	Reserved uint16   // 2 bytes
}

// ReadPageHeader decodes the header from the first PageHeaderSize bytes of buf.
func ReadPageHeader(buf []byte) PageHeader {
	return PageHeader{
		Checksum: binary.LittleEndian.Uint64(buf[0:]),
		Next:     PageID(binary.LittleEndian.Uint64(buf[8:])),
		Length:   binary.LittleEndian.Uint32(buf[16:]),
		Kind:     PageKind(binary.LittleEndian.Uint16(buf[20:])),
		Reserved: binary.LittleEndian.Uint16(buf[22:]),
	}
}

// WritePageHeader encodes h into the first PageHeaderSize bytes of buf.
func WritePageHeader(buf []byte, h PageHeader) {
	binary.LittleEndian.PutUint64(buf[0:], h.Checksum)
	binary.LittleEndian.PutUint64(buf[8:], uint64(h.Next))
	binary.LittleEndian.PutUint32(buf[16:], h.Length)
	binary.LittleEndian.PutUint16(buf[20:], uint16(h.Kind))
	binary.LittleEndian.PutUint16(buf[22:], h.Reserved)
}

// PayloadSize returns the usable bytes per page for a given page size.
func PayloadSize(pageSize int) int {
	return pageSize - PageHeaderSize
}

// PagesFor returns how many chained pages a record of n bytes needs.
func PagesFor(n, pageSize int) int {
	per := PayloadSize(pageSize)
	if n <= per {
		return 1
	}
	return (n + per - 1) / per
}

// Checksum computes the record checksum stored in the first page header.
func Checksum(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

// ValidPageSize reports whether size is usable as a page size.
func ValidPageSize(size int) bool {
	return size >= MinPageSize && size <= MaxPageSize && size%8 == 0
}
