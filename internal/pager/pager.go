// Package pager maps logical records onto chains of fixed-size pages and
// owns the header page, the free page set and the page checksums.
package pager

import (
	"fmt"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"simdex/internal/base"
	"simdex/internal/storage"
)

// Config holds the parameters used when the store is empty. An existing store
// dictates its own page size.
type Config struct {
	PageSize int
	MaxPages uint64 // 0 = unlimited
}

// Stats holds page-level I/O counters
type Stats struct {
	PageReads  uint64
	PageWrites uint64
	NumPages   uint64
	FreePages  uint64
}

// Pager coordinates store, meta and freelist
type Pager struct {
	store    storage.Store
	pageSize int
	maxPages uint64
	created  bool

	meta     base.Meta
	numPages uint64 // high-water mark, page 0 included

	freelist *Freelist
	// fresh holds pages handed out by Allocate that have not been written
	// yet; their on-disk header is stale and must not be followed.
	fresh *roaring64.Bitmap

	idset         []byte
	freelistPages []base.PageID
	idsetPages    []base.PageID

	reads  atomic.Uint64
	writes atomic.Uint64
	buf    []byte
}

// Open reads the header page of store, or prepares a new one if the store is
// empty. A new pager has no meta until the first Commit.
func Open(store storage.Store, cfg Config) (*Pager, error) {
	p := &Pager{
		store:    store,
		maxPages: cfg.MaxPages,
		freelist: newFreelist(),
		fresh:    roaring64.New(),
	}

	empty, err := store.Empty()
	if err != nil {
		return nil, err
	}

	if empty {
		if !base.ValidPageSize(cfg.PageSize) {
			return nil, fmt.Errorf("%w: %d", base.ErrInvalidPageSize, cfg.PageSize)
		}
		p.created = true
		p.pageSize = cfg.PageSize
		p.numPages = 1
		p.buf = make([]byte, p.pageSize)
		return p, nil
	}

	if err := p.loadMeta(); err != nil {
		return nil, err
	}
	p.pageSize = int(p.meta.PageSize)
	p.numPages = p.meta.NumPages
	p.buf = make([]byte, p.pageSize)

	if p.meta.FreelistHead != 0 {
		data, pages, err := p.readChain(p.meta.FreelistHead, base.KindFreelist)
		if err != nil {
			return nil, fmt.Errorf("freelist: %w", err)
		}
		if err := p.freelist.Deserialize(data); err != nil {
			return nil, fmt.Errorf("freelist: %w: %v", base.ErrInvalidLength, err)
		}
		p.freelistPages = pages
	}

	if p.meta.IDSetHead != 0 {
		data, pages, err := p.readChain(p.meta.IDSetHead, base.KindIDSet)
		if err != nil {
			return nil, fmt.Errorf("id set: %w", err)
		}
		p.idset = data
		p.idsetPages = pages
	}

	return p, nil
}

// loadMeta validates both meta slots and keeps the one with the highest
// generation.
func (p *Pager) loadMeta() error {
	buf := make([]byte, 2*base.MetaSlotSize)
	if _, err := p.store.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("read header page: %w", err)
	}
	p.reads.Add(1)

	meta0 := base.DecodeMeta(buf[:base.MetaSlotSize])
	meta1 := base.DecodeMeta(buf[base.MetaSlotSize:])
	err0 := meta0.Validate()
	err1 := meta1.Validate()

	switch {
	case err0 != nil && err1 != nil:
		return fmt.Errorf("both meta slots corrupted: %w, %w", err0, err1)
	case err0 != nil:
		p.meta = meta1
	case err1 != nil:
		p.meta = meta0
	case meta0.Generation > meta1.Generation:
		p.meta = meta0
	default:
		p.meta = meta1
	}
	return nil
}

// Created reports whether the store was empty when opened.
func (p *Pager) Created() bool {
	return p.created
}

// Meta returns the last committed meta
func (p *Pager) Meta() base.Meta {
	return p.meta
}

// IDSet returns the encoded id set loaded at open, nil for a new store.
func (p *Pager) IDSet() []byte {
	return p.idset
}

func (p *Pager) PageSize() int {
	return p.pageSize
}

// Allocate returns a page id, from the freelist if possible, otherwise by
// growing the store.
func (p *Pager) Allocate() (base.PageID, error) {
	if id := p.freelist.Allocate(); id != 0 {
		p.fresh.Add(uint64(id))
		return id, nil
	}
	if p.maxPages > 0 && p.numPages >= p.maxPages {
		return 0, fmt.Errorf("%w: %d pages", base.ErrNoSpace, p.maxPages)
	}
	id := base.PageID(p.numPages)
	p.numPages++
	p.fresh.Add(uint64(id))
	return id, nil
}

// Free returns a single page to the freelist
func (p *Pager) Free(id base.PageID) {
	p.fresh.Remove(uint64(id))
	p.freelist.Free(id)
}

// FreeChain releases every page of the record starting at first.
func (p *Pager) FreeChain(first base.PageID) error {
	pages, err := p.chainPages(first)
	if err != nil {
		return err
	}
	for _, id := range pages {
		p.Free(id)
	}
	return nil
}

// ReadChain reads and verifies the record starting at first.
func (p *Pager) ReadChain(first base.PageID, kind base.PageKind) ([]byte, error) {
	data, _, err := p.readChain(first, kind)
	return data, err
}

// WriteChain stores payload as the record starting at first, reusing the
// record's existing continuation pages and growing or shrinking the chain
// as needed. The first page id never changes.
func (p *Pager) WriteChain(first base.PageID, kind base.PageKind, payload []byte) error {
	existing, err := p.chainPages(first)
	if err != nil {
		return err
	}

	need := base.PagesFor(len(payload), p.pageSize)
	pages := existing[:min(need, len(existing))]
	var allocated []base.PageID
	for len(pages) < need {
		id, err := p.Allocate()
		if err != nil {
			for _, a := range allocated {
				p.Free(a)
			}
			return err
		}
		allocated = append(allocated, id)
		pages = append(pages, id)
	}
	if len(existing) > need {
		for _, id := range existing[need:] {
			p.Free(id)
		}
	}

	return p.writePages(pages, kind, payload)
}

func (p *Pager) writePages(pages []base.PageID, kind base.PageKind, payload []byte) error {
	per := base.PayloadSize(p.pageSize)
	for i, id := range pages {
		clear(p.buf)
		h := base.PageHeader{Kind: base.KindContinuation}
		if i == 0 {
			h.Kind = kind
			h.Checksum = base.Checksum(payload)
			h.Length = uint32(len(payload))
		}
		if i+1 < len(pages) {
			h.Next = pages[i+1]
		}
		base.WritePageHeader(p.buf, h)

		if start := i * per; start < len(payload) {
			copy(p.buf[base.PageHeaderSize:], payload[start:min(start+per, len(payload))])
		}
		if err := p.writePage(id, p.buf); err != nil {
			return err
		}
		p.fresh.Remove(uint64(id))
	}
	return nil
}

func (p *Pager) readChain(first base.PageID, kind base.PageKind) ([]byte, []base.PageID, error) {
	if first == base.HeaderPageID || uint64(first) >= p.numPages {
		return nil, nil, fmt.Errorf("%w: page %d of %d", base.ErrPageOutOfRange, first, p.numPages)
	}

	page := make([]byte, p.pageSize)
	if err := p.readPage(first, page); err != nil {
		return nil, nil, err
	}
	h := base.ReadPageHeader(page)
	if h.Kind != kind {
		return nil, nil, fmt.Errorf("%w: page %d has kind %d, expected %d", base.ErrInvalidKind, first, h.Kind, kind)
	}

	per := base.PayloadSize(p.pageSize)
	length := int(h.Length)
	if uint64(length) > p.numPages*uint64(per) {
		return nil, nil, fmt.Errorf("%w: page %d claims %d bytes", base.ErrInvalidLength, first, length)
	}

	data := make([]byte, 0, length)
	data = append(data, page[base.PageHeaderSize:base.PageHeaderSize+min(per, length)]...)
	pages := []base.PageID{first}
	next := h.Next
	for len(data) < length {
		if next == base.HeaderPageID || uint64(next) >= p.numPages || uint64(len(pages)) >= p.numPages {
			return nil, nil, fmt.Errorf("%w: chain at page %d ends early", base.ErrInvalidLength, first)
		}
		if err := p.readPage(next, page); err != nil {
			return nil, nil, err
		}
		ch := base.ReadPageHeader(page)
		if ch.Kind != base.KindContinuation {
			return nil, nil, fmt.Errorf("%w: continuation page %d has kind %d", base.ErrInvalidKind, next, ch.Kind)
		}
		data = append(data, page[base.PageHeaderSize:base.PageHeaderSize+min(per, length-len(data))]...)
		pages = append(pages, next)
		next = ch.Next
	}

	if base.Checksum(data) != h.Checksum {
		return nil, nil, fmt.Errorf("%w: record at page %d", base.ErrInvalidChecksum, first)
	}

	// Trailing pages carry no payload but still belong to the record.
	rest, err := p.walk(next, len(pages))
	if err != nil {
		return nil, nil, err
	}
	return data, append(pages, rest...), nil
}

// chainPages lists the pages of the record at first by following headers.
func (p *Pager) chainPages(first base.PageID) ([]base.PageID, error) {
	if p.fresh.Contains(uint64(first)) {
		return []base.PageID{first}, nil
	}
	if first == base.HeaderPageID || uint64(first) >= p.numPages {
		return nil, fmt.Errorf("%w: page %d of %d", base.ErrPageOutOfRange, first, p.numPages)
	}
	var hdr [base.PageHeaderSize]byte
	if _, err := p.store.ReadAt(hdr[:], int64(first)*int64(p.pageSize)); err != nil {
		return nil, err
	}
	rest, err := p.walk(base.ReadPageHeader(hdr[:]).Next, 1)
	if err != nil {
		return nil, err
	}
	return append([]base.PageID{first}, rest...), nil
}

func (p *Pager) walk(next base.PageID, seen int) ([]base.PageID, error) {
	var pages []base.PageID
	var hdr [base.PageHeaderSize]byte
	for next != base.HeaderPageID {
		if uint64(next) >= p.numPages || uint64(seen+len(pages)) >= p.numPages {
			return nil, fmt.Errorf("%w: broken chain at page %d", base.ErrInvalidLength, next)
		}
		if _, err := p.store.ReadAt(hdr[:], int64(next)*int64(p.pageSize)); err != nil {
			return nil, err
		}
		pages = append(pages, next)
		next = base.ReadPageHeader(hdr[:]).Next
	}
	return pages, nil
}

// Commit persists the id set and the freelist, then writes meta into the slot
// picked by its new generation and syncs the store.
func (p *Pager) Commit(meta base.Meta, idset []byte) error {
	for _, id := range p.idsetPages {
		p.Free(id)
	}
	for _, id := range p.freelistPages {
		p.Free(id)
	}
	p.idsetPages, p.freelistPages = nil, nil

	idPages := make([]base.PageID, 0, base.PagesFor(len(idset), p.pageSize))
	for len(idPages) < cap(idPages) {
		id, err := p.Allocate()
		if err != nil {
			return err
		}
		idPages = append(idPages, id)
	}
	if err := p.writePages(idPages, base.KindIDSet, idset); err != nil {
		return err
	}

	// Taking pages for the freelist changes its encoding, so grow the chain
	// until the encoding fits. Surplus pages are written as empty padding.
	var flPages []base.PageID
	var data []byte
	for {
		var err error
		data, err = p.freelist.Serialize()
		if err != nil {
			return err
		}
		if base.PagesFor(len(data), p.pageSize) <= len(flPages) {
			break
		}
		id, err := p.Allocate()
		if err != nil {
			return err
		}
		flPages = append(flPages, id)
	}
	if err := p.writePages(flPages, base.KindFreelist, data); err != nil {
		return err
	}

	meta.PageSize = uint32(p.pageSize)
	meta.NumPages = p.numPages
	meta.FreelistHead = flPages[0]
	meta.IDSetHead = idPages[0]
	meta.Generation = p.meta.Generation + 1

	slot := make([]byte, base.MetaSlotSize)
	meta.Encode(slot)
	off := int64(meta.Generation%2) * base.MetaSlotSize
	if _, err := p.store.WriteAt(slot, off); err != nil {
		return err
	}
	p.writes.Add(1)

	if err := p.store.Sync(); err != nil {
		return err
	}

	p.meta = meta
	p.idset = idset
	p.idsetPages = idPages
	p.freelistPages = flPages
	return nil
}

func (p *Pager) readPage(id base.PageID, buf []byte) error {
	p.reads.Add(1)
	_, err := p.store.ReadAt(buf, int64(id)*int64(p.pageSize))
	return err
}

func (p *Pager) writePage(id base.PageID, buf []byte) error {
	p.writes.Add(1)
	_, err := p.store.WriteAt(buf, int64(id)*int64(p.pageSize))
	return err
}

// Stats returns page-level counters
func (p *Pager) Stats() Stats {
	return Stats{
		PageReads:  p.reads.Load(),
		PageWrites: p.writes.Load(),
		NumPages:   p.numPages,
		FreePages:  uint64(p.freelist.Len()),
	}
}

// Close closes the underlying store without committing.
func (p *Pager) Close() error {
	return p.store.Close()
}
