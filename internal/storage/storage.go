// Package storage provides the byte-addressed backends the pager reads and
// writes pages through.
package storage

import (
	"errors"
	"sync/atomic"
)

var (
	ErrClosed     = errors.New("storage closed")
	ErrOutOfRange = errors.New("read beyond end of storage")
)

// growthSize is the granularity the mmap backend grows by. The file is
// sparse until Close truncates it back to the written size.
const growthSize = 64 * 1024 * 1024

// Store is a byte-addressed backend. The pager only issues whole-page,
// page-aligned reads and writes.
type Store interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	// Empty reports whether the store held no data when it was opened.
	Empty() (bool, error)
	Sync() error
	Close() error
	Stats() Stats
}

// Stats holds I/O statistics
type Stats struct {
	Reads   uint64
	Writes  uint64
	Read    uint64
	Written uint64
}

type counters struct {
	reads   atomic.Uint64
	writes  atomic.Uint64
	read    atomic.Uint64
	written atomic.Uint64
}

func (c *counters) stats() Stats {
	return Stats{
		Reads:   c.reads.Load(),
		Writes:  c.writes.Load(),
		Read:    c.read.Load(),
		Written: c.written.Load(),
	}
}
