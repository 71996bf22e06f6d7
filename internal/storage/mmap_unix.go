//go:build linux || darwin

package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MMap implements Store using memory-mapped I/O
type MMap struct {
	file     *os.File
	mmapData []byte
	mmapSize int64
	high     int64 // end of the furthest write
	empty    bool
	counters
}

// NewMMap creates a new memory-mapped storage backend
func NewMMap(path string) (*MMap, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	var empty bool
	size := info.Size()
	high := size
	if size == 0 {
		size = growthSize
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, err
		}
		empty = true
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &MMap{
		file:     file,
		mmapData: data,
		mmapSize: size,
		high:     high,
		empty:    empty,
	}, nil
}

// ReadAt copies out of the mapping so callers never hold references into a
// region that a later grow may unmap.
func (m *MMap) ReadAt(p []byte, off int64) (int, error) {
	if m.mmapData == nil {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > m.high {
		return 0, fmt.Errorf("%w: offset %d beyond written region %d", ErrOutOfRange, off, m.high)
	}

	m.reads.Add(1)
	n := copy(p, m.mmapData[off:])
	m.read.Add(uint64(n))
	return n, nil
}

func (m *MMap) WriteAt(p []byte, off int64) (int, error) {
	if m.mmapData == nil {
		return 0, ErrClosed
	}

	end := off + int64(len(p))
	if end > m.mmapSize {
		if err := m.grow(end); err != nil {
			return 0, err
		}
	}

	m.writes.Add(1)
	n := copy(m.mmapData[off:], p)
	m.written.Add(uint64(n))
	m.high = max(m.high, end)
	return n, nil
}

func (m *MMap) grow(minSize int64) error {
	newSize := ((minSize + growthSize - 1) / growthSize) * growthSize

	// Start async flush to reduce munmap blocking time
	_ = unix.Msync(m.mmapData, unix.MS_ASYNC)

	if err := unix.Munmap(m.mmapData); err != nil {
		return err
	}
	m.mmapData = nil

	// Grow file (sparse allocation)
	if err := m.file.Truncate(newSize); err != nil {
		return err
	}

	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}

	m.mmapData = data
	m.mmapSize = newSize
	return nil
}

// Empty returns whether this is a newly created file
func (m *MMap) Empty() (bool, error) {
	return m.empty, nil
}

// Sync flushes the memory-mapped region to disk
func (m *MMap) Sync() error {
	if m.mmapData == nil {
		return ErrClosed
	}
	if err := unix.Msync(m.mmapData, unix.MS_SYNC); err != nil {
		return err
	}
	return m.file.Sync()
}

// Stats returns I/O statistics
func (m *MMap) Stats() Stats {
	return m.stats()
}

// Close unmaps the region, trims the sparse tail and closes the file
func (m *MMap) Close() error {
	if m.mmapData != nil {
		_ = unix.Msync(m.mmapData, unix.MS_SYNC)
		if err := unix.Munmap(m.mmapData); err != nil {
			return err
		}
		m.mmapData = nil
		if err := m.file.Truncate(m.high); err != nil {
			m.file.Close()
			return err
		}
	}
	return m.file.Close()
}
