package storage

import (
	"fmt"
	"sync"
)

// Memory keeps all pages in a growable byte slice. Used for in-memory trees
// and tests.
type Memory struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
	counters
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, off, len(p), len(m.data))
	}
	m.reads.Add(1)
	n := copy(p, m.data[off:])
	m.read.Add(uint64(n))
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		if end <= int64(cap(m.data)) {
			m.data = m.data[:end]
		} else {
			grown := make([]byte, end, max(end, 2*int64(cap(m.data))))
			copy(grown, m.data)
			m.data = grown
		}
	}
	m.writes.Add(1)
	n := copy(m.data[off:], p)
	m.written.Add(uint64(n))
	return n, nil
}

func (m *Memory) Empty() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data) == 0, nil
}

// Size returns the number of bytes written so far.
func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

func (m *Memory) Sync() error {
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

func (m *Memory) Stats() Stats {
	return m.stats()
}
