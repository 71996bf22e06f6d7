package storage

import (
	"fmt"
	"os"
)

// File implements Store with positional reads and writes on an os.File
type File struct {
	file  *os.File
	empty bool
	counters
}

// NewFile opens or creates the file at path
func NewFile(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &File{file: file, empty: info.Size() == 0}, nil
}

// ReadAt reads len(p) bytes at off. A short read is an error.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.reads.Add(1)
	n, err := f.file.ReadAt(p, off)
	f.read.Add(uint64(n))
	if n != len(p) {
		if err == nil {
			err = fmt.Errorf("short read: got %d bytes, expected %d", n, len(p))
		}
		return n, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return n, nil
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	f.writes.Add(1)
	n, err := f.file.WriteAt(p, off)
	defer f.written.Add(uint64(n))
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, fmt.Errorf("short write: wrote %d bytes, expected %d", n, len(p))
	}
	return n, nil
}

// Empty returns whether the file was empty when opened
func (f *File) Empty() (bool, error) {
	return f.empty, nil
}

// Sync flushes buffered writes to disk
func (f *File) Sync() error {
	return f.file.Sync()
}

// Close closes the file
func (f *File) Close() error {
	return f.file.Close()
}

// Stats returns I/O statistics
func (f *File) Stats() Stats {
	return f.stats()
}
