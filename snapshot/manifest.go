package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"
)

// FormatVersion is the manifest format written by Export.
const FormatVersion = 1

const manifestName = "manifest.json"

var (
	ErrInvalidOption = errors.New("invalid snapshot option")
	// ErrCorrupt is returned by Import when a segment or the manifest does
	// not match what was exported.
	ErrCorrupt = errors.New("corrupt snapshot")
)

// Segment describes one uploaded slice of the source.
type Segment struct {
	Key        string `json:"key"`
	Offset     int64  `json:"offset"`
	Length     int64  `json:"length"`
	Stored     int64  `json:"stored"`
	Compressed bool   `json:"compressed,omitempty"`
	// Checksum is the xxhash64 of the uncompressed bytes.
	Checksum uint64 `json:"checksum"`
}

// Manifest describes a complete snapshot. It is written after every
// segment, so a snapshot without one is incomplete.
type Manifest struct {
	Version     int         `json:"version"`
	Name        string      `json:"name"`
	Size        int64       `json:"size"`
	SegmentSize int64       `json:"segment_size"`
	Compression Compression `json:"compression"`
	Created     time.Time   `json:"created"`
	Segments    []Segment   `json:"segments"`
	// Meta carries caller data, such as the index header.
	Meta map[string]string `json:"meta,omitempty"`
}

// StoredBytes is the total size of the uploaded segments.
func (m *Manifest) StoredBytes() int64 {
	var n int64
	for _, s := range m.Segments {
		n += s.Stored
	}
	return n
}

func manifestKey(name string) string {
	return path.Join(name, manifestName)
}

func segmentKey(name string, i int) string {
	return path.Join(name, fmt.Sprintf("seg-%06d", i))
}

func (m *Manifest) validate() error {
	if m.Version != FormatVersion {
		return fmt.Errorf("%w: manifest version %d, want %d", ErrCorrupt, m.Version, FormatVersion)
	}
	var off int64
	for i, s := range m.Segments {
		if s.Offset != off || s.Length <= 0 || s.Stored <= 0 {
			return fmt.Errorf("%w: segment %d spans [%d, +%d)", ErrCorrupt, i, s.Offset, s.Length)
		}
		off += s.Length
	}
	if off != m.Size {
		return fmt.Errorf("%w: segments cover %d bytes of %d", ErrCorrupt, off, m.Size)
	}
	return nil
}

func decodeManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
