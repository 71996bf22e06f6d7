package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(path string) (Store, error) {
	t.Helper()
	return map[string]func(string) (Store, error){
		"memory": func(string) (Store, error) { return NewMemory(), nil },
		"file":   func(p string) (Store, error) { return NewFile(p) },
		"mmap":   func(p string) (Store, error) { return NewMMap(p) },
	}
}

func TestStoreReadWrite(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, err := open(filepath.Join(t.TempDir(), "store.db"))
			require.NoError(t, err)
			defer s.Close()

			empty, err := s.Empty()
			require.NoError(t, err)
			assert.True(t, empty)

			page := make([]byte, 4096)
			for i := range page {
				page[i] = byte(i)
			}
			_, err = s.WriteAt(page, 3*4096)
			require.NoError(t, err)

			got := make([]byte, 4096)
			_, err = s.ReadAt(got, 3*4096)
			require.NoError(t, err)
			assert.Equal(t, page, got)

			// Pages below the high-water mark read back as zeros.
			_, err = s.ReadAt(got, 0)
			require.NoError(t, err)
			assert.Equal(t, make([]byte, 4096), got)

			_, err = s.ReadAt(got, 4*4096)
			assert.Error(t, err)

			stats := s.Stats()
			assert.Equal(t, uint64(1), stats.Writes)
			assert.Equal(t, uint64(4096), stats.Written)
			assert.GreaterOrEqual(t, stats.Reads, uint64(2))
			require.NoError(t, s.Sync())
		})
	}
}

func TestStoreReopen(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"file", "mmap"} {
		open := backends(t)[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "store.db")
			s, err := open(path)
			require.NoError(t, err)

			data := []byte("simdex page payload")
			_, err = s.WriteAt(data, 512)
			require.NoError(t, err)
			require.NoError(t, s.Sync())
			require.NoError(t, s.Close())

			s, err = open(path)
			require.NoError(t, err)
			defer s.Close()

			empty, err := s.Empty()
			require.NoError(t, err)
			assert.False(t, empty)

			got := make([]byte, len(data))
			_, err = s.ReadAt(got, 512)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestMMapGrow(t *testing.T) {
	t.Parallel()

	s, err := NewMMap(filepath.Join(t.TempDir(), "grow.db"))
	require.NoError(t, err)
	defer s.Close()

	page := make([]byte, 4096)
	page[0] = 0xAB
	off := int64(growthSize + 4096)
	_, err = s.WriteAt(page, off)
	require.NoError(t, err)

	got := make([]byte, 4096)
	_, err = s.ReadAt(got, off)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), got[0])
}

func TestMemoryClosed(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	require.NoError(t, s.Close())
	_, err := s.WriteAt([]byte{1}, 0)
	assert.ErrorIs(t, err, ErrClosed)
}
