package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	}
}

func put(t *testing.T, s Store, key, data string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), key, strings.NewReader(data), int64(len(data))))
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			put(t, s, "snap/seg-000000", "hello")
			put(t, s, "snap/seg-000001", "world")
			put(t, s, "other/manifest.json", "{}")

			rc, err := s.Get(ctx, "snap/seg-000001")
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "world", string(data))

			keys, err := s.List(ctx, "snap/")
			require.NoError(t, err)
			assert.Equal(t, []string{"snap/seg-000000", "snap/seg-000001"}, keys)

			put(t, s, "snap/seg-000000", "replaced")
			rc, err = s.Get(ctx, "snap/seg-000000")
			require.NoError(t, err)
			data, _ = io.ReadAll(rc)
			_ = rc.Close()
			assert.Equal(t, "replaced", string(data))

			require.NoError(t, s.Delete(ctx, "snap/seg-000000"))
			require.NoError(t, s.Delete(ctx, "snap/seg-000000"))
			_, err = s.Get(ctx, "snap/seg-000000")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			keys, err = s.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"other/manifest.json", "snap/seg-000001"}, keys)
		})
	}
}

func TestStoreShortRead(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put(context.Background(), "k", bytes.NewReader([]byte("abc")), 10)
			require.Error(t, err)
			_, err = s.Get(context.Background(), "k")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put(ctx, "k", strings.NewReader("x"), 1)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	err := s.Put(context.Background(), "../outside", strings.NewReader("x"), 1)
	require.Error(t, err)
}

func TestLocalStoreListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	keys, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	put(t, s, "a/b", "data")

	entries, err := os.ReadDir(filepath.Join(dir, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Name())
}

func TestMemoryStoreSet(t *testing.T) {
	s := NewMemoryStore()
	put(t, s, "k", "abc")
	data, ok := s.Bytes("k")
	require.True(t, ok)
	data[0] = 'x'
	s.Set("k", data)

	rc, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "xbc", string(got))
}
