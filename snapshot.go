package simdex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"simdex/blobstore"
	"simdex/internal/storage"
	"simdex/snapshot"
)

// pageImage reads the store as a flat image. Pages that were allocated but
// never written lie past the end of the backing storage and read as zeros.
type pageImage struct {
	store    storage.Store
	pageSize int64
}

func (im pageImage) ReadAt(p []byte, off int64) (int, error) {
	_, err := im.store.ReadAt(p, off)
	if err == nil {
		return len(p), nil
	}
	if !errors.Is(err, storage.ErrOutOfRange) {
		return 0, err
	}
	for done := 0; done < len(p); {
		cur := off + int64(done)
		chunk := p[done : done+min(len(p)-done, int(im.pageSize-cur%im.pageSize))]
		if _, err := im.store.ReadAt(chunk, cur); err != nil {
			if !errors.Is(err, storage.ErrOutOfRange) {
				return done, err
			}
			clear(chunk)
		}
		done += len(chunk)
	}
	return len(p), nil
}

// Snapshot syncs the tree and exports its pages to store under name. The
// tree must not be modified until Snapshot returns.
func (t *Tree[O]) Snapshot(ctx context.Context, store blobstore.Store, name string, opts ...snapshot.Option) (*snapshot.Manifest, error) {
	if err := t.Sync(); err != nil {
		return nil, err
	}
	pageSize := int64(t.pager.PageSize())
	size := int64(t.pager.Stats().NumPages) * pageSize

	h := t.Header()
	meta := map[string]string{
		"variant":   h.Variant.String(),
		"page_size": strconv.Itoa(h.PageSize),
		"count":     strconv.FormatUint(h.Count, 10),
		"k_max":     strconv.Itoa(h.KMax),
	}
	m, err := snapshot.Export(ctx, store, name, pageImage{store: t.store, pageSize: pageSize}, size, meta, opts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}
	t.log.Info("snapshot exported", "name", name, "segments", len(m.Segments),
		"bytes", m.Size, "stored", m.StoredBytes(), "compression", m.Compression.String())
	return m, nil
}

// Restore downloads snapshot name into a new file at path. Open the restored
// tree with WithPath(path). The file is removed if the restore fails.
func Restore(ctx context.Context, store blobstore.Store, name, path string, opts ...snapshot.Option) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	_, err = snapshot.Import(ctx, store, name, f, opts...)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, snapshot.ErrCorrupt) {
			return fmt.Errorf("restore %s: %w: %w", name, ErrCorruption, err)
		}
		return fmt.Errorf("restore %s: %w", name, err)
	}
	return nil
}
