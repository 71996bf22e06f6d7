// Package snapshot copies a byte image to a blobstore.Store as compressed,
// checksummed segments and restores it.
//
// A snapshot named n consists of the blobs n/seg-000000, n/seg-000001, ...
// and n/manifest.json. The manifest is uploaded last.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"simdex/blobstore"
)

type limiter struct {
	l *rate.Limiter
}

func newLimiter(bytesPerSecond int) limiter {
	if bytesPerSecond == 0 {
		return limiter{}
	}
	return limiter{l: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)}
}

// wait blocks until n bytes may pass, in bursts no larger than the bucket.
func (l limiter) wait(ctx context.Context, n int) error {
	if l.l == nil {
		return nil
	}
	for n > 0 {
		chunk := min(n, l.l.Burst())
		if err := l.l.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Export uploads the first size bytes of src as snapshot name. meta is
// stored in the manifest unchanged.
func Export(ctx context.Context, store blobstore.Store, name string, src io.ReaderAt, size int64, meta map[string]string, opts ...Option) (*Manifest, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidOption, size)
	}

	n := int((size + o.SegmentSize - 1) / o.SegmentSize)
	m := &Manifest{
		Version:     FormatVersion,
		Name:        name,
		Size:        size,
		SegmentSize: o.SegmentSize,
		Compression: o.Compression,
		Created:     time.Now().UTC(),
		Segments:    make([]Segment, n),
		Meta:        meta,
	}
	lim := newLimiter(o.BytesPerSecond)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			off := int64(i) * o.SegmentSize
			length := min(o.SegmentSize, size-off)
			raw := make([]byte, length)
			if _, err := io.ReadFull(io.NewSectionReader(src, off, length), raw); err != nil {
				return fmt.Errorf("read segment %d: %w", i, err)
			}
			stored, compressed, err := compress(o.Compression, raw)
			if err != nil {
				return fmt.Errorf("compress segment %d: %w", i, err)
			}
			if err := lim.wait(gctx, len(stored)); err != nil {
				return err
			}
			key := segmentKey(name, i)
			if err := store.Put(gctx, key, bytes.NewReader(stored), int64(len(stored))); err != nil {
				return err
			}
			m.Segments[i] = Segment{
				Key:        key,
				Offset:     off,
				Length:     length,
				Stored:     int64(len(stored)),
				Compressed: compressed,
				Checksum:   xxhash.Sum64(raw),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, manifestKey(name), bytes.NewReader(b), int64(len(b))); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadManifest loads and validates the manifest of snapshot name.
func ReadManifest(ctx context.Context, store blobstore.Store, name string) (*Manifest, error) {
	rc, err := store.Get(ctx, manifestKey(name))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return decodeManifest(b)
}

// Import downloads snapshot name into dst, verifying every segment.
// Compression options are ignored; the manifest records them.
func Import(ctx context.Context, store blobstore.Store, name string, dst io.WriterAt, opts ...Option) (*Manifest, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	m, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}
	lim := newLimiter(o.BytesPerSecond)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i := range m.Segments {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			seg := &m.Segments[i]
			raw, err := fetch(gctx, store, m.Compression, seg, lim)
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			_, err = dst.WriteAt(raw, seg.Offset)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func fetch(ctx context.Context, store blobstore.Store, c Compression, seg *Segment, lim limiter) ([]byte, error) {
	if err := lim.wait(ctx, int(seg.Stored)); err != nil {
		return nil, err
	}
	rc, err := store.Get(ctx, seg.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	stored, err := io.ReadAll(io.LimitReader(rc, seg.Stored+1))
	if err != nil {
		return nil, err
	}
	if int64(len(stored)) != seg.Stored {
		return nil, fmt.Errorf("%w: stored %d bytes, manifest says %d", ErrCorrupt, len(stored), seg.Stored)
	}

	raw := stored
	if seg.Compressed {
		if raw, err = decompress(c, stored, seg.Length); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	if int64(len(raw)) != seg.Length {
		return nil, fmt.Errorf("%w: %d bytes, manifest says %d", ErrCorrupt, len(raw), seg.Length)
	}
	if xxhash.Sum64(raw) != seg.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return raw, nil
}
