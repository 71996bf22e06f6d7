package snapshot

import "fmt"

// Compression selects how segments are compressed before upload.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

func (c Compression) MarshalText() ([]byte, error) {
	if c > CompressionLZ4 {
		return nil, fmt.Errorf("unknown compression %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Compression) UnmarshalText(b []byte) error {
	for _, v := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		if v.String() == string(b) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown compression %q", b)
}

const (
	// DefaultSegmentSize is the number of source bytes per segment.
	DefaultSegmentSize = 4 << 20
	// DefaultConcurrency bounds parallel segment transfers.
	DefaultConcurrency = 4
)

// Options configures Export and Import.
type Options struct {
	Compression Compression
	SegmentSize int64
	Concurrency int
	// BytesPerSecond limits stored bytes transferred. Zero means unlimited.
	BytesPerSecond int
}

// Option configures Options.
type Option func(*Options)

func DefaultOptions() Options {
	return Options{
		Compression: CompressionZstd,
		SegmentSize: DefaultSegmentSize,
		Concurrency: DefaultConcurrency,
	}
}

func WithCompression(c Compression) Option {
	return func(o *Options) { o.Compression = c }
}

func WithSegmentSize(n int64) Option {
	return func(o *Options) { o.SegmentSize = n }
}

func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

func WithRateLimit(bytesPerSecond int) Option {
	return func(o *Options) { o.BytesPerSecond = bytesPerSecond }
}

func buildOptions(opts []Option) (Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.Compression > CompressionLZ4:
		return o, fmt.Errorf("%w: unknown compression %d", ErrInvalidOption, uint8(o.Compression))
	case o.SegmentSize <= 0:
		return o, fmt.Errorf("%w: segment size must be positive, got %d", ErrInvalidOption, o.SegmentSize)
	case o.Concurrency <= 0:
		return o, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidOption, o.Concurrency)
	case o.BytesPerSecond < 0:
		return o, fmt.Errorf("%w: negative rate limit %d", ErrInvalidOption, o.BytesPerSecond)
	}
	return o, nil
}
