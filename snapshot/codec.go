package snapshot

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

// EncodeAll and DecodeAll are safe for concurrent use, so one of each is
// shared by all transfers.
func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	return decoder
}

// compress returns the stored form of raw and whether it is compressed.
// Data that does not shrink is stored as is.
func compress(c Compression, raw []byte) ([]byte, bool, error) {
	var out []byte
	switch c {
	case CompressionNone:
		return raw, false, nil
	case CompressionZstd:
		out = zstdEncoder().EncodeAll(raw, make([]byte, 0, len(raw)/2))
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, false, err
		}
		out = buf[:n]
	default:
		return nil, false, fmt.Errorf("unknown compression %d", uint8(c))
	}
	if len(out) == 0 || len(out) >= len(raw) {
		return raw, false, nil
	}
	return out, true, nil
}

func decompress(c Compression, stored []byte, size int64) ([]byte, error) {
	switch c {
	case CompressionZstd:
		out, err := zstdDecoder().DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, err
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	}
	return nil, fmt.Errorf("segment marked compressed with %v", c)
}
