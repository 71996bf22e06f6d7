package simdex

import (
	"errors"
	"fmt"
	"syscall"

	"simdex/internal/base"
	"simdex/internal/storage"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnsupported       = errors.New("operation not supported by this tree")
	ErrCorruption        = errors.New("data corruption detected")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrClosed            = errors.New("tree is closed")
)

// translate maps internal page and storage errors onto the public sentinels.
// Errors that already carry a public sentinel pass through unchanged.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrCorruption), errors.Is(err, ErrResourceExhausted),
		errors.Is(err, ErrClosed):
		return err
	case errors.Is(err, base.ErrInvalidChecksum), errors.Is(err, base.ErrInvalidKind),
		errors.Is(err, base.ErrInvalidLength), errors.Is(err, base.ErrPageOutOfRange),
		errors.Is(err, base.ErrInvalidMagicNumber), errors.Is(err, base.ErrInvalidVersion),
		errors.Is(err, base.ErrInvalidCapacity), errors.Is(err, base.ErrInvalidPageSize),
		errors.Is(err, storage.ErrOutOfRange), errors.Is(err, errMalformedNode):
		return fmt.Errorf("%s: %w: %v", op, ErrCorruption, err)
	case errors.Is(err, base.ErrNoSpace), errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%s: %w: %v", op, ErrResourceExhausted, err)
	case errors.Is(err, storage.ErrClosed):
		return fmt.Errorf("%s: %w", op, ErrClosed)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnsupported}, args...)...)
}
