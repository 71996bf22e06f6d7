package base

import "errors"

var (
	ErrInvalidMagicNumber = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("invalid format version")
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrInvalidCapacity    = errors.New("invalid node capacity")
	ErrInvalidChecksum    = errors.New("invalid checksum")
	ErrInvalidKind        = errors.New("unexpected page kind")
	ErrInvalidLength      = errors.New("record length exceeds page chain")
	ErrNoSpace            = errors.New("page limit reached")
	ErrPageOutOfRange     = errors.New("page id beyond end of store")
)
