package slicecache

import "errors"

// Errors returned by the slice cache.
var (
	// ErrCacheMiss is returned when a slice file or info.txt does not exist.
	ErrCacheMiss = errors.New("slicecache: cache miss")

	// ErrFormatMismatch is returned for files written with different
	// encoder parameters or with a corrupt header.
	ErrFormatMismatch = errors.New("slicecache: format mismatch")

	// ErrInvalidSlice is returned when slice coordinates fall outside the mip.
	ErrInvalidSlice = errors.New("slicecache: invalid slice")

	// ErrMisaligned is returned when a source extent is not a multiple of
	// the page size.
	ErrMisaligned = errors.New("slicecache: extent not a multiple of page size")
)
