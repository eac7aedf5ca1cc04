package vtex

import (
	"errors"
	"fmt"

	"github.com/gogpu/vtex/internal/slicecache"
)

// Errors returned by the residency subsystem.
var (
	// ErrConfiguration is returned for invalid configuration and for textures
	// whose extent is not a multiple of the page size. A texture set that hits
	// it falls back to the reserved default textures.
	ErrConfiguration = errors.New("vtex: configuration error")

	// ErrCacheMiss is returned when a slice file or info.txt is missing.
	ErrCacheMiss = slicecache.ErrCacheMiss

	// ErrCacheFormatMismatch is returned when a slice file was written with
	// other encoder parameters or is malformed.
	ErrCacheFormatMismatch = slicecache.ErrFormatMismatch

	// ErrOutOfRange is returned for requests naming reserved or unknown
	// textures, mips past the chain, or slices outside the grid.
	ErrOutOfRange = errors.New("vtex: request out of range")

	// ErrResourceExhausted is returned when an atlas is full and every
	// resident slice was requested in the current frame.
	ErrResourceExhausted = errors.New("vtex: resource exhausted")

	// ErrResourceCreation is returned when a GPU buffer or texture cannot be
	// created. It is fatal for the manager.
	ErrResourceCreation = errors.New("vtex: GPU resource creation failed")
)

// RejectReason classifies a rejected page request.
type RejectReason uint8

// Reject reasons.
const (
	RejectReserved RejectReason = iota
	RejectUnknownTexture
	RejectOutOfRange
	RejectCacheMiss
	RejectFormatMismatch
	RejectExhausted

	numRejectReasons
)

// String returns the reason name.
func (r RejectReason) String() string {
	switch r {
	case RejectReserved:
		return "reserved"
	case RejectUnknownTexture:
		return "unknown-texture"
	case RejectOutOfRange:
		return "out-of-range"
	case RejectCacheMiss:
		return "cache-miss"
	case RejectFormatMismatch:
		return "format-mismatch"
	case RejectExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("RejectReason(%d)", r)
	}
}

// RequestError describes why a page request was rejected. Rejections are
// recoverable: the manager state is unchanged and the request may be
// retried in a later frame.
type RequestError struct {
	Request Request
	Reason  RejectReason
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("vtex: request %v rejected (%v): %v", e.Request, e.Reason, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func reject(r Request, reason RejectReason, err error) *RequestError {
	return &RequestError{Request: r, Reason: reason, Err: err}
}
