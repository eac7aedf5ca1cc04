//go:build !nogpu

package native

import "errors"

// Errors returned by the HAL adapter.
var (
	// ErrNoHALDevice is returned when a device provider does not expose
	// HAL device and queue handles.
	ErrNoHALDevice = errors.New("native: provider has no HAL device")

	// ErrNotFound is returned when an ID does not name a live resource.
	ErrNotFound = errors.New("native: resource not found")

	// ErrUnsupportedFormat is returned for texture formats without a HAL mapping.
	ErrUnsupportedFormat = errors.New("native: unsupported texture format")

	// ErrUnsupportedBinding is returned for binding kinds the HAL cannot bind.
	ErrUnsupportedBinding = errors.New("native: unsupported binding")

	// ErrReadbackTimeout is returned when the GPU did not finish a readback copy.
	ErrReadbackTimeout = errors.New("native: readback timed out")
)
