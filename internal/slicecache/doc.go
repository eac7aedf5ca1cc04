// Package slicecache reads and writes the on-disk slice cache.
//
// A texture's slices live in one folder, one file per slice:
//
//	mip<N>_sliceX<X>_sliceY<Y>.bin
//
// Each file is a 12-byte little-endian header followed by the
// block-compressed payload:
//
//	[8] u64 hash   identifies encoder version, format, page size and border
//	[4] u32 count  payload length in bytes
//	[count] payload
//
// A sidecar info.txt records the source extent as TOML key/value lines
// (width = N, height = N). Its presence marks the folder as complete.
package slicecache
