package slicecache

import (
	"fmt"
	"strconv"
	"strings"
)

// InfoFileName is the name of the sidecar that marks a complete folder.
const InfoFileName = "info.txt"

// SliceFileName returns the file name of a slice inside its folder.
func SliceFileName(mip, sliceX, sliceY int) string {
	return fmt.Sprintf("mip%d_sliceX%d_sliceY%d.bin", mip, sliceX, sliceY)
}

// ParseSliceFileName is the inverse of SliceFileName.
func ParseSliceFileName(name string) (mip, sliceX, sliceY int, err error) {
	invalid := fmt.Errorf("%w: file name %q", ErrInvalidSlice, name)

	rest, ok := strings.CutSuffix(name, ".bin")
	if !ok {
		return 0, 0, 0, invalid
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 3 {
		return 0, 0, 0, invalid
	}
	var vals [3]int
	for i, prefix := range []string{"mip", "sliceX", "sliceY"} {
		digits, ok := strings.CutPrefix(parts[i], prefix)
		if !ok {
			return 0, 0, 0, invalid
		}
		v, err := strconv.Atoi(digits)
		if err != nil || v < 0 {
			return 0, 0, 0, invalid
		}
		vals[i] = v
	}
	if SliceFileName(vals[0], vals[1], vals[2]) != name {
		return 0, 0, 0, invalid
	}
	return vals[0], vals[1], vals[2], nil
}
