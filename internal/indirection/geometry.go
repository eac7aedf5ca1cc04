package indirection

import "fmt"

// MipCount returns the number of mip levels that participate in paging.
// The chain continues while the previous level is at least one page wide,
// so exactly one sub-page level terminates it.
func MipCount(width, height, pageSize int) int {
	if width <= 0 || height <= 0 || pageSize <= 0 {
		return 0
	}
	count := 1
	for d := max(width, height); d >= pageSize; d /= 2 {
		count++
	}
	return count
}

// MipExtent returns the size of one dimension at the given mip level.
func MipExtent(extent, mip int) int {
	return max(1, extent>>mip)
}

// SlicesPerSide returns how many slices cover a mip dimension.
func SlicesPerSide(mipExtent, pageSize int) int {
	return max(1, mipExtent/pageSize)
}

// SliceCount returns the total number of slices over all mip levels.
// It is the size of the texture's indirection region.
func SliceCount(width, height, pageSize int) int {
	total := 0
	for mip := range MipCount(width, height, pageSize) {
		total += SlicesPerSide(MipExtent(width, mip), pageSize) *
			SlicesPerSide(MipExtent(height, mip), pageSize)
	}
	return total
}

// Geometry describes the page layout of one logical texture.
type Geometry struct {
	Width    int
	Height   int
	PageSize int
}

// MipCount returns the number of paged mip levels.
func (g Geometry) MipCount() int { return MipCount(g.Width, g.Height, g.PageSize) }

// SliceCount returns the size of the texture's indirection region.
func (g Geometry) SliceCount() int { return SliceCount(g.Width, g.Height, g.PageSize) }

// SliceGrid returns the slice grid dimensions of a mip level.
func (g Geometry) SliceGrid(mip int) (cols, rows int) {
	return SlicesPerSide(MipExtent(g.Width, mip), g.PageSize),
		SlicesPerSide(MipExtent(g.Height, mip), g.PageSize)
}

// Contains reports whether (mip, sliceX, sliceY) addresses a slice.
func (g Geometry) Contains(mip, sliceX, sliceY int) bool {
	if mip < 0 || mip >= g.MipCount() || sliceX < 0 || sliceY < 0 {
		return false
	}
	cols, rows := g.SliceGrid(mip)
	return sliceX < cols && sliceY < rows
}

// EntryIndex returns the index of a slice within the texture's region.
// Mips are laid out finest first, slices row-major inside a mip.
func (g Geometry) EntryIndex(mip, sliceX, sliceY int) (int, error) {
	if !g.Contains(mip, sliceX, sliceY) {
		return 0, fmt.Errorf("%w: mip %d slice (%d,%d) of %dx%d/%d",
			ErrOutOfRange, mip, sliceX, sliceY, g.Width, g.Height, g.PageSize)
	}
	index := 0
	for m := 0; m < mip; m++ {
		cols, rows := g.SliceGrid(m)
		index += cols * rows
	}
	cols, _ := g.SliceGrid(mip)
	return index + sliceY*cols + sliceX, nil
}
