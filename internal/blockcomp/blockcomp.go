// Package blockcomp implements the 4x4 block compression formats used for
// virtual-texture pages: BC1 (albedo), BC3 (combined ORM) and BC5 (normal).
//
// The encoders are simple bounding-box fits. They are deterministic: the
// same input always produces byte-identical output, which the slice cache
// relies on for content-addressed files.
package blockcomp

import (
	"errors"
	"fmt"

	"github.com/gogpu/vtex/gpucore"
)

// Errors returned by Encode and Decode.
var (
	// ErrUnsupportedFormat is returned for formats that are not block compressed.
	ErrUnsupportedFormat = errors.New("blockcomp: unsupported format")

	// ErrShortBuffer is returned when the input is smaller than the extent requires.
	ErrShortBuffer = errors.New("blockcomp: buffer too small for extent")
)

// Encode compresses a tightly packed RGBA8 image of the given extent.
// Partial edge blocks replicate the last row and column.
func Encode(format gpucore.TextureFormat, pix []byte, width, height int) ([]byte, error) {
	if !format.IsBlockCompressed() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	if width <= 0 || height <= 0 || len(pix) < width*height*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrShortBuffer, len(pix), width, height)
	}

	bw, bh := (width+3)/4, (height+3)/4
	bs := format.BlockBytes()
	out := make([]byte, bw*bh*bs)

	var block [16][4]byte
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			fetchBlock(&block, pix, width, height, bx*4, by*4)
			dst := out[(by*bw+bx)*bs:]
			switch format {
			case gpucore.TextureFormatBC1RGBAUnorm:
				encodeColorBlock(dst[:8], &block)
			case gpucore.TextureFormatBC3RGBAUnorm:
				encodeChannelBlock(dst[:8], &block, 3)
				encodeColorBlock(dst[8:16], &block)
			case gpucore.TextureFormatBC5RGUnorm:
				encodeChannelBlock(dst[:8], &block, 0)
				encodeChannelBlock(dst[8:16], &block, 1)
			}
		}
	}
	return out, nil
}

// Decode expands block-compressed data into a tightly packed RGBA8 image.
// BC5 decodes to (R, G, 0, 255).
func Decode(format gpucore.TextureFormat, data []byte, width, height int) ([]byte, error) {
	if !format.IsBlockCompressed() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	if width <= 0 || height <= 0 || len(data) < format.ByteSize(width, height) {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d %v", ErrShortBuffer, len(data), width, height, format)
	}

	bw, bh := (width+3)/4, (height+3)/4
	bs := format.BlockBytes()
	out := make([]byte, width*height*4)

	var block [16][4]byte
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			src := data[(by*bw+bx)*bs:]
			switch format {
			case gpucore.TextureFormatBC1RGBAUnorm:
				decodeColorBlock(&block, src[:8], true)
			case gpucore.TextureFormatBC3RGBAUnorm:
				decodeColorBlock(&block, src[8:16], false)
				decodeChannelBlock(&block, src[:8], 3)
			case gpucore.TextureFormatBC5RGUnorm:
				decodeChannelBlock(&block, src[:8], 0)
				decodeChannelBlock(&block, src[8:16], 1)
				for i := range block {
					block[i][2] = 0
					block[i][3] = 255
				}
			}
			storeBlock(out, &block, width, height, bx*4, by*4)
		}
	}
	return out, nil
}

func fetchBlock(block *[16][4]byte, pix []byte, width, height, x0, y0 int) {
	for py := 0; py < 4; py++ {
		y := min(y0+py, height-1)
		for px := 0; px < 4; px++ {
			x := min(x0+px, width-1)
			o := (y*width + x) * 4
			copy(block[py*4+px][:], pix[o:o+4])
		}
	}
}

func storeBlock(out []byte, block *[16][4]byte, width, height, x0, y0 int) {
	for py := 0; py < 4; py++ {
		y := y0 + py
		if y >= height {
			break
		}
		for px := 0; px < 4; px++ {
			x := x0 + px
			if x >= width {
				break
			}
			o := (y*width + x) * 4
			copy(out[o:o+4], block[py*4+px][:])
		}
	}
}
