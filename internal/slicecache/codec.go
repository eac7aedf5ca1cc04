package slicecache

import (
	"fmt"

	"github.com/gogpu/vtex/internal/blockcomp"
	"github.com/gogpu/vtex/internal/indirection"
)

// EncodeSlice cuts the window of slice (sliceX, sliceY) out of an RGBA8 mip
// level, compresses it and returns the complete file contents. Border
// pixels outside the mip wrap around to the opposite edge.
//
// The output is a pure function of its inputs.
func EncodeSlice(src []byte, mipWidth, mipHeight, sliceX, sliceY int, p Params) ([]byte, error) {
	if len(src) < mipWidth*mipHeight*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d mip", ErrInvalidSlice, len(src), mipWidth, mipHeight)
	}
	if sliceX < 0 || sliceY < 0 ||
		sliceX >= indirection.SlicesPerSide(mipWidth, p.PageSize) ||
		sliceY >= indirection.SlicesPerSide(mipHeight, p.PageSize) {
		return nil, fmt.Errorf("%w: slice (%d,%d) of %dx%d mip, page %d",
			ErrInvalidSlice, sliceX, sliceY, mipWidth, mipHeight, p.PageSize)
	}

	ww, wh := p.Window(mipWidth, mipHeight)
	window := make([]byte, ww*wh*4)
	x0 := sliceX*p.PageSize - p.Border
	y0 := sliceY*p.PageSize - p.Border
	for y := 0; y < wh; y++ {
		sy := wrap(y0+y, mipHeight)
		row := src[sy*mipWidth*4:]
		for x := 0; x < ww; x++ {
			sx := wrap(x0+x, mipWidth)
			copy(window[(y*ww+x)*4:(y*ww+x)*4+4], row[sx*4:sx*4+4])
		}
	}

	payload, err := blockcomp.Encode(p.Format, window, ww, wh)
	if err != nil {
		return nil, fmt.Errorf("slicecache: encode slice: %w", err)
	}

	out := make([]byte, 0, HeaderSize+len(payload))
	out = AppendHeader(out, Header{Hash: p.Hash(), Count: uint32(len(payload))})
	return append(out, payload...), nil
}

// DecodeSlice validates a slice file against the expected parameters and
// returns its header and payload. The payload aliases data.
func DecodeSlice(data []byte, p Params) (Header, []byte, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	if want := p.Hash(); h.Hash != want {
		return h, nil, fmt.Errorf("%w: hash %#016x, want %#016x", ErrFormatMismatch, h.Hash, want)
	}
	if int(h.Count) != len(data)-HeaderSize {
		return h, nil, fmt.Errorf("%w: header count %d, file has %d payload bytes",
			ErrFormatMismatch, h.Count, len(data)-HeaderSize)
	}
	return h, data[HeaderSize:], nil
}

func wrap(v, n int) int {
	return ((v % n) + n) % n
}
