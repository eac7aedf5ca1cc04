package slicecache

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/gogpu/vtex/gpucore"
)

// EncoderVersion is mixed into the header hash. Bump it whenever encoder
// output changes so stale caches are rejected.
const EncoderVersion = 2

// HeaderSize is the size of the slice file header in bytes.
const HeaderSize = 12

// hashNamespace scopes the name-based UUIDs used as header hashes.
var hashNamespace = uuid.MustParse("5b0f6a52-3c8e-4d71-9f2a-7e4c1b9d0a63")

// Params are the encoder parameters shared by every slice of a texture.
type Params struct {
	Format   gpucore.TextureFormat
	PageSize int
	Border   int
}

// Hash returns the 64-bit identity written into every slice header.
func (p Params) Hash() uint64 {
	name := fmt.Sprintf("vtex-slice/v%d/%s/page%d/border%d", EncoderVersion, p.Format, p.PageSize, p.Border)
	id := uuid.NewSHA1(hashNamespace, []byte(name))
	return binary.LittleEndian.Uint64(id[:8])
}

// Window returns the pixel extent of a slice taken from a mip level of the
// given size. Full pages are pageSize+2*border; sub-page mips use their own
// extent plus the border.
func (p Params) Window(mipWidth, mipHeight int) (width, height int) {
	return min(p.PageSize, mipWidth) + 2*p.Border, min(p.PageSize, mipHeight) + 2*p.Border
}

// PayloadSize returns the encoded payload length for a slice of the mip.
func (p Params) PayloadSize(mipWidth, mipHeight int) int {
	return p.Format.ByteSize(p.Window(mipWidth, mipHeight))
}

// Header is the fixed prefix of a slice file.
type Header struct {
	Hash  uint64
	Count uint32
}

// AppendHeader appends the encoded header to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, h.Hash)
	return binary.LittleEndian.AppendUint32(dst, h.Count)
}

// ParseHeader decodes the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrFormatMismatch, len(data), HeaderSize)
	}
	return Header{
		Hash:  binary.LittleEndian.Uint64(data[0:8]),
		Count: binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}
