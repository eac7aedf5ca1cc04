package vtex

import (
	"fmt"

	"github.com/gogpu/vtex/gpucore"
	"github.com/gogpu/vtex/internal/feedback"
	"github.com/gogpu/vtex/internal/indirection"
	"github.com/gogpu/vtex/internal/slicecache"
)

// Request identifies one slice: (texture id, mip, slice x, slice y).
// It is also the record format of the feedback buffer.
type Request = feedback.Record

// TextureID indexes the TextureGPUInfo table. Ids below
// ReservedTextureCount are the default textures.
type TextureID uint16

// Reserved default textures.
const (
	DefaultAlbedoTexture TextureID = iota
	DefaultNormalTexture
	DefaultORMTexture
)

// TextureType selects the atlas, and therefore the compression format, a
// texture streams into.
type TextureType uint8

// Texture types.
const (
	// TextureTypeAlbedo is color data, compressed as BC1.
	TextureTypeAlbedo TextureType = iota
	// TextureTypeNormal is a tangent-space normal map, compressed as BC5.
	TextureTypeNormal
	// TextureTypeCombined is packed roughness/metalness/AO, compressed as BC3.
	TextureTypeCombined

	numTextureTypes
)

// String returns the type name. It is also the sub-folder name used in
// the slice cache.
func (t TextureType) String() string {
	switch t {
	case TextureTypeAlbedo:
		return "albedo"
	case TextureTypeNormal:
		return "normal"
	case TextureTypeCombined:
		return "combined"
	default:
		return fmt.Sprintf("TextureType(%d)", t)
	}
}

// Format returns the block-compression format of the type.
func (t TextureType) Format() gpucore.TextureFormat {
	switch t {
	case TextureTypeAlbedo:
		return gpucore.TextureFormatBC1RGBAUnorm
	case TextureTypeNormal:
		return gpucore.TextureFormatBC5RGUnorm
	case TextureTypeCombined:
		return gpucore.TextureFormatBC3RGBAUnorm
	default:
		return 0
	}
}

func (t TextureType) valid() bool { return t < numTextureTypes }

// defaultTexture returns the reserved texture standing in for t.
func (t TextureType) defaultTexture() TextureID {
	switch t {
	case TextureTypeNormal:
		return DefaultNormalTexture
	case TextureTypeCombined:
		return DefaultORMTexture
	default:
		return DefaultAlbedoTexture
	}
}

// TextureDesc describes a texture to register.
type TextureDesc struct {
	Width  int
	Height int
	Type   TextureType
	// Folder holds the texture's slice files and info.txt.
	Folder string
}

// LogicalTexture is a registered virtual texture.
type LogicalTexture struct {
	ID     TextureID
	Width  int
	Height int
	Type   TextureType
	Folder string

	// IndirectionOffset is the first entry of the texture's indirection
	// region. It stays indirection.UnallocatedOffset until the first slice
	// upload and is assigned exactly once.
	IndirectionOffset uint32

	geometry indirection.Geometry
	params   slicecache.Params
}

// Format returns the compression format of the texture's slices.
func (t *LogicalTexture) Format() gpucore.TextureFormat { return t.Type.Format() }

// MipCount returns the number of paged mip levels.
func (t *LogicalTexture) MipCount() int { return t.geometry.MipCount() }

// SliceCount returns the size of the texture's indirection region.
func (t *LogicalTexture) SliceCount() int { return t.geometry.SliceCount() }

// Resident reports whether the texture owns an indirection region.
func (t *LogicalTexture) Resident() bool {
	return t.IndirectionOffset != indirection.UnallocatedOffset
}

// ComputeMipCount returns the number of paged mip levels of a
// width x height texture.
func ComputeMipCount(width, height, pageSize int) int {
	return indirection.MipCount(width, height, pageSize)
}

// ComputeSliceCount returns the number of slices over all paged mip levels.
func ComputeSliceCount(width, height, pageSize int) int {
	return indirection.SliceCount(width, height, pageSize)
}
