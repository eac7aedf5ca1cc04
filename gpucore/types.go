package gpucore

import "fmt"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each adapter implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageMapWrite indicates the buffer can be mapped for writing.
	BufferUsageMapWrite BufferUsage = 1 << 1

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm TextureFormat = iota + 1

	// TextureFormatBC1RGBAUnorm is 4x4 block compressed RGB with 1-bit
	// alpha, 8 bytes per block. Used for albedo pages.
	TextureFormatBC1RGBAUnorm

	// TextureFormatBC3RGBAUnorm is 4x4 block compressed RGBA, 16 bytes per
	// block. Used for combined roughness/metalness/AO pages.
	TextureFormatBC3RGBAUnorm

	// TextureFormatBC5RGUnorm is 4x4 block compressed two-channel RG,
	// 16 bytes per block. Used for tangent-space normal pages.
	TextureFormatBC5RGUnorm
)

// String returns a human-readable name for the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "RGBA8Unorm"
	case TextureFormatBC1RGBAUnorm:
		return "BC1RGBAUnorm"
	case TextureFormatBC3RGBAUnorm:
		return "BC3RGBAUnorm"
	case TextureFormatBC5RGUnorm:
		return "BC5RGUnorm"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(f))
	}
}

// IsBlockCompressed reports whether the format stores 4x4 pixel blocks.
func (f TextureFormat) IsBlockCompressed() bool {
	switch f {
	case TextureFormatBC1RGBAUnorm, TextureFormatBC3RGBAUnorm, TextureFormatBC5RGUnorm:
		return true
	default:
		return false
	}
}

// BlockBytes returns the byte size of one 4x4 block, or 0 for
// uncompressed formats.
func (f TextureFormat) BlockBytes() int {
	switch f {
	case TextureFormatBC1RGBAUnorm:
		return 8
	case TextureFormatBC3RGBAUnorm, TextureFormatBC5RGUnorm:
		return 16
	default:
		return 0
	}
}

// ByteSize returns the number of bytes needed to store a width x height
// image in this format. Block-compressed formats round each dimension up to
// a whole block.
func (f TextureFormat) ByteSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	if f.IsBlockCompressed() {
		return ((width + 3) / 4) * ((height + 3) / 4) * f.BlockBytes()
	}
	return width * height * 4
}

// BytesPerRow returns the byte pitch of one row of pixels, or of one row of
// blocks for block-compressed formats.
func (f TextureFormat) BytesPerRow(width int) int {
	if f.IsBlockCompressed() {
		return ((width + 3) / 4) * f.BlockBytes()
	}
	return width * 4
}

// BindingKind tags the resource variant carried by a [Binding].
type BindingKind uint8

// Binding kinds.
const (
	// BindingKindBuffer binds a storage or uniform buffer range.
	BindingKindBuffer BindingKind = iota + 1

	// BindingKindTexture binds one sampled texture or an array of them.
	BindingKindTexture

	// BindingKindAccelerationStructure binds a ray-tracing acceleration
	// structure. Adapters without ray tracing reject it.
	BindingKindAccelerationStructure
)

// String returns the kind name.
func (k BindingKind) String() string {
	switch k {
	case BindingKindBuffer:
		return "buffer"
	case BindingKindTexture:
		return "texture"
	case BindingKindAccelerationStructure:
		return "acceleration-structure"
	default:
		return fmt.Sprintf("BindingKind(%d)", uint8(k))
	}
}

// Binding is one slot of a bind group. Exactly the fields selected by Kind
// are meaningful.
type Binding struct {
	// Slot is the binding index in the shader.
	Slot uint32

	// Kind selects the resource variant.
	Kind BindingKind

	// Buffer, Offset, Size and ReadOnly describe a buffer binding.
	// Size 0 binds the whole buffer from Offset.
	Buffer   BufferID
	Offset   uint64
	Size     uint64
	ReadOnly bool

	// Textures is the texture (or texture array) of a texture binding.
	Textures []TextureID

	// AccelerationStructure is the backend handle of an acceleration
	// structure binding.
	AccelerationStructure uint64
}

// BufferBinding returns a buffer binding for slot.
func BufferBinding(slot uint32, buffer BufferID, size uint64, readOnly bool) Binding {
	return Binding{Slot: slot, Kind: BindingKindBuffer, Buffer: buffer, Size: size, ReadOnly: readOnly}
}

// TextureBinding returns a texture (array) binding for slot.
func TextureBinding(slot uint32, textures ...TextureID) Binding {
	return Binding{Slot: slot, Kind: BindingKindTexture, Textures: textures}
}

// Validate checks that the fields required by Kind are set.
func (b Binding) Validate() error {
	switch b.Kind {
	case BindingKindBuffer:
		if b.Buffer == InvalidID {
			return fmt.Errorf("binding %d: buffer binding without buffer", b.Slot)
		}
	case BindingKindTexture:
		if len(b.Textures) == 0 {
			return fmt.Errorf("binding %d: texture binding without textures", b.Slot)
		}
		for i, t := range b.Textures {
			if t == InvalidID {
				return fmt.Errorf("binding %d: texture %d is invalid", b.Slot, i)
			}
		}
	case BindingKindAccelerationStructure:
		if b.AccelerationStructure == 0 {
			return fmt.Errorf("binding %d: acceleration structure binding without handle", b.Slot)
		}
	default:
		return fmt.Errorf("binding %d: unknown kind %v", b.Slot, b.Kind)
	}
	return nil
}

// TextureRegion addresses a rectangle within one mip level of a texture.
type TextureRegion struct {
	X        int
	Y        int
	Width    int
	Height   int
	MipLevel int
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Bindings are the resource bindings.
	Bindings []Binding
}
