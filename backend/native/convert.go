//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/vtex/gpucore"
)

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}

	return result
}

// convertTextureFormat converts gpucore.TextureFormat to gputypes.TextureFormat.
func convertTextureFormat(format gpucore.TextureFormat) (gputypes.TextureFormat, error) {
	switch format {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.TextureFormatBC1RGBAUnorm:
		return gputypes.TextureFormatBC1RGBAUnorm, nil
	case gpucore.TextureFormatBC3RGBAUnorm:
		return gputypes.TextureFormatBC3RGBAUnorm, nil
	case gpucore.TextureFormatBC5RGUnorm:
		return gputypes.TextureFormatBC5RGUnorm, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// bindingVisibility is the stage set of every virtual-texture binding.
// The feedback buffer is written from fragment shaders and resolve passes
// may run as compute.
const bindingVisibility = gputypes.ShaderStageFragment | gputypes.ShaderStageCompute

// convertBindingLayout returns the layout entry of a tagged binding.
func convertBindingLayout(b gpucore.Binding) (gputypes.BindGroupLayoutEntry, error) {
	entry := gputypes.BindGroupLayoutEntry{
		Binding:    b.Slot,
		Visibility: bindingVisibility,
	}

	switch b.Kind {
	case gpucore.BindingKindBuffer:
		typ := gputypes.BufferBindingTypeStorage
		if b.ReadOnly {
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entry.Buffer = &gputypes.BufferBindingLayout{Type: typ}
	case gpucore.BindingKindTexture:
		if len(b.Textures) != 1 {
			return entry, fmt.Errorf("%w: binding %d holds %d textures, binding arrays are not available",
				ErrUnsupportedBinding, b.Slot, len(b.Textures))
		}
		entry.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingKindAccelerationStructure:
		return entry, fmt.Errorf("%w: binding %d: acceleration structures", ErrUnsupportedBinding, b.Slot)
	default:
		return entry, fmt.Errorf("%w: binding %d: kind %v", ErrUnsupportedBinding, b.Slot, b.Kind)
	}
	return entry, nil
}
