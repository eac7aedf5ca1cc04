package vtex

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Sizes of the GPU table elements in bytes.
const (
	TextureSetGPUInfoSize = 32
	MaterialGPUInfoSize   = 36
	TextureGPUInfoSize    = 12
)

// SamplingMode selects how a texture set is mapped onto geometry.
type SamplingMode uint32

// Sampling modes.
const (
	SamplingModeUV SamplingMode = iota
	SamplingModeTriplanar
)

// ShadingMode selects the lighting model of a material.
type ShadingMode uint32

// Shading modes.
const (
	ShadingModePBR ShadingMode = iota
	ShadingModeUnlit
	ShadingModeBlend
)

// MaxMaterialLayers is the number of texture sets a material blends.
const MaxMaterialLayers = 4

// TextureSetGPUInfo is one element of the texture-set table.
//
// Layout (32 bytes):
//
//	u32 albedo, u32 normal, u32 roughnessMetalnessAO, u32 samplingMode,
//	vec3<f32> scale, u32 pad
type TextureSetGPUInfo struct {
	AlbedoIndex               uint32
	NormalIndex               uint32
	RoughnessMetalnessAOIndex uint32
	SamplingMode              SamplingMode
	Scale                     mgl32.Vec3
}

// PutGPU encodes the element into dst[:TextureSetGPUInfoSize].
func (s TextureSetGPUInfo) PutGPU(dst []byte) {
	le := binary.LittleEndian
	le.PutUint32(dst[0:], s.AlbedoIndex)
	le.PutUint32(dst[4:], s.NormalIndex)
	le.PutUint32(dst[8:], s.RoughnessMetalnessAOIndex)
	le.PutUint32(dst[12:], uint32(s.SamplingMode))
	le.PutUint32(dst[16:], math.Float32bits(s.Scale.X()))
	le.PutUint32(dst[20:], math.Float32bits(s.Scale.Y()))
	le.PutUint32(dst[24:], math.Float32bits(s.Scale.Z()))
	le.PutUint32(dst[28:], 0)
}

// MaterialGPUInfo is one element of the material table.
//
// Layout (36 bytes):
//
//	u32 textureSetIndices[4], f32 strengths[4], u32 shadingMode
type MaterialGPUInfo struct {
	TextureSetIndices [MaxMaterialLayers]uint32
	Strengths         [MaxMaterialLayers]float32
	ShadingMode       ShadingMode
}

// PutGPU encodes the element into dst[:MaterialGPUInfoSize].
func (m MaterialGPUInfo) PutGPU(dst []byte) {
	le := binary.LittleEndian
	for i, idx := range m.TextureSetIndices {
		le.PutUint32(dst[i*4:], idx)
	}
	for i, s := range m.Strengths {
		le.PutUint32(dst[16+i*4:], math.Float32bits(s))
	}
	le.PutUint32(dst[32:], uint32(m.ShadingMode))
}

// TextureGPUInfo is one element of the texture table.
//
// Layout (12 bytes):
//
//	u32 width, u32 height, u32 virtualTextureIndirectionOffset
type TextureGPUInfo struct {
	Width             uint32
	Height            uint32
	IndirectionOffset uint32
}

// PutGPU encodes the element into dst[:TextureGPUInfoSize].
func (t TextureGPUInfo) PutGPU(dst []byte) {
	le := binary.LittleEndian
	le.PutUint32(dst[0:], t.Width)
	le.PutUint32(dst[4:], t.Height)
	le.PutUint32(dst[8:], t.IndirectionOffset)
}
