//go:build vtdebug

package vtex

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/vtex/gpucore"
)

// Debug mutators. They rewrite already published elements in place, which
// the append-only contract otherwise forbids, and are compiled only with
// the vtdebug build tag.
//
// A mutator on a published element writes the changed bytes straight into
// the GPU buffer. Elements still pending are only edited on the CPU side;
// the next UpdateBeforeFrame carries them.

// Byte offsets of the patchable fields.
const (
	setSamplingModeOffset = 12
	setScaleOffset        = 16
	matTextureSetOffset   = 0
	matStrengthOffset     = 16
	matShadingModeOffset  = 32
)

// patch stores v at i and, when i is already on the GPU, writes
// bytes [off, off+size) of its encoding.
func (t *GPUTable[T]) patch(adapter gpucore.GPUAdapter, i int, v T, off, size int) {
	t.items[i] = v
	if i >= t.dirtyFrom {
		return
	}
	buf := make([]byte, t.stride)
	v.PutGPU(buf)
	adapter.WriteBuffer(t.buffer, uint64(i*t.stride+off), buf[off:off+size])
}

func (t *Tables) patchTextureSet(idx uint32, off, size int, edit func(*TextureSetGPUInfo)) error {
	var err error
	t.WithTextureSets(func(sets *GPUTable[TextureSetGPUInfo]) {
		if int(idx) >= sets.Len() {
			err = fmt.Errorf("%w: texture set %d of %d", ErrOutOfRange, idx, sets.Len())
			return
		}
		s := sets.At(int(idx))
		edit(&s)
		sets.patch(t.adapter, int(idx), s, off, size)
	})
	return err
}

func (t *Tables) patchMaterial(idx uint32, off, size int, edit func(*MaterialGPUInfo)) error {
	var err error
	t.WithMaterials(func(materials *GPUTable[MaterialGPUInfo]) {
		if int(idx) >= materials.Len() {
			err = fmt.Errorf("%w: material %d of %d", ErrOutOfRange, idx, materials.Len())
			return
		}
		m := materials.At(int(idx))
		edit(&m)
		materials.patch(t.adapter, int(idx), m, off, size)
	})
	return err
}

// SetTextureSet replaces texture set idx.
func (t *Tables) SetTextureSet(idx uint32, info TextureSetGPUInfo) error {
	return t.patchTextureSet(idx, 0, TextureSetGPUInfoSize, func(s *TextureSetGPUInfo) { *s = info })
}

// SetTextureSetSamplingMode changes the sampling mode of texture set idx.
func (t *Tables) SetTextureSetSamplingMode(idx uint32, mode SamplingMode) error {
	return t.patchTextureSet(idx, setSamplingModeOffset, 4, func(s *TextureSetGPUInfo) { s.SamplingMode = mode })
}

// SetTextureSetScale changes the triplanar scale of texture set idx.
func (t *Tables) SetTextureSetScale(idx uint32, scale mgl32.Vec3) error {
	return t.patchTextureSet(idx, setScaleOffset, 12, func(s *TextureSetGPUInfo) { s.Scale = scale })
}

// SetMaterial replaces material idx.
func (t *Tables) SetMaterial(idx uint32, info MaterialGPUInfo) error {
	return t.patchMaterial(idx, 0, MaterialGPUInfoSize, func(m *MaterialGPUInfo) { *m = info })
}

// SetMaterialTextureSet points one layer of material idx at another texture set.
func (t *Tables) SetMaterialTextureSet(idx uint32, layer int, set uint32) error {
	if layer < 0 || layer >= MaxMaterialLayers {
		return fmt.Errorf("%w: layer %d", ErrOutOfRange, layer)
	}
	return t.patchMaterial(idx, matTextureSetOffset+layer*4, 4, func(m *MaterialGPUInfo) {
		m.TextureSetIndices[layer] = set
	})
}

// SetMaterialStrength changes one layer strength of material idx.
func (t *Tables) SetMaterialStrength(idx uint32, layer int, strength float32) error {
	if layer < 0 || layer >= MaxMaterialLayers {
		return fmt.Errorf("%w: layer %d", ErrOutOfRange, layer)
	}
	return t.patchMaterial(idx, matStrengthOffset+layer*4, 4, func(m *MaterialGPUInfo) {
		m.Strengths[layer] = strength
	})
}

// SetMaterialShadingMode changes the shading mode of material idx.
func (t *Tables) SetMaterialShadingMode(idx uint32, mode ShadingMode) error {
	return t.patchMaterial(idx, matShadingModeOffset, 4, func(m *MaterialGPUInfo) { m.ShadingMode = mode })
}
