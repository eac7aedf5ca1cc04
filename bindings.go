package vtex

import (
	"fmt"

	"github.com/gogpu/vtex/gpucore"
)

// Binding slots of the virtual-texture bind group. The sampling shader
// declares the same slots.
const (
	BindingAlbedoAtlas uint32 = iota
	BindingNormalAtlas
	BindingCombinedAtlas
	BindingIndirection
	BindingFeedback
	BindingTextures
	BindingTextureSets
	BindingMaterials
)

// Bindings returns the current binding list. Buffers may be replaced when
// tables grow; compare BindingsGeneration to know when to rebuild.
func (m *Manager) Bindings() []gpucore.Binding {
	textures, sets, materials := m.tables.Buffers()
	return []gpucore.Binding{
		gpucore.TextureBinding(BindingAlbedoAtlas, m.atlases[TextureTypeAlbedo].Texture()),
		gpucore.TextureBinding(BindingNormalAtlas, m.atlases[TextureTypeNormal].Texture()),
		gpucore.TextureBinding(BindingCombinedAtlas, m.atlases[TextureTypeCombined].Texture()),
		gpucore.BufferBinding(BindingIndirection, m.indirection.Buffer(), m.indirection.Size(), true),
		gpucore.BufferBinding(BindingFeedback, m.feedback.Buffer(), m.feedback.Size(), false),
		gpucore.BufferBinding(BindingTextures, textures.Buffer, textures.Size, true),
		gpucore.BufferBinding(BindingTextureSets, sets.Buffer, sets.Size, true),
		gpucore.BufferBinding(BindingMaterials, materials.Buffer, materials.Size, true),
	}
}

// BindingsGeneration changes whenever a bound buffer is replaced.
func (m *Manager) BindingsGeneration() uint64 {
	return m.indirection.Generation() + m.tables.Generation()
}

// BindGroup returns a bind group for the current bindings, rebuilding it
// after a buffer was replaced. Call it after Update.
func (m *Manager) BindGroup() (gpucore.BindGroupID, error) {
	gen := m.BindingsGeneration()
	if m.bindGroup != gpucore.InvalidID && gen == m.bindGroupGen {
		return m.bindGroup, nil
	}

	bg, err := m.adapter.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:    "vtex",
		Bindings: m.Bindings(),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group: %w", ErrResourceCreation, err)
	}
	if m.bindGroup != gpucore.InvalidID {
		m.adapter.DestroyBindGroup(m.bindGroup)
	}
	m.bindGroup, m.bindGroupGen = bg, gen
	m.logger.Debug("vtex bind group rebuilt", "generation", gen)
	return bg, nil
}
