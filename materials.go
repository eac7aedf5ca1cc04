package vtex

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/vtex/gpucore"
)

// gpuElement is implemented by the fixed-layout table element types.
type gpuElement interface {
	PutGPU(dst []byte)
}

// GPUTable is an append-only array mirrored into a GPU storage buffer.
// Indices returned by Append are provisional: the GPU copy catches up on
// the next Tables.UpdateBeforeFrame.
//
// A GPUTable is only reachable inside the scoped accessors of Tables,
// which hold its lock.
type GPUTable[T gpuElement] struct {
	label     string
	stride    int
	items     []T
	dirtyFrom int

	buffer   gpucore.BufferID
	capacity int
}

// Len returns the number of elements including unflushed ones.
func (t *GPUTable[T]) Len() int { return len(t.items) }

// At returns element i.
func (t *GPUTable[T]) At(i int) T { return t.items[i] }

// Append adds v and returns its provisional index.
func (t *GPUTable[T]) Append(v T) uint32 {
	t.items = append(t.items, v)
	return uint32(len(t.items) - 1)
}

// Pending returns the number of elements not yet on the GPU.
func (t *GPUTable[T]) Pending() int { return len(t.items) - t.dirtyFrom }

func (t *GPUTable[T]) set(i int, v T) {
	t.items[i] = v
	t.dirtyFrom = min(t.dirtyFrom, i)
}

func (t *GPUTable[T]) init(adapter gpucore.GPUAdapter, label string, stride, capacity int) error {
	t.label, t.stride = label, stride
	buf, err := adapter.CreateBuffer(capacity*stride, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
	if err != nil {
		return fmt.Errorf("%w: %s table: %w", ErrResourceCreation, label, err)
	}
	t.buffer, t.capacity = buf, capacity
	return nil
}

// flush pushes dirty elements. The buffer is replaced when it is too small.
func (t *GPUTable[T]) flush(adapter gpucore.GPUAdapter) (grew bool, err error) {
	if t.dirtyFrom >= len(t.items) {
		return false, nil
	}

	from := t.dirtyFrom
	if len(t.items) > t.capacity {
		capacity := max(t.capacity*2, len(t.items))
		buf, err := adapter.CreateBuffer(capacity*t.stride, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
		if err != nil {
			return false, fmt.Errorf("%w: grow %s table to %d: %w", ErrResourceCreation, t.label, capacity, err)
		}
		adapter.DestroyBuffer(t.buffer)
		t.buffer, t.capacity = buf, capacity
		from, grew = 0, true
	}

	data := make([]byte, (len(t.items)-from)*t.stride)
	for i, v := range t.items[from:] {
		v.PutGPU(data[i*t.stride:])
	}
	adapter.WriteBuffer(t.buffer, uint64(from*t.stride), data)
	t.dirtyFrom = len(t.items)
	return grew, nil
}

func (t *GPUTable[T]) snapshot() TableBuffer {
	return TableBuffer{Buffer: t.buffer, Size: uint64(t.capacity * t.stride), Len: len(t.items)}
}

func (t *GPUTable[T]) destroy(adapter gpucore.GPUAdapter) {
	if t.buffer != gpucore.InvalidID {
		adapter.DestroyBuffer(t.buffer)
		t.buffer = gpucore.InvalidID
	}
}

// Tables owns the texture, texture-set and material tables.
//
// Loader goroutines may add texture sets and materials concurrently with
// the render thread; each table has its own lock, held for the duration of
// the scoped accessors.
type Tables struct {
	adapter gpucore.GPUAdapter
	logger  *slog.Logger

	texMu    sync.Mutex
	textures GPUTable[TextureGPUInfo]

	setMu sync.Mutex
	sets  GPUTable[TextureSetGPUInfo]

	matMu     sync.Mutex
	materials GPUTable[MaterialGPUInfo]

	genMu      sync.Mutex
	generation uint64
}

func newTables(adapter gpucore.GPUAdapter, cfg Config, logger *slog.Logger) (*Tables, error) {
	t := &Tables{adapter: adapter, logger: logger}
	if err := t.textures.init(adapter, "texture", TextureGPUInfoSize, cfg.TextureCapacity); err != nil {
		return nil, err
	}
	if err := t.sets.init(adapter, "texture set", TextureSetGPUInfoSize, cfg.TextureSetCapacity); err != nil {
		t.textures.destroy(adapter)
		return nil, err
	}
	if err := t.materials.init(adapter, "material", MaterialGPUInfoSize, cfg.MaterialCapacity); err != nil {
		t.textures.destroy(adapter)
		t.sets.destroy(adapter)
		return nil, err
	}
	return t, nil
}

// AddTexture appends a texture info and returns its id.
func (t *Tables) AddTexture(info TextureGPUInfo) (TextureID, error) {
	t.texMu.Lock()
	defer t.texMu.Unlock()

	if t.textures.Len() >= MaxTextures {
		return 0, fmt.Errorf("%w: texture table holds %d ids", ErrResourceExhausted, MaxTextures)
	}
	return TextureID(t.textures.Append(info)), nil
}

// Texture returns the texture info of id.
func (t *Tables) Texture(id TextureID) (TextureGPUInfo, bool) {
	t.texMu.Lock()
	defer t.texMu.Unlock()

	if int(id) >= t.textures.Len() {
		return TextureGPUInfo{}, false
	}
	return t.textures.At(int(id)), true
}

// TextureCount returns the number of texture ids handed out, reserved ids
// included.
func (t *Tables) TextureCount() int {
	t.texMu.Lock()
	defer t.texMu.Unlock()
	return t.textures.Len()
}

// SetIndirectionOffset records the indirection region of a texture.
func (t *Tables) SetIndirectionOffset(id TextureID, offset uint32) {
	t.texMu.Lock()
	defer t.texMu.Unlock()

	if int(id) >= t.textures.Len() {
		return
	}
	info := t.textures.At(int(id))
	info.IndirectionOffset = offset
	t.textures.set(int(id), info)
}

// WithTextureSets runs fn with the texture-set table locked.
func (t *Tables) WithTextureSets(fn func(sets *GPUTable[TextureSetGPUInfo])) {
	t.setMu.Lock()
	defer t.setMu.Unlock()
	fn(&t.sets)
}

// WithMaterials runs fn with the material table locked.
func (t *Tables) WithMaterials(fn func(materials *GPUTable[MaterialGPUInfo])) {
	t.matMu.Lock()
	defer t.matMu.Unlock()
	fn(&t.materials)
}

// AddTextureSet appends a texture set and returns its provisional index.
func (t *Tables) AddTextureSet(info TextureSetGPUInfo) uint32 {
	var idx uint32
	t.WithTextureSets(func(sets *GPUTable[TextureSetGPUInfo]) {
		idx = sets.Append(info)
	})
	return idx
}

// AddMaterial appends a material and returns its provisional index.
func (t *Tables) AddMaterial(info MaterialGPUInfo) uint32 {
	var idx uint32
	t.WithMaterials(func(materials *GPUTable[MaterialGPUInfo]) {
		idx = materials.Append(info)
	})
	return idx
}

// UpdateBeforeFrame pushes every pending element to the GPU. It must run
// before any command buffer that references indices handed out since the
// previous call. regrown reports whether a buffer was replaced, which
// invalidates bind groups built from the old one.
func (t *Tables) UpdateBeforeFrame() (regrown bool, err error) {
	flush := func(mu *sync.Mutex, f func() (bool, error)) {
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		var grew bool
		grew, err = f()
		regrown = regrown || grew
	}
	flush(&t.texMu, func() (bool, error) { return t.textures.flush(t.adapter) })
	flush(&t.setMu, func() (bool, error) { return t.sets.flush(t.adapter) })
	flush(&t.matMu, func() (bool, error) { return t.materials.flush(t.adapter) })

	if regrown {
		t.genMu.Lock()
		t.generation++
		t.genMu.Unlock()
		t.logger.Info("GPU tables regrown")
	}
	return regrown, err
}

// Generation changes whenever a table buffer is replaced.
func (t *Tables) Generation() uint64 {
	t.genMu.Lock()
	defer t.genMu.Unlock()
	return t.generation
}

// TableBuffer describes the current GPU buffer of a table.
type TableBuffer struct {
	Buffer gpucore.BufferID
	Size   uint64
	Len    int
}

// Buffers returns the texture, texture-set and material buffers.
func (t *Tables) Buffers() (textures, sets, materials TableBuffer) {
	t.texMu.Lock()
	textures = t.textures.snapshot()
	t.texMu.Unlock()

	t.setMu.Lock()
	sets = t.sets.snapshot()
	t.setMu.Unlock()

	t.matMu.Lock()
	materials = t.materials.snapshot()
	t.matMu.Unlock()
	return textures, sets, materials
}

func (t *Tables) destroy() {
	t.textures.destroy(t.adapter)
	t.sets.destroy(t.adapter)
	t.materials.destroy(t.adapter)
}
