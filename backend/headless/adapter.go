// Package headless provides a CPU-memory implementation of gpucore.GPUAdapter.
//
// Buffers and textures are plain byte slices. Writes are applied
// immediately, which trivially satisfies the single-timeline ordering the
// residency manager relies on. The adapter is used by tests to inspect the
// bytes a shader would observe, and by offline tools that drive the
// residency manager without a device.
package headless

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vtex/gpucore"
)

// Errors returned by the headless adapter.
var (
	// ErrInvalidSize is returned for non-positive buffer or texture sizes.
	ErrInvalidSize = errors.New("headless: invalid size")

	// ErrNotFound is returned when an ID does not name a live resource.
	ErrNotFound = errors.New("headless: resource not found")

	// ErrOutOfBounds is returned when a read exceeds the buffer.
	ErrOutOfBounds = errors.New("headless: access out of bounds")

	// ErrCreateFailed is returned by Create* calls while FailCreate is set.
	ErrCreateFailed = errors.New("headless: resource creation disabled")
)

type texture struct {
	width  int
	height int
	format gpucore.TextureFormat
	data   []byte
}

// Stats counts operations issued to the adapter.
type Stats struct {
	BufferWrites  int
	TextureWrites int
	BufferReads   int
	BindGroups    int
}

// Adapter implements gpucore.GPUAdapter in CPU memory.
//
// Adapter is safe for concurrent use.
type Adapter struct {
	mu sync.RWMutex

	nextID atomic.Uint64

	buffers    map[gpucore.BufferID][]byte
	textures   map[gpucore.TextureID]*texture
	bindGroups map[gpucore.BindGroupID][]gpucore.Binding

	stats Stats

	// FailCreate makes every Create* call fail. Used to exercise the
	// fatal resource-creation path.
	FailCreate bool
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

// New creates an empty headless adapter.
func New() *Adapter {
	a := &Adapter{
		buffers:    make(map[gpucore.BufferID][]byte),
		textures:   make(map[gpucore.TextureID]*texture),
		bindGroups: make(map[gpucore.BindGroupID][]gpucore.Binding),
	}
	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// CreateBuffer allocates a zeroed buffer.
func (a *Adapter) CreateBuffer(size int, _ gpucore.BufferUsage) (gpucore.BufferID, error) {
	if a.FailCreate {
		return gpucore.InvalidID, ErrCreateFailed
	}
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer size %d", ErrInvalidSize, size)
	}
	id := gpucore.BufferID(a.newID())

	a.mu.Lock()
	a.buffers[id] = make([]byte, size)
	a.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	delete(a.buffers, id)
	a.mu.Unlock()
}

// WriteBuffer copies data into the buffer. Writes past the end are
// truncated, matching a validation-less queue write.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok || offset >= uint64(len(buf)) {
		return
	}
	copy(buf[offset:], data)
	a.stats.BufferWrites++
}

// ReadBuffer returns a copy of size bytes starting at offset.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrNotFound, id)
	}
	if offset+size > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: read [%d,%d) of %d-byte buffer", ErrOutOfBounds, offset, offset+size, len(buf))
	}
	a.stats.BufferReads++
	out := make([]byte, size)
	copy(out, buf[offset:offset+size])
	return out, nil
}

// CreateTexture allocates zeroed texture storage.
func (a *Adapter) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	if a.FailCreate {
		return gpucore.InvalidID, ErrCreateFailed
	}
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %dx%d", ErrInvalidSize, width, height)
	}
	id := gpucore.TextureID(a.newID())

	a.mu.Lock()
	a.textures[id] = &texture{
		width:  width,
		height: height,
		format: format,
		data:   make([]byte, format.ByteSize(width, height)),
	}
	a.mu.Unlock()

	return id, nil
}

// DestroyTexture releases a texture.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// WriteTexture copies tightly packed rows (or block rows) into region.
// Regions that fall outside the texture are clipped.
func (a *Adapter) WriteTexture(id gpucore.TextureID, region gpucore.TextureRegion, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tex, ok := a.textures[id]
	if !ok || region.MipLevel != 0 {
		return
	}
	a.stats.TextureWrites++

	// Work in elements: pixels, or 4x4 blocks for compressed formats.
	x, y, w, h := region.X, region.Y, region.Width, region.Height
	texW, texH := tex.width, tex.height
	elem := 4
	if tex.format.IsBlockCompressed() {
		x, y = x/4, y/4
		w, h = (w+3)/4, (h+3)/4
		texW, texH = (texW+3)/4, (texH+3)/4
		elem = tex.format.BlockBytes()
	}
	srcPitch := w * elem
	dstPitch := texW * elem
	for row := 0; row < h; row++ {
		dy := y + row
		if dy < 0 || dy >= texH {
			continue
		}
		src := row * srcPitch
		if src >= len(data) {
			return
		}
		n := min(srcPitch, len(data)-src)
		cols := min(w, texW-x)
		if cols <= 0 {
			return
		}
		n = min(n, cols*elem)
		copy(tex.data[dy*dstPitch+x*elem:], data[src:src+n])
	}
}

// CreateBindGroup records the bindings after validating them.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if desc == nil {
		return gpucore.InvalidID, errors.New("headless: nil bind group descriptor")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range desc.Bindings {
		if err := b.Validate(); err != nil {
			return gpucore.InvalidID, err
		}
		switch b.Kind {
		case gpucore.BindingKindBuffer:
			if _, ok := a.buffers[b.Buffer]; !ok {
				return gpucore.InvalidID, fmt.Errorf("%w: buffer %d", ErrNotFound, b.Buffer)
			}
		case gpucore.BindingKindTexture:
			for _, t := range b.Textures {
				if _, ok := a.textures[t]; !ok {
					return gpucore.InvalidID, fmt.Errorf("%w: texture %d", ErrNotFound, t)
				}
			}
		case gpucore.BindingKindAccelerationStructure:
			// Handles are opaque here; nothing to resolve.
		}
	}

	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = append([]gpucore.Binding(nil), desc.Bindings...)
	a.stats.BindGroups++
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// BufferBytes returns a copy of a buffer's contents, or nil.
func (a *Adapter) BufferBytes(id gpucore.BufferID) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	buf, ok := a.buffers[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), buf...)
}

// TextureBytes returns a copy of a texture's contents, or nil.
func (a *Adapter) TextureBytes(id gpucore.TextureID) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tex, ok := a.textures[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), tex.data...)
}

// TextureSize returns the dimensions of a texture.
func (a *Adapter) TextureSize(id gpucore.TextureID) (width, height int, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tex, ok := a.textures[id]
	if !ok {
		return 0, 0, false
	}
	return tex.width, tex.height, true
}

// BindGroup returns the bindings recorded for id.
func (a *Adapter) BindGroup(id gpucore.BindGroupID) ([]gpucore.Binding, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.bindGroups[id]
	return b, ok
}

// Stats returns operation counters.
func (a *Adapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// ResetStats zeroes the operation counters.
func (a *Adapter) ResetStats() {
	a.mu.Lock()
	a.stats = Stats{}
	a.mu.Unlock()
}

// LiveResources returns the number of live buffers and textures.
func (a *Adapter) LiveResources() (buffers, textures int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buffers), len(a.textures)
}
