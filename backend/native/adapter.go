//go:build !nogpu

package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/gpucore"
)

// defaultReadbackTimeout bounds the wait for a readback copy.
const defaultReadbackTimeout = 5 * time.Second

// copyAlignment is the granularity of buffer-to-buffer copies.
const copyAlignment = 4

type buffer struct {
	buf  hal.Buffer
	size uint64
}

type texture struct {
	tex    hal.Texture
	view   hal.TextureView
	width  int
	height int
	format gpucore.TextureFormat
}

type bindGroup struct {
	group  hal.BindGroup
	layout hal.BindGroupLayout
}

// HALAdapter implements gpucore.GPUAdapter using gogpu/wgpu/hal directly.
//
// Thread Safety: HALAdapter is safe for concurrent use from multiple goroutines.
// Resource maps are protected by a mutex; HAL calls happen outside it.
type HALAdapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	logger *slog.Logger

	readbackTimeout time.Duration

	// ID generation
	nextID atomic.Uint64

	buffers    map[gpucore.BufferID]*buffer
	textures   map[gpucore.TextureID]*texture
	bindGroups map[gpucore.BindGroupID]*bindGroup
}

var _ gpucore.GPUAdapter = (*HALAdapter)(nil)

// NewHALAdapter creates a HALAdapter wrapping the given device and queue.
// A nil logger uses the vtex package logger.
func NewHALAdapter(device hal.Device, queue hal.Queue, logger *slog.Logger) *HALAdapter {
	if logger == nil {
		logger = vtex.Logger()
	}
	a := &HALAdapter{
		device:          device,
		queue:           queue,
		logger:          logger,
		readbackTimeout: defaultReadbackTimeout,
		buffers:         make(map[gpucore.BufferID]*buffer),
		textures:        make(map[gpucore.TextureID]*texture),
		bindGroups:      make(map[gpucore.BindGroupID]*bindGroup),
	}

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

// halProvider is implemented by device providers backed by gogpu/wgpu.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewHALAdapterFromProvider creates a HALAdapter sharing the device of a
// host application. The provider must expose HalDevice() and HalQueue()
// returning hal.Device and hal.Queue.
func NewHALAdapterFromProvider(provider gpucontext.DeviceProvider, logger *slog.Logger) (*HALAdapter, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %T lacks HalDevice/HalQueue", ErrNoHALDevice, provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALDevice)
	}

	a := NewHALAdapter(device, queue, logger)
	info := provider.AdapterInfo()
	a.logger.Info("native adapter attached", "gpu", info.Name, "type", info.Type)
	return a, nil
}

// newID generates a unique resource ID.
func (a *HALAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Device returns the HAL device.
func (a *HALAdapter) Device() hal.Device { return a.device }

// === Buffer Management ===

// CreateBuffer creates a GPU buffer. Every buffer is also a copy source so
// that ReadBuffer works on it.
func (a *HALAdapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer size %d must be positive", size)
	}

	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vtex_buffer",
		Size:  alignUp(uint64(size)),
		Usage: convertBufferUsage(usage) | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer: %w", err)
	}

	id := gpucore.BufferID(a.newID())

	a.mu.Lock()
	a.buffers[id] = &buffer{buf: buf, size: uint64(size)}
	a.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (a *HALAdapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(b.buf)
	}
}

// WriteBuffer queues a write of data at offset.
func (a *HALAdapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()

	if !ok || len(data) == 0 {
		return
	}
	if err := a.queue.WriteBuffer(b.buf, offset, data); err != nil {
		a.logger.Warn("native: buffer write failed", "buffer", id, "offset", offset, "bytes", len(data), "err", err)
	}
}

// ReadBuffer copies size bytes at offset into a staging buffer, waits for
// the GPU and returns them.
func (a *HALAdapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrNotFound, id)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("native: read [%d,%d) of %d-byte buffer", offset, offset+size, b.size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	// Copies work on 4-byte granules.
	start := offset &^ (copyAlignment - 1)
	length := alignUp(offset+size) - start

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vtex_readback",
		Size:  length,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "vtex_readback"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	defer encoder.Destroy()
	if err := encoder.BeginEncoding("vtex_readback"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
		{SrcOffset: start, DstOffset: 0, Size: length},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	index, err := a.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return nil, fmt.Errorf("native: submit readback: %w", err)
	}
	if err := a.waitSubmission(index); err != nil {
		return nil, err
	}

	mapping, err := a.device.MapBuffer(staging, 0, length)
	if err != nil {
		return nil, fmt.Errorf("native: map staging buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), length)[offset-start:])
	if err := a.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("native: unmap staging buffer: %w", err)
	}
	return out, nil
}

// waitSubmission blocks until the queue reports index as completed.
func (a *HALAdapter) waitSubmission(index uint64) error {
	deadline := time.Now().Add(a.readbackTimeout)
	for a.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: submission %d", ErrReadbackTimeout, index)
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// === Texture Management ===

// CreateTexture creates a sampled 2D texture and its view.
func (a *HALAdapter) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("native: texture %dx%d must be positive", width, height)
	}
	halFormat, err := convertTextureFormat(format)
	if err != nil {
		return gpucore.InvalidID, err
	}

	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "vtex_" + format.String(),
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}, //nolint:gosec // validated positive
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        halFormat,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture: %w", err)
	}

	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "vtex_" + format.String() + "_view",
		Format:        halFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("native: create texture view: %w", err)
	}

	id := gpucore.TextureID(a.newID())

	a.mu.Lock()
	a.textures[id] = &texture{tex: tex, view: view, width: width, height: height, format: format}
	a.mu.Unlock()

	return id, nil
}

// DestroyTexture releases a texture and its view.
func (a *HALAdapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	t, ok := a.textures[id]
	delete(a.textures, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.tex)
	}
}

// WriteTexture queues a write of tightly packed rows (or block rows) into
// region.
func (a *HALAdapter) WriteTexture(id gpucore.TextureID, region gpucore.TextureRegion, data []byte) {
	a.mu.RLock()
	t, ok := a.textures[id]
	a.mu.RUnlock()

	if !ok || len(data) == 0 || region.Width <= 0 || region.Height <= 0 {
		return
	}

	if region.X < 0 || region.Y < 0 || region.X+region.Width > t.width || region.Y+region.Height > t.height {
		a.logger.Warn("native: texture write outside texture", "texture", id, "region", region,
			"width", t.width, "height", t.height)
		return
	}

	rows := region.Height
	if t.format.IsBlockCompressed() {
		rows = (region.Height + 3) / 4
	}
	//nolint:gosec // region and layout values are bounded by the texture extent
	var (
		origin = hal.Origin3D{X: uint32(region.X), Y: uint32(region.Y)}
		layout = hal.ImageDataLayout{
			BytesPerRow:  uint32(t.format.BytesPerRow(region.Width)),
			RowsPerImage: uint32(rows),
		}
		extent = hal.Extent3D{Width: uint32(region.Width), Height: uint32(region.Height), DepthOrArrayLayers: 1}
		mip    = uint32(region.MipLevel)
	)
	err := a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: mip, Origin: origin, Aspect: gputypes.TextureAspectAll},
		data, &layout, &extent)
	if err != nil {
		a.logger.Warn("native: texture write failed", "texture", id, "region", region, "err", err)
	}
}

// === Bindings ===

// CreateBindGroup creates a bind group layout matching the bindings and a
// bind group over it.
func (a *HALAdapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: nil bind group descriptor")
	}

	layoutEntries := make([]gputypes.BindGroupLayoutEntry, len(desc.Bindings))
	entries := make([]gputypes.BindGroupEntry, len(desc.Bindings))

	a.mu.RLock()
	for i, b := range desc.Bindings {
		if err := b.Validate(); err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, err
		}
		le, err := convertBindingLayout(b)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, err
		}
		e, err := a.bindGroupEntry(b)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, err
		}
		layoutEntries[i], entries[i] = le, e
	}
	a.mu.RUnlock()

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_layout",
		Entries: layoutEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout: %w", err)
	}
	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		a.device.DestroyBindGroupLayout(layout)
		return gpucore.InvalidID, fmt.Errorf("native: create bind group: %w", err)
	}

	id := gpucore.BindGroupID(a.newID())

	a.mu.Lock()
	a.bindGroups[id] = &bindGroup{group: group, layout: layout}
	a.mu.Unlock()

	return id, nil
}

// bindGroupEntry resolves the resource of b. Must be called with mu held.
func (a *HALAdapter) bindGroupEntry(b gpucore.Binding) (gputypes.BindGroupEntry, error) {
	entry := gputypes.BindGroupEntry{Binding: b.Slot}
	switch b.Kind {
	case gpucore.BindingKindBuffer:
		buf, ok := a.buffers[b.Buffer]
		if !ok {
			return entry, fmt.Errorf("%w: buffer %d", ErrNotFound, b.Buffer)
		}
		size := b.Size
		if size == 0 {
			size = buf.size - b.Offset
		}
		entry.Resource = gputypes.BufferBinding{Buffer: buf.buf.NativeHandle(), Offset: b.Offset, Size: size}
	case gpucore.BindingKindTexture:
		t, ok := a.textures[b.Textures[0]]
		if !ok {
			return entry, fmt.Errorf("%w: texture %d", ErrNotFound, b.Textures[0])
		}
		entry.Resource = gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}
	default:
		return entry, fmt.Errorf("%w: binding %d: kind %v", ErrUnsupportedBinding, b.Slot, b.Kind)
	}
	return entry, nil
}

// BindGroup returns the HAL bind group and its layout, for pipeline
// creation and SetBindGroup calls.
func (a *HALAdapter) BindGroup(id gpucore.BindGroupID) (hal.BindGroup, hal.BindGroupLayout, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	bg, ok := a.bindGroups[id]
	if !ok {
		return nil, nil, false
	}
	return bg.group, bg.layout, true
}

// DestroyBindGroup releases a bind group and its layout.
func (a *HALAdapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	bg, ok := a.bindGroups[id]
	delete(a.bindGroups, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroup(bg.group)
		a.device.DestroyBindGroupLayout(bg.layout)
	}
}

// Close releases every resource still owned by the adapter. The device
// and queue stay with their owner.
func (a *HALAdapter) Close() {
	a.mu.Lock()
	groups, textures, buffers := a.bindGroups, a.textures, a.buffers
	a.bindGroups = make(map[gpucore.BindGroupID]*bindGroup)
	a.textures = make(map[gpucore.TextureID]*texture)
	a.buffers = make(map[gpucore.BufferID]*buffer)
	a.mu.Unlock()

	for _, bg := range groups {
		a.device.DestroyBindGroup(bg.group)
		a.device.DestroyBindGroupLayout(bg.layout)
	}
	for _, t := range textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.tex)
	}
	for _, b := range buffers {
		a.device.DestroyBuffer(b.buf)
	}
}

func alignUp(n uint64) uint64 {
	return (n + copyAlignment - 1) &^ (copyAlignment - 1)
}
