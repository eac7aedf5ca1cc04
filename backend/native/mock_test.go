//go:build !nogpu

package native

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Mock HAL resources for testing the adapter without a GPU. Interfaces are
// embedded so that unexpected calls panic.

var errMockCreate = errors.New("mock: create failed")

type mockBuffer struct {
	handle    uintptr
	usage     gputypes.BufferUsage
	data      []byte
	destroyed bool
}

func (b *mockBuffer) Destroy()             { b.destroyed = true }
func (b *mockBuffer) NativeHandle() uintptr { return b.handle }

type mockTexture struct {
	handle    uintptr
	desc      hal.TextureDescriptor
	destroyed bool
}

func (t *mockTexture) Destroy()                            { t.destroyed = true }
func (t *mockTexture) NativeHandle() uintptr               { return t.handle }
func (t *mockTexture) CurrentUsage() gputypes.TextureUsage { return 0 }
func (t *mockTexture) AddPendingRef()                      {}
func (t *mockTexture) DecPendingRef()                      {}

type mockTextureView struct {
	handle    uintptr
	texture   *mockTexture
	destroyed bool
}

func (v *mockTextureView) Destroy()             { v.destroyed = true }
func (v *mockTextureView) NativeHandle() uintptr { return v.handle }

type mockBindGroupLayout struct {
	desc      hal.BindGroupLayoutDescriptor
	destroyed bool
}

func (l *mockBindGroupLayout) Destroy() { l.destroyed = true }

type mockBindGroup struct {
	desc      hal.BindGroupDescriptor
	destroyed bool
}

func (g *mockBindGroup) Destroy() { g.destroyed = true }

type mockShaderModule struct {
	desc hal.ShaderModuleDescriptor
}

func (*mockShaderModule) Destroy() {}

type bufferCopy struct {
	src, dst *mockBuffer
	region   hal.BufferCopy
}

type mockCommandBuffer struct {
	copies []bufferCopy
	freed  bool
}

func (*mockCommandBuffer) Destroy() {}

type mockEncoder struct {
	hal.CommandEncoder
	label     string
	copies    []bufferCopy
	destroyed bool
}

func (e *mockEncoder) BeginEncoding(label string) error {
	e.label = label
	return nil
}

func (e *mockEncoder) EndEncoding() (hal.CommandBuffer, error) {
	return &mockCommandBuffer{copies: e.copies}, nil
}

func (e *mockEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	for _, r := range regions {
		e.copies = append(e.copies, bufferCopy{src: src.(*mockBuffer), dst: dst.(*mockBuffer), region: r})
	}
}

func (e *mockEncoder) Destroy() { e.destroyed = true }

type mockDevice struct {
	hal.Device

	mu         sync.Mutex
	nextHandle uintptr
	failCreate bool

	buffers  []*mockBuffer
	textures []*mockTexture
	views    []*mockTextureView
	layouts  []*mockBindGroupLayout
	groups   []*mockBindGroup
	encoders []*mockEncoder
	freed    []*mockCommandBuffer
	shaders  []*mockShaderModule
	unmapped int
}

func newMockDevice() *mockDevice {
	return &mockDevice{nextHandle: 0x1000}
}

func (d *mockDevice) handle() uintptr {
	d.nextHandle += 0x10
	return d.nextHandle
}

func (d *mockDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCreate {
		return nil, errMockCreate
	}
	b := &mockBuffer{handle: d.handle(), usage: desc.Usage, data: make([]byte, desc.Size)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *mockDevice) DestroyBuffer(b hal.Buffer) { b.Destroy() }

func (d *mockDevice) MapBuffer(b hal.Buffer, offset, size uint64) (hal.BufferMapping, error) {
	mb := b.(*mockBuffer)
	if offset+size > uint64(len(mb.data)) || size == 0 {
		return hal.BufferMapping{}, errors.New("mock: map out of range")
	}
	return hal.BufferMapping{Ptr: unsafe.Pointer(&mb.data[offset]), IsCoherent: true}, nil
}

func (d *mockDevice) UnmapBuffer(hal.Buffer) error {
	d.mu.Lock()
	d.unmapped++
	d.mu.Unlock()
	return nil
}

func (d *mockDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCreate {
		return nil, errMockCreate
	}
	t := &mockTexture{handle: d.handle(), desc: *desc}
	d.textures = append(d.textures, t)
	return t, nil
}

func (d *mockDevice) DestroyTexture(t hal.Texture) { t.Destroy() }

func (d *mockDevice) CreateTextureView(t hal.Texture, _ *hal.TextureViewDescriptor) (hal.TextureView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := &mockTextureView{handle: d.handle(), texture: t.(*mockTexture)}
	d.views = append(d.views, v)
	return v, nil
}

func (d *mockDevice) DestroyTextureView(v hal.TextureView) { v.Destroy() }

func (d *mockDevice) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &mockBindGroupLayout{desc: *desc}
	d.layouts = append(d.layouts, l)
	return l, nil
}

func (d *mockDevice) DestroyBindGroupLayout(l hal.BindGroupLayout) { l.Destroy() }

func (d *mockDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := &mockBindGroup{desc: *desc}
	d.groups = append(d.groups, g)
	return g, nil
}

func (d *mockDevice) DestroyBindGroup(g hal.BindGroup) { g.Destroy() }

func (d *mockDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &mockShaderModule{desc: *desc}
	d.shaders = append(d.shaders, s)
	return s, nil
}

func (d *mockDevice) CreateCommandEncoder(*hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := &mockEncoder{}
	d.encoders = append(d.encoders, e)
	return e, nil
}

func (d *mockDevice) FreeCommandBuffer(cb hal.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mcb := cb.(*mockCommandBuffer)
	mcb.freed = true
	d.freed = append(d.freed, mcb)
}

type textureWrite struct {
	dst    hal.ImageCopyTexture
	data   []byte
	layout hal.ImageDataLayout
	size   hal.Extent3D
}

type mockQueue struct {
	hal.Queue

	mu            sync.Mutex
	submitted     uint64
	completed     uint64
	stall         bool
	bufferWrites  int
	textureWrites []textureWrite
}

func (q *mockQueue) Submit(cbs []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cb := range cbs {
		for _, c := range cb.(*mockCommandBuffer).copies {
			r := c.region
			copy(c.dst.data[r.DstOffset:r.DstOffset+r.Size], c.src.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	}
	q.submitted++
	if !q.stall {
		q.completed = q.submitted
	}
	return q.submitted, nil
}

func (q *mockQueue) PollCompleted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

func (q *mockQueue) WriteBuffer(b hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	mb := b.(*mockBuffer)
	if offset+uint64(len(data)) > uint64(len(mb.data)) {
		return errors.New("mock: write out of range")
	}
	copy(mb.data[offset:], data)
	q.bufferWrites++
	return nil
}

func (q *mockQueue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.textureWrites = append(q.textureWrites, textureWrite{
		dst:    *dst,
		data:   append([]byte(nil), data...),
		layout: *layout,
		size:   *size,
	})
	return nil
}

// mockProvider is a device provider backed by the mock device.
type mockProvider struct {
	gpucontext.DeviceProvider
	device *mockDevice
	queue  *mockQueue
}

func (p *mockProvider) HalDevice() any {
	if p.device == nil {
		return nil
	}
	return p.device
}

func (p *mockProvider) HalQueue() any { return p.queue }

func (p *mockProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "mock", Type: gpucontext.AdapterTypeSoftware}
}

// bareProvider exposes no HAL handles.
type bareProvider struct {
	gpucontext.DeviceProvider
}
