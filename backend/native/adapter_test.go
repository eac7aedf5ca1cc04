//go:build !nogpu

package native

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/gpucore"
	"github.com/gogpu/vtex/internal/feedback"
	"github.com/gogpu/vtex/internal/indirection"
)

func newTestAdapter(t *testing.T) (*HALAdapter, *mockDevice, *mockQueue) {
	t.Helper()
	d := newMockDevice()
	q := &mockQueue{}
	a := NewHALAdapter(d, q, nil)
	t.Cleanup(a.Close)
	return a, d, q
}

func TestBufferWriteReadRoundTrip(t *testing.T) {
	a, d, _ := newTestAdapter(t)

	id, err := a.CreateBuffer(10, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
	if err != nil {
		t.Fatal(err)
	}
	buf := d.buffers[0]
	if len(buf.data) != 12 {
		t.Errorf("HAL buffer size = %d, want 12", len(buf.data))
	}
	wantUsage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	if buf.usage != wantUsage {
		t.Errorf("HAL buffer usage = %v, want %v", buf.usage, wantUsage)
	}

	a.WriteBuffer(id, 2, []byte("abcdefgh"))
	got, err := a.ReadBuffer(id, 3, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bcdef" {
		t.Errorf("ReadBuffer = %q, want %q", got, "bcdef")
	}

	staging := d.buffers[1]
	if staging.usage != gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst {
		t.Errorf("staging usage = %v", staging.usage)
	}
	if !staging.destroyed {
		t.Error("staging buffer not destroyed")
	}
	if len(d.encoders) != 1 || !d.encoders[0].destroyed {
		t.Error("command encoder not destroyed")
	}
	if len(d.freed) != 1 {
		t.Errorf("freed command buffers = %d, want 1", len(d.freed))
	}
	if d.unmapped != 1 {
		t.Errorf("unmapped = %d, want 1", d.unmapped)
	}
	// 4-byte aligned copy covering [3,8).
	c := d.encoders[0].copies[0].region
	if c.SrcOffset != 0 || c.Size != 8 {
		t.Errorf("copy region = %+v, want offset 0 size 8", c)
	}
}

func TestReadBufferErrors(t *testing.T) {
	a, _, q := newTestAdapter(t)
	id, err := a.CreateBuffer(16, gpucore.BufferUsageStorage)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.ReadBuffer(gpucore.BufferID(999), 0, 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown buffer: err = %v, want ErrNotFound", err)
	}
	if _, err := a.ReadBuffer(id, 12, 8); err == nil {
		t.Error("out of range read succeeded")
	}
	if got, err := a.ReadBuffer(id, 4, 0); err != nil || len(got) != 0 {
		t.Errorf("empty read = %v, %v", got, err)
	}

	q.stall = true
	a.readbackTimeout = time.Millisecond
	if _, err := a.ReadBuffer(id, 0, 4); !errors.Is(err, ErrReadbackTimeout) {
		t.Errorf("stalled queue: err = %v, want ErrReadbackTimeout", err)
	}
}

func TestCreateBufferFailure(t *testing.T) {
	a, d, _ := newTestAdapter(t)
	if _, err := a.CreateBuffer(0, gpucore.BufferUsageStorage); err == nil {
		t.Error("zero-size buffer succeeded")
	}
	d.failCreate = true
	if _, err := a.CreateBuffer(16, gpucore.BufferUsageStorage); !errors.Is(err, errMockCreate) {
		t.Errorf("err = %v, want wrapped device error", err)
	}
}

func TestCreateTextureFormats(t *testing.T) {
	tests := []struct {
		format gpucore.TextureFormat
		want   gputypes.TextureFormat
	}{
		{gpucore.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm},
		{gpucore.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC1RGBAUnorm},
		{gpucore.TextureFormatBC3RGBAUnorm, gputypes.TextureFormatBC3RGBAUnorm},
		{gpucore.TextureFormatBC5RGUnorm, gputypes.TextureFormatBC5RGUnorm},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			a, d, _ := newTestAdapter(t)
			if _, err := a.CreateTexture(288, 144, tt.format); err != nil {
				t.Fatal(err)
			}
			desc := d.textures[0].desc
			if desc.Format != tt.want {
				t.Errorf("format = %v, want %v", desc.Format, tt.want)
			}
			if desc.Size.Width != 288 || desc.Size.Height != 144 || desc.Size.DepthOrArrayLayers != 1 {
				t.Errorf("size = %+v", desc.Size)
			}
			wantUsage := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
			if desc.Usage != wantUsage {
				t.Errorf("usage = %v, want %v", desc.Usage, wantUsage)
			}
			if len(d.views) != 1 || d.views[0].texture != d.textures[0] {
				t.Error("texture view not created for the texture")
			}
		})
	}
}

func TestCreateTextureRejects(t *testing.T) {
	a, d, _ := newTestAdapter(t)
	if _, err := a.CreateTexture(64, 64, gpucore.TextureFormat(99)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unknown format: err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := a.CreateTexture(0, 64, gpucore.TextureFormatRGBA8Unorm); err == nil {
		t.Error("zero-width texture succeeded")
	}
	if len(d.textures) != 0 {
		t.Errorf("HAL textures created = %d, want 0", len(d.textures))
	}
}

func TestWriteTextureLayout(t *testing.T) {
	tests := []struct {
		name        string
		format      gpucore.TextureFormat
		region      gpucore.TextureRegion
		bytesPerRow uint32
		rows        uint32
	}{
		{"bc1 slot", gpucore.TextureFormatBC1RGBAUnorm, gpucore.TextureRegion{X: 72, Y: 144, Width: 72, Height: 72}, 18 * 8, 18},
		{"bc5 slot", gpucore.TextureFormatBC5RGUnorm, gpucore.TextureRegion{X: 0, Y: 72, Width: 72, Height: 72}, 18 * 16, 18},
		{"rgba", gpucore.TextureFormatRGBA8Unorm, gpucore.TextureRegion{X: 4, Y: 8, Width: 6, Height: 3}, 24, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, q := newTestAdapter(t)
			id, err := a.CreateTexture(288, 288, tt.format)
			if err != nil {
				t.Fatal(err)
			}
			data := bytes.Repeat([]byte{0xAB}, int(tt.bytesPerRow*tt.rows))
			a.WriteTexture(id, tt.region, data)

			if len(q.textureWrites) != 1 {
				t.Fatalf("texture writes = %d, want 1", len(q.textureWrites))
			}
			w := q.textureWrites[0]
			if w.layout.BytesPerRow != tt.bytesPerRow || w.layout.RowsPerImage != tt.rows {
				t.Errorf("layout = %+v, want bytesPerRow %d rows %d", w.layout, tt.bytesPerRow, tt.rows)
			}
			if w.dst.Origin.X != uint32(tt.region.X) || w.dst.Origin.Y != uint32(tt.region.Y) {
				t.Errorf("origin = %+v, want (%d,%d)", w.dst.Origin, tt.region.X, tt.region.Y)
			}
			if w.size.Width != uint32(tt.region.Width) || w.size.Height != uint32(tt.region.Height) {
				t.Errorf("extent = %+v", w.size)
			}
			if !bytes.Equal(w.data, data) {
				t.Error("texture data not forwarded")
			}
		})
	}
}

func TestWriteTextureIgnoresUnknown(t *testing.T) {
	a, _, q := newTestAdapter(t)
	a.WriteTexture(gpucore.TextureID(42), gpucore.TextureRegion{Width: 4, Height: 4}, make([]byte, 64))
	a.WriteBuffer(gpucore.BufferID(42), 0, []byte{1})
	if len(q.textureWrites) != 0 || q.bufferWrites != 0 {
		t.Error("writes to unknown resources reached the queue")
	}
}

func TestCreateBindGroup(t *testing.T) {
	a, d, _ := newTestAdapter(t)
	buf, err := a.CreateBuffer(64, gpucore.BufferUsageStorage)
	if err != nil {
		t.Fatal(err)
	}
	tex, err := a.CreateTexture(288, 288, gpucore.TextureFormatBC1RGBAUnorm)
	if err != nil {
		t.Fatal(err)
	}

	ro := gpucore.BufferBinding(3, buf, 0, true)
	ro.Offset = 16
	id, err := a.CreateBindGroup(&gpucore.BindGroupDesc{
		Label: "test",
		Bindings: []gpucore.Binding{
			gpucore.TextureBinding(0, tex),
			ro,
			gpucore.BufferBinding(4, buf, 32, false),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	layout := d.layouts[0].desc
	if len(layout.Entries) != 3 {
		t.Fatalf("layout entries = %d, want 3", len(layout.Entries))
	}
	if e := layout.Entries[0]; e.Binding != 0 || e.Texture == nil || e.Texture.SampleType != gputypes.TextureSampleTypeFloat {
		t.Errorf("texture layout entry = %+v", e)
	}
	if e := layout.Entries[1]; e.Buffer == nil || e.Buffer.Type != gputypes.BufferBindingTypeReadOnlyStorage {
		t.Errorf("read-only buffer layout entry = %+v", e)
	}
	if e := layout.Entries[2]; e.Buffer == nil || e.Buffer.Type != gputypes.BufferBindingTypeStorage {
		t.Errorf("storage buffer layout entry = %+v", e)
	}
	for _, e := range layout.Entries {
		if e.Visibility&gputypes.ShaderStageFragment == 0 {
			t.Errorf("binding %d not visible to fragment stage", e.Binding)
		}
	}

	group := d.groups[0].desc
	if group.Layout != d.layouts[0] {
		t.Error("bind group does not use its layout")
	}
	view, ok := group.Entries[0].Resource.(gputypes.TextureViewBinding)
	if !ok || view.TextureView != d.views[0].handle {
		t.Errorf("texture entry = %+v, want view handle %#x", group.Entries[0].Resource, d.views[0].handle)
	}
	whole, ok := group.Entries[1].Resource.(gputypes.BufferBinding)
	if !ok || whole.Buffer != d.buffers[0].handle || whole.Offset != 16 || whole.Size != 48 {
		t.Errorf("buffer entry = %+v, want offset 16 size 48", group.Entries[1].Resource)
	}
	sized, ok := group.Entries[2].Resource.(gputypes.BufferBinding)
	if !ok || sized.Size != 32 {
		t.Errorf("sized buffer entry = %+v, want size 32", group.Entries[2].Resource)
	}

	g, l, ok := a.BindGroup(id)
	if !ok || g != hal.BindGroup(d.groups[0]) || l != hal.BindGroupLayout(d.layouts[0]) {
		t.Error("BindGroup did not return the HAL objects")
	}
	a.DestroyBindGroup(id)
	if !d.groups[0].destroyed || !d.layouts[0].destroyed {
		t.Error("DestroyBindGroup left HAL objects alive")
	}
}

func TestCreateBindGroupRejects(t *testing.T) {
	a, d, _ := newTestAdapter(t)
	tex1, _ := a.CreateTexture(8, 8, gpucore.TextureFormatRGBA8Unorm)
	tex2, _ := a.CreateTexture(8, 8, gpucore.TextureFormatRGBA8Unorm)

	tests := []struct {
		name    string
		binding gpucore.Binding
		want    error
	}{
		{"acceleration structure", gpucore.Binding{Slot: 0, Kind: gpucore.BindingKindAccelerationStructure, AccelerationStructure: 7}, ErrUnsupportedBinding},
		{"texture array", gpucore.TextureBinding(0, tex1, tex2), ErrUnsupportedBinding},
		{"unknown buffer", gpucore.BufferBinding(0, gpucore.BufferID(77), 0, true), ErrNotFound},
		{"unknown texture", gpucore.TextureBinding(0, gpucore.TextureID(77)), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateBindGroup(&gpucore.BindGroupDesc{Bindings: []gpucore.Binding{tt.binding}})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := a.CreateBindGroup(&gpucore.BindGroupDesc{Bindings: []gpucore.Binding{{Slot: 1, Kind: gpucore.BindingKindBuffer}}}); err == nil {
		t.Error("buffer binding without buffer succeeded")
	}
	if _, err := a.CreateBindGroup(nil); err == nil {
		t.Error("nil descriptor succeeded")
	}
	if len(d.layouts) != 0 || len(d.groups) != 0 {
		t.Error("rejected bind groups created HAL objects")
	}
}

func TestDestroyAndClose(t *testing.T) {
	d := newMockDevice()
	a := NewHALAdapter(d, &mockQueue{}, nil)

	b1, _ := a.CreateBuffer(4, gpucore.BufferUsageStorage)
	_, _ = a.CreateBuffer(4, gpucore.BufferUsageStorage)
	tex, _ := a.CreateTexture(4, 4, gpucore.TextureFormatRGBA8Unorm)
	_, _ = a.CreateTexture(4, 4, gpucore.TextureFormatRGBA8Unorm)

	a.DestroyBuffer(b1)
	a.DestroyTexture(tex)
	if !d.buffers[0].destroyed || d.buffers[1].destroyed {
		t.Error("DestroyBuffer destroyed the wrong buffer")
	}
	if !d.textures[0].destroyed || !d.views[0].destroyed || d.textures[1].destroyed {
		t.Error("DestroyTexture destroyed the wrong texture")
	}

	// Destroying twice is a no-op.
	a.DestroyBuffer(b1)

	a.Close()
	for i, b := range d.buffers {
		if !b.destroyed {
			t.Errorf("buffer %d alive after Close", i)
		}
	}
	for i, tx := range d.textures {
		if !tx.destroyed || !d.views[i].destroyed {
			t.Errorf("texture %d alive after Close", i)
		}
	}
}

func TestNewHALAdapterFromProvider(t *testing.T) {
	p := &mockProvider{device: newMockDevice(), queue: &mockQueue{}}
	a, err := NewHALAdapterFromProvider(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Device() != hal.Device(p.device) {
		t.Error("adapter does not use the provider device")
	}

	if _, err := NewHALAdapterFromProvider(bareProvider{}, nil); !errors.Is(err, ErrNoHALDevice) {
		t.Errorf("provider without HAL: err = %v, want ErrNoHALDevice", err)
	}
	if _, err := NewHALAdapterFromProvider(&mockProvider{queue: &mockQueue{}}, nil); !errors.Is(err, ErrNoHALDevice) {
		t.Errorf("provider with nil device: err = %v, want ErrNoHALDevice", err)
	}
}

func TestManagerOverHALAdapter(t *testing.T) {
	a, _, q := newTestAdapter(t)

	cfg := vtex.DefaultConfig()
	cfg.PageSize = 64
	cfg.BorderSize = 4
	cfg.AtlasSlotsPerSide = 4
	cfg.PrefetchCoarserMip = false
	cfg.CacheRoot = t.TempDir()
	m, err := vtex.NewManager(a, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for y := range 256 {
		for x := range 256 {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	folder := m.TextureFolder("floor", vtex.TextureTypeAlbedo)
	if _, err := m.SliceImage(context.Background(), img, vtex.TextureTypeAlbedo, folder); err != nil {
		t.Fatal(err)
	}
	id, err := m.RegisterTexture(vtex.TextureDesc{Width: 256, Height: 256, Type: vtex.TextureTypeAlbedo, Folder: folder})
	if err != nil {
		t.Fatal(err)
	}

	r := feedback.Record{TextureID: uint16(id), Mip: 0, SliceX: 1, SliceY: 0}
	a.WriteBuffer(m.Feedback().Buffer(), 0, feedback.EncodeBuffer([]feedback.Record{r}))
	writesBefore := len(q.textureWrites)

	stats, err := m.Update(1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Drained != 1 || stats.Uploaded != 1 || stats.IndirectionWrites != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	if got := len(q.textureWrites) - writesBefore; got != 1 {
		t.Fatalf("atlas uploads = %d, want 1", got)
	}
	w := q.textureWrites[len(q.textureWrites)-1]
	if w.size.Width != 72 || w.size.Height != 72 || w.layout.BytesPerRow != 18*8 || w.layout.RowsPerImage != 18 {
		t.Errorf("atlas upload extent %+v layout %+v", w.size, w.layout)
	}
	if w.dst.Origin.X%72 != 0 || w.dst.Origin.Y%72 != 0 {
		t.Errorf("atlas upload origin %+v not slot aligned", w.dst.Origin)
	}

	tex, _ := m.Texture(id)
	geom := indirection.Geometry{Width: 256, Height: 256, PageSize: 64}
	idx, err := indirection.EntryOffset(tex.IndirectionOffset, geom, 0, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	gpu, err := a.ReadBuffer(m.Indirection().Buffer(), uint64(idx)*4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := binary.LittleEndian.Uint32(gpu), m.Indirection().Entry(idx); got != want || got == indirection.NotResident {
		t.Errorf("GPU indirection entry = %#x, want %#x (valid)", got, want)
	}

	// Feedback counter cleared after the drain.
	counter, err := a.ReadBuffer(m.Feedback().Buffer(), 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if binary.LittleEndian.Uint32(counter) != 0 {
		t.Error("feedback counter not reset")
	}

	if _, err := m.BindGroup(); err != nil {
		t.Fatalf("BindGroup over HAL adapter: %v", err)
	}
}

func TestLoadSamplingShader(t *testing.T) {
	d := newMockDevice()
	module, err := LoadSamplingShader(d, vtex.DefaultConfig())
	if err != nil {
		if strings.Contains(err.Error(), "compile") {
			t.Skipf("sampling shader compilation not supported by naga: %v", err)
		}
		t.Fatal(err)
	}
	if module == nil || len(d.shaders) != 1 {
		t.Fatal("no shader module created")
	}
	spirv := d.shaders[0].desc.Source.SPIRV
	if len(spirv) == 0 || spirv[0] != 0x07230203 {
		t.Error("shader module source is not SPIR-V")
	}
}

func TestWriteTextureOutOfBounds(t *testing.T) {
	a, _, q := newTestAdapter(t)
	id, err := a.CreateTexture(144, 144, gpucore.TextureFormatBC1RGBAUnorm)
	if err != nil {
		t.Fatal(err)
	}
	a.WriteTexture(id, gpucore.TextureRegion{X: 144, Y: 0, Width: 72, Height: 72}, make([]byte, 18*18*8))
	if len(q.textureWrites) != 0 {
		t.Error("out-of-bounds texture write reached the queue")
	}
}
