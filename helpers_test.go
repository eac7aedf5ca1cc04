package vtex

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/vtex/backend/headless"
	"github.com/gogpu/vtex/internal/feedback"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PageSize = 64
	cfg.BorderSize = 4
	cfg.AtlasSlotsPerSide = 4
	cfg.MaxRequestsPerFrame = 4
	cfg.PrefetchCoarserMip = false
	cfg.FeedbackCapacity = 64
	cfg.IndirectionCapacity = 64
	cfg.TextureCapacity = 8
	cfg.TextureSetCapacity = 4
	cfg.MaterialCapacity = 4
	cfg.CacheRoot = t.TempDir()
	return cfg
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *headless.Adapter) {
	t.Helper()
	a := headless.New()
	m, err := NewManager(a, cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m, a
}

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	return img
}

// addTexture slices a generated image into the cache and registers it.
func addTexture(t *testing.T, m *Manager, typ TextureType, w, h int, name string) TextureID {
	t.Helper()
	folder := m.TextureFolder(name, typ)
	if _, err := m.SliceImage(context.Background(), testImage(w, h), typ, folder); err != nil {
		t.Fatalf("SliceImage: %v", err)
	}
	id, err := m.RegisterTexture(TextureDesc{Width: w, Height: h, Type: typ, Folder: folder})
	if err != nil {
		t.Fatalf("RegisterTexture: %v", err)
	}
	return id
}

// pushFeedback fills the feedback buffer as the sampling shader would.
func pushFeedback(m *Manager, a *headless.Adapter, records ...Request) {
	a.WriteBuffer(m.Feedback().Buffer(), 0, feedback.EncodeBuffer(records))
}

func req(id TextureID, mip, x, y uint8) Request {
	return Request{TextureID: uint16(id), Mip: mip, SliceX: x, SliceY: y}
}
