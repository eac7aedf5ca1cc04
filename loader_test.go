package vtex

import (
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/vtex/internal/slicecache"
)

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTextureSet(t *testing.T) {
	m, a := newTestManager(t, testConfig(t))
	src := t.TempDir()
	desc := TextureSetDesc{
		Name:         "brick",
		Albedo:       writePNG(t, src, "albedo.png", testImage(128, 128)),
		Normal:       writePNG(t, src, "normal.png", testImage(128, 64)),
		SamplingMode: SamplingModeTriplanar,
	}

	res, err := m.LoadTextureSet(t.Context(), desc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fallback != nil {
		t.Fatalf("unexpected fallback: %v", res.Fallback)
	}
	if res.Index != 0 {
		t.Errorf("set index = %d, want 0", res.Index)
	}
	if res.Textures[TextureTypeCombined] != DefaultORMTexture {
		t.Errorf("missing ORM image should use the default texture, got %d", res.Textures[TextureTypeCombined])
	}

	albedo, ok := m.Texture(res.Textures[TextureTypeAlbedo])
	if !ok || albedo.Width != 128 || albedo.Height != 128 || albedo.Type != TextureTypeAlbedo {
		t.Fatalf("albedo = %+v", albedo)
	}
	normal, ok := m.Texture(res.Textures[TextureTypeNormal])
	if !ok || normal.Width != 128 || normal.Height != 64 {
		t.Fatalf("normal = %+v", normal)
	}

	info, err := slicecache.ReadInfo(m.TextureFolder("brick", TextureTypeNormal))
	if err != nil || info.Width != 128 || info.Height != 64 {
		t.Errorf("ReadInfo = %+v, %v", info, err)
	}

	// The set reaches the GPU on the next Update.
	if _, err := m.Update(1); err != nil {
		t.Fatal(err)
	}
	_, sets, _ := m.Tables().Buffers()
	data := a.BufferBytes(sets.Buffer)
	le := binary.LittleEndian
	if le.Uint32(data[0:]) != uint32(res.Textures[TextureTypeAlbedo]) ||
		le.Uint32(data[4:]) != uint32(res.Textures[TextureTypeNormal]) ||
		le.Uint32(data[8:]) != uint32(DefaultORMTexture) ||
		le.Uint32(data[12:]) != uint32(SamplingModeTriplanar) {
		t.Errorf("GPU texture set = %x", data[:TextureSetGPUInfoSize])
	}

	// Slices of the loaded set stream in.
	pushFeedback(m, a, req(res.Textures[TextureTypeNormal], 0, 1, 0))
	stats, err := m.Update(2)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Uploaded != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLoadTextureSetReusesCache(t *testing.T) {
	m, _ := newTestManager(t, testConfig(t))
	src := t.TempDir()
	path := writePNG(t, src, "albedo.png", testImage(64, 64))
	desc := TextureSetDesc{Name: "cached", Albedo: path}

	if _, err := m.LoadTextureSet(t.Context(), desc); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	res, err := m.LoadTextureSet(t.Context(), desc)
	if err != nil {
		t.Fatalf("second load should read the cache: %v", err)
	}
	if res.Index != 1 {
		t.Errorf("second set index = %d, want 1", res.Index)
	}
}

func TestLoadTextureSetMisalignedFallsBack(t *testing.T) {
	m, _ := newTestManager(t, testConfig(t))
	src := t.TempDir()
	desc := TextureSetDesc{
		Name:   "odd",
		Albedo: writePNG(t, src, "albedo.png", testImage(64, 64)),
		Normal: writePNG(t, src, "normal.png", testImage(100, 64)),
	}

	res, err := m.LoadTextureSet(t.Context(), desc)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(res.Fallback, ErrConfiguration) {
		t.Fatalf("Fallback = %v, want ErrConfiguration", res.Fallback)
	}
	want := [numTextureTypes]TextureID{DefaultAlbedoTexture, DefaultNormalTexture, DefaultORMTexture}
	if res.Textures != want {
		t.Errorf("textures = %v, want defaults", res.Textures)
	}
	var sets int
	m.Tables().WithTextureSets(func(s *GPUTable[TextureSetGPUInfo]) {
		sets = s.Len()
		if got := s.At(int(res.Index)).Scale; got.X() != 1 || got.Y() != 1 || got.Z() != 1 {
			t.Errorf("default scale = %v", got)
		}
	})
	if sets != 1 {
		t.Errorf("fallback set not appended: %d sets", sets)
	}
}

func TestLoadTextureSetRegistersAllOrNothing(t *testing.T) {
	m, _ := newTestManager(t, testConfig(t))
	src := t.TempDir()

	// The normal map's cached extent is page aligned but too wide for a
	// feedback record, so only registration rejects it.
	folder := m.TextureFolder("wide", TextureTypeNormal)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := slicecache.WriteInfo(folder, slicecache.Info{Width: 257 * 64, Height: 64}); err != nil {
		t.Fatal(err)
	}
	desc := TextureSetDesc{
		Name:   "wide",
		Albedo: writePNG(t, src, "albedo.png", testImage(64, 64)),
		Normal: filepath.Join(src, "normal.png"),
	}

	res, err := m.LoadTextureSet(t.Context(), desc)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(res.Fallback, ErrConfiguration) {
		t.Fatalf("Fallback = %v, want ErrConfiguration", res.Fallback)
	}
	want := [numTextureTypes]TextureID{DefaultAlbedoTexture, DefaultNormalTexture, DefaultORMTexture}
	if res.Textures != want {
		t.Errorf("textures = %v, want defaults", res.Textures)
	}
	if n := m.Tables().TextureCount(); n != ReservedTextureCount {
		t.Errorf("texture table holds %d entries, want only the %d reserved", n, ReservedTextureCount)
	}
	if _, ok := m.Texture(ReservedTextureCount); ok {
		t.Error("albedo texture registered for a set that fell back")
	}
}

func TestLoadTextureSetErrors(t *testing.T) {
	m, _ := newTestManager(t, testConfig(t))

	if _, err := m.LoadTextureSet(t.Context(), TextureSetDesc{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("unnamed set: err = %v", err)
	}

	_, err := m.LoadTextureSet(t.Context(), TextureSetDesc{Name: "gone", Albedo: filepath.Join(t.TempDir(), "none.png")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing image: err = %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LoadTextureSet(t.Context(), TextureSetDesc{Name: "bad", Albedo: bad}); !errors.Is(err, image.ErrFormat) {
		t.Errorf("undecodable image: err = %v", err)
	}
}
