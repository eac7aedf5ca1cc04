package vtex

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image.Decode
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/vtex/internal/slicecache"
)

// TextureSetDesc describes a texture set to load. Empty image paths use
// the reserved default texture of that type.
type TextureSetDesc struct {
	// Name is the cache sub-folder of the set.
	Name string `toml:"name"`

	Albedo               string `toml:"albedo"`
	Normal               string `toml:"normal"`
	RoughnessMetalnessAO string `toml:"roughness_metalness_ao"`

	SamplingMode SamplingMode `toml:"sampling_mode"`
	Scale        [3]float32   `toml:"scale"`
}

// LoadedTextureSet is the result of LoadTextureSet.
type LoadedTextureSet struct {
	// Index is the provisional texture-set index.
	Index uint32

	// Textures are the texture ids in albedo, normal, ORM order.
	Textures [numTextureTypes]TextureID

	// Fallback is non-nil when the set's virtual path was rejected with
	// ErrConfiguration and the set uses the default textures instead.
	Fallback error
}

// TextureFolder returns the cache folder of one texture of a set.
func (m *Manager) TextureFolder(setName string, t TextureType) string {
	return filepath.Join(m.cfg.CacheRoot, setName, t.String())
}

// LoadTextureSet slices the set's images into the cache when needed,
// registers their textures and appends the set to the texture-set table.
//
// It may be called from loader goroutines. Image and I/O failures are
// returned as errors; a page-misaligned image makes the whole set fall
// back to the default textures and is reported in LoadedTextureSet.Fallback.
func (m *Manager) LoadTextureSet(ctx context.Context, desc TextureSetDesc) (LoadedTextureSet, error) {
	var res LoadedTextureSet
	if desc.Name == "" {
		return res, fmt.Errorf("%w: texture set without name", ErrConfiguration)
	}

	paths := [numTextureTypes]string{desc.Albedo, desc.Normal, desc.RoughnessMetalnessAO}
	var descs [numTextureTypes]*TextureDesc
	for t := range numTextureTypes {
		if paths[t] == "" {
			continue
		}
		d, err := m.prepareTexture(ctx, desc.Name, t, paths[t])
		if errors.Is(err, ErrConfiguration) {
			res.Fallback = err
			break
		}
		if err != nil {
			return res, err
		}
		descs[t] = d
	}

	// Registration is all or nothing, so every texture is checked first.
	for t := range numTextureTypes {
		if res.Fallback != nil || descs[t] == nil {
			continue
		}
		if err := m.validateTexture(*descs[t]); err != nil {
			res.Fallback = err
		}
	}

	for t := range numTextureTypes {
		res.Textures[t] = t.defaultTexture()
		if res.Fallback != nil || descs[t] == nil {
			continue
		}
		id, err := m.RegisterTexture(*descs[t])
		if err != nil {
			return res, err
		}
		res.Textures[t] = id
	}
	if res.Fallback != nil {
		m.logger.Warn("texture set falls back to default textures", "set", desc.Name, "err", res.Fallback)
	}

	scale := mgl32.Vec3(desc.Scale)
	if scale == (mgl32.Vec3{}) {
		scale = mgl32.Vec3{1, 1, 1}
	}
	res.Index = m.AddTextureSet(TextureSetGPUInfo{
		AlbedoIndex:               uint32(res.Textures[TextureTypeAlbedo]),
		NormalIndex:               uint32(res.Textures[TextureTypeNormal]),
		RoughnessMetalnessAOIndex: uint32(res.Textures[TextureTypeCombined]),
		SamplingMode:              desc.SamplingMode,
		Scale:                     scale,
	})
	return res, nil
}

// prepareTexture makes sure the cache folder of one texture is complete
// and returns its registration descriptor.
func (m *Manager) prepareTexture(ctx context.Context, setName string, t TextureType, path string) (*TextureDesc, error) {
	folder := m.TextureFolder(setName, t)
	info, err := slicecache.ReadInfo(folder)
	if errors.Is(err, ErrCacheMiss) {
		info, err = m.sliceImageFile(ctx, path, t, folder)
	}
	if err != nil {
		return nil, err
	}
	return &TextureDesc{Width: info.Width, Height: info.Height, Type: t, Folder: folder}, nil
}

func (m *Manager) sliceImageFile(ctx context.Context, path string, t TextureType, folder string) (slicecache.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return slicecache.Info{}, fmt.Errorf("vtex: open %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return slicecache.Info{}, fmt.Errorf("vtex: decode %s: %w", path, err)
	}
	m.logger.Info("slicing texture", "path", path, "format", format, "type", t, "folder", folder)
	return m.SliceImage(ctx, img, t, folder)
}

// SliceImage writes the slice cache of an already decoded image.
// Misaligned extents yield ErrConfiguration.
func (m *Manager) SliceImage(ctx context.Context, img image.Image, t TextureType, folder string) (slicecache.Info, error) {
	if !t.valid() {
		return slicecache.Info{}, fmt.Errorf("%w: texture type %v", ErrConfiguration, t)
	}
	s := &slicecache.Slicer{
		Params: slicecache.Params{
			Format:   t.Format(),
			PageSize: m.cfg.PageSize,
			Border:   m.cfg.BorderSize,
		},
		Logger: m.logger,
	}
	info, err := s.Slice(ctx, img, folder)
	if errors.Is(err, slicecache.ErrMisaligned) {
		return info, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return info, err
}
