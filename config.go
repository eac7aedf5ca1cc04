package vtex

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/vtex/internal/atlas"
	"github.com/gogpu/vtex/internal/indirection"
)

// ReservedTextureCount is the number of texture ids reserved for the
// default albedo, normal and ORM textures. Requests for them are rejected.
const ReservedTextureCount = 3

// MaxTextures is the number of texture ids a feedback record can address.
const MaxTextures = 1 << 16

// Config holds the residency subsystem settings. The zero value is not
// valid; start from DefaultConfig.
type Config struct {
	// PageSize is the slice edge in pixels, excluding the border.
	// Must be a multiple of 4.
	PageSize int `toml:"page_size"`

	// BorderSize is the filtering border added on every side of a slice.
	BorderSize int `toml:"border_size"`

	// MaxRequestsPerFrame bounds the slice requests handled by one Update.
	MaxRequestsPerFrame int `toml:"max_requests_per_frame"`

	// AtlasSlotsPerSide is the slot grid dimension of every atlas.
	AtlasSlotsPerSide int `toml:"atlas_slots_per_side"`

	// PrefetchCoarserMip also requests the parent of every requested slice
	// when the throttle leaves room.
	PrefetchCoarserMip bool `toml:"prefetch_coarser_mip"`

	// FeedbackCapacity is the number of records the feedback buffer holds.
	FeedbackCapacity int `toml:"feedback_capacity"`

	// IndirectionCapacity is the initial number of indirection entries.
	IndirectionCapacity int `toml:"indirection_capacity"`

	// TextureCapacity, TextureSetCapacity and MaterialCapacity are the
	// initial element counts of the GPU tables. Tables grow as needed.
	TextureCapacity    int `toml:"texture_capacity"`
	TextureSetCapacity int `toml:"texture_set_capacity"`
	MaterialCapacity   int `toml:"material_capacity"`

	// SliceCacheBytes bounds the in-memory cache of slice payloads.
	// Zero disables it.
	SliceCacheBytes int64 `toml:"slice_cache_bytes"`

	// CacheRoot is the folder holding one sub-folder per sliced texture.
	CacheRoot string `toml:"cache_root"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		PageSize:            128,
		BorderSize:          4,
		MaxRequestsPerFrame: 4,
		AtlasSlotsPerSide:   16,
		PrefetchCoarserMip:  true,
		FeedbackCapacity:    4096,
		IndirectionCapacity: 1 << 14,
		TextureCapacity:     256,
		TextureSetCapacity:  64,
		MaterialCapacity:    64,
		SliceCacheBytes:     64 << 20,
		CacheRoot:           "vtcache",
	}
}

// SlotSize returns the pixel size of one atlas slot.
func (c Config) SlotSize() int {
	return atlas.SlotSize(c.PageSize, c.BorderSize)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.PageSize <= 0 || c.PageSize%4 != 0:
		return fmt.Errorf("%w: page size %d is not a positive multiple of 4", ErrConfiguration, c.PageSize)
	case c.BorderSize < 0 || c.BorderSize > c.PageSize/2:
		return fmt.Errorf("%w: border size %d", ErrConfiguration, c.BorderSize)
	case c.MaxRequestsPerFrame <= 0:
		return fmt.Errorf("%w: max requests per frame %d", ErrConfiguration, c.MaxRequestsPerFrame)
	case c.AtlasSlotsPerSide <= 0 || c.AtlasSlotsPerSide*c.AtlasSlotsPerSide > indirection.MaxSlot+1:
		return fmt.Errorf("%w: atlas slots per side %d", ErrConfiguration, c.AtlasSlotsPerSide)
	case c.FeedbackCapacity <= 0:
		return fmt.Errorf("%w: feedback capacity %d", ErrConfiguration, c.FeedbackCapacity)
	case c.IndirectionCapacity <= 0 || c.TextureCapacity <= 0 ||
		c.TextureSetCapacity <= 0 || c.MaterialCapacity <= 0:
		return fmt.Errorf("%w: table capacities must be positive", ErrConfiguration)
	case c.SliceCacheBytes < 0:
		return fmt.Errorf("%w: slice cache bytes %d", ErrConfiguration, c.SliceCacheBytes)
	}
	return nil
}

// ParseConfig decodes TOML over DefaultConfig and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfiguration, tomlError(err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a TOML configuration file.
//
// Example file:
//
//	page_size = 128
//	border_size = 4
//	max_requests_per_frame = 8
//	cache_root = "assets/vtcache"
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("vtex: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// tomlError names the offending keys of a strict-mode decode failure,
// which the error text of go-toml leaves out.
func tomlError(err error) error {
	var se *toml.StrictMissingError
	if !errors.As(err, &se) {
		return err
	}
	keys := make([]string, len(se.Errors))
	for i := range se.Errors {
		keys[i] = strings.Join(se.Errors[i].Key(), ".")
	}
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}
