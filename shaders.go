package vtex

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
)

//go:embed shaders/virtual_texture.wgsl
var virtualTextureShaderTemplate string

// SamplingShaderSource returns the WGSL virtual-texture sampling shader
// with the layout constants of cfg filled in.
func SamplingShaderSource(cfg Config) string {
	r := strings.NewReplacer(
		"{{PAGE_SIZE}}", strconv.Itoa(cfg.PageSize),
		"{{BORDER}}", strconv.Itoa(cfg.BorderSize),
		"{{SLOT_SIZE}}", strconv.Itoa(cfg.SlotSize()),
		"{{SLOTS_PER_SIDE}}", strconv.Itoa(cfg.AtlasSlotsPerSide),
		"{{FEEDBACK_CAPACITY}}", strconv.Itoa(cfg.FeedbackCapacity),
		"{{RESERVED_TEXTURES}}", strconv.Itoa(ReservedTextureCount),
	)
	return r.Replace(virtualTextureShaderTemplate)
}

// CompileSamplingShader compiles the sampling shader to SPIR-V words.
func CompileSamplingShader(cfg Config) ([]uint32, error) {
	spirvBytes, err := naga.Compile(SamplingShaderSource(cfg))
	if err != nil {
		return nil, fmt.Errorf("vtex: compile sampling shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
