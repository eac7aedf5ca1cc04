//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vtex"
)

// LoadSamplingShader compiles the virtual-texture sampling shader for cfg
// and creates a HAL shader module from it. The caller owns the module.
func LoadSamplingShader(device hal.Device, cfg vtex.Config) (hal.ShaderModule, error) {
	spirv, err := vtex.CompileSamplingShader(cfg)
	if err != nil {
		return nil, err
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: "vtex_sampling",
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create sampling shader module: %w", err)
	}
	return module, nil
}
