//go:build !nogpu

// Package native implements gpucore.GPUAdapter on top of gogpu/wgpu/hal.
//
// The adapter owns HAL buffers, textures (with one sampled view each) and
// bind groups, and hands out gpucore IDs for them. All uploads go through
// the HAL queue, so atlas texture writes and the indirection buffer writes
// that follow them execute in call order.
//
// A HALAdapter is usually created from the device provider of a host
// application:
//
//	adapter, err := native.NewHALAdapterFromProvider(app, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr, err := vtex.NewManager(adapter, cfg)
//
// Build with the nogpu tag to exclude this package.
package native
