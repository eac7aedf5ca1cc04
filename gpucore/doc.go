// Package gpucore provides the GPU abstraction used by the vtex residency
// subsystem.
//
// The residency code never talks to a graphics API directly. Everything it
// needs from the device is expressed by [GPUAdapter]: create buffers and
// textures, push bytes into them at an offset, read a buffer back, and build
// a bind group from a list of [Binding] values.
//
// # Architecture
//
//	               +-----------------+
//	               |      vtex       |
//	               |   (Manager)     |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| native adapter  |          | headless adapter|
//	|  (hal.Device)   |          |  (CPU memory)   |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	|   (Pure Go)     |
//	+-----------------+
//
// # Ordering
//
// All writes issued through one adapter are applied in call order on a single
// queue timeline. The residency manager relies on this: an atlas upload is
// always issued before the indirection write that makes it visible, and an
// indirection entry is always invalidated before its slot is reused.
//
// # Bindings
//
// A [Binding] is a tagged variant over the descriptor kinds a virtual-texture
// shader consumes ([BindingKindBuffer], [BindingKindTexture],
// [BindingKindAccelerationStructure]). Adapters switch on [Binding.Kind]
// explicitly; there is no type-erased resource handle.
package gpucore
