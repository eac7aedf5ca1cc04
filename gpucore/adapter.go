package gpucore

// GPUAdapter abstracts over different GPU backend implementations.
//
// This interface is everything the residency subsystem needs from a device.
// Implementations must be thread-safe for concurrent use, and must apply
// writes in call order on one queue timeline.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type GPUAdapter interface {
	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer.
	//
	// Parameters:
	//   - size: buffer size in bytes
	//   - usage: buffer usage flags (bitmask of BufferUsage*)
	//
	// Returns the buffer ID or an error if allocation fails.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data to a buffer at a byte offset.
	// The data is copied before WriteBuffer returns.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// ReadBuffer reads data from a buffer.
	// This may cause a GPU-CPU synchronization stall.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// === Texture Management ===

	// CreateTexture creates a sampled 2D texture with a single mip level.
	//
	// Returns the texture ID or an error if allocation fails.
	CreateTexture(width, height int, format TextureFormat) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// WriteTexture writes tightly packed data into a region of a texture.
	// For block-compressed formats the region origin must be block aligned
	// and data holds whole blocks.
	WriteTexture(id TextureID, region TextureRegion, data []byte)

	// === Bindings ===

	// CreateBindGroup creates a bind group (descriptor set) from a list of
	// tagged bindings.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)
}
