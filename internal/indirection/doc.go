// Package indirection manages the virtual-texture indirection table.
//
// Every logical texture owns a contiguous region of u32 entries, one per
// slice over all paged mip levels. An entry is either NotResident or names
// the atlas and slot holding the slice. Regions are bump allocated and never
// freed. The table keeps a CPU mirror and pushes every change to a GPU
// storage buffer through gpucore.GPUAdapter.
package indirection
