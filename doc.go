// Package vtex implements page-based virtual-texture residency and
// streaming.
//
// # Overview
//
// Large textures are cut into fixed-size slices (pages) per mip level and
// stored in a block-compressed on-disk cache. At runtime only the slices
// the GPU actually samples are resident in a small set of physical atlases.
// An indirection table maps every (texture, mip, slice) to its atlas slot or
// marks it not resident; the sampling shader records misses into a feedback
// buffer that the Manager drains once per frame.
//
// # Quick Start
//
//	cfg := vtex.DefaultConfig()
//	m, err := vtex.NewManager(adapter, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	set, err := m.LoadTextureSet(ctx, vtex.TextureSetDesc{
//	    Name:   "rock",
//	    Albedo: "rock_albedo.png",
//	    Normal: "rock_normal.png",
//	})
//
//	for frame := uint64(0); ; frame++ {
//	    stats, err := m.Update(frame)
//	    if err != nil {
//	        log.Fatal(err) // only GPU resource creation failures
//	    }
//	    bg, _ := m.BindGroup()
//	    // record draws using bg and set.Index
//	}
//
// # Frame Flow
//
// Update performs, in order: drain feedback, deduplicate and throttle
// requests, evict least recently requested slices when an atlas is full,
// load slice payloads, upload them into atlas slots, write indirection
// entries, and flush newly added texture sets and materials to the GPU
// tables. Atlas uploads are queued before the indirection writes that
// reference them, and a slot's old indirection entry is invalidated before
// the slot is reused.
//
// # Atlases
//
// There is one atlas per texture type: albedo (BC1), normal (BC5) and
// combined roughness/metalness/AO (BC3). Texture ids 0..2 are reserved for
// the default textures and are never streamed.
//
// # Backends
//
// The Manager talks to the GPU only through gpucore.GPUAdapter.
// backend/native implements it on gogpu/wgpu hal and backend/headless keeps
// everything in memory for tests and offline tools such as cmd/vtslice.
//
// # Concurrency
//
// Update and the request methods run on one render thread. Texture sets
// and materials may be added from loader goroutines; the GPU tables are
// guarded by per-table locks exposed through Tables.WithTextureSets and
// Tables.WithMaterials.
package vtex
