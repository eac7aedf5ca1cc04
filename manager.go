package vtex

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/vtex/gpucore"
	"github.com/gogpu/vtex/internal/atlas"
	"github.com/gogpu/vtex/internal/feedback"
	"github.com/gogpu/vtex/internal/indirection"
	"github.com/gogpu/vtex/internal/slicecache"
)

// FrameStats summarizes one Update.
type FrameStats struct {
	Frame uint64

	// Drained is the number of feedback records read back.
	Drained int
	// Duplicates is the number of drained records dropped as repeats.
	Duplicates int
	// Dropped is the number of unique requests cut by the throttle.
	Dropped int
	// Prefetched is the number of coarser-mip requests added.
	Prefetched int
	// Processed is the number of requests handled (at most MaxRequestsPerFrame).
	Processed int

	// AlreadyResident counts processed requests whose slice was resident.
	AlreadyResident int
	// Uploaded counts slices written into an atlas.
	Uploaded int
	// Evicted counts slices removed to make room.
	Evicted int
	// IndirectionWrites counts entries written or invalidated.
	IndirectionWrites int
	// Rejected counts rejected requests by reason.
	Rejected [numRejectReasons]int

	// TablesRegrown reports that a GPU table buffer was replaced.
	TablesRegrown bool

	Duration time.Duration
}

// TotalRejected returns the number of rejected requests.
func (s FrameStats) TotalRejected() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// Manager is the single owner of the virtual-texture state: the atlases,
// the indirection table, the feedback buffer, the slice store and the GPU
// tables.
//
// Update, DrainFeedback and ResolveRequests must be called from one render
// thread. RegisterTexture and the table accessors may be called from
// loader goroutines.
type Manager struct {
	cfg     Config
	adapter gpucore.GPUAdapter
	logger  *slog.Logger
	clock   func() time.Duration

	atlases     [numTextureTypes]*atlas.Atlas[Request]
	indirection *indirection.Table
	feedback    *feedback.Buffer
	store       *slicecache.Store
	tables      *Tables

	texMu    sync.RWMutex
	textures map[TextureID]*LogicalTexture

	frame uint64

	bindGroup    gpucore.BindGroupID
	bindGroupGen uint64
}

// NewManager creates the atlases, indirection table, feedback buffer and
// GPU tables on adapter and registers the reserved default textures.
// GPU creation failures are reported as ErrResourceCreation.
func NewManager(adapter gpucore.GPUAdapter, cfg Config, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultManagerOptions(cfg)
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}

	m := &Manager{
		cfg:      cfg,
		adapter:  adapter,
		logger:   logger,
		clock:    o.clock,
		store:    slicecache.NewStore(o.sliceCacheBytes, logger),
		textures: make(map[TextureID]*LogicalTexture),
	}

	if err := m.createResources(); err != nil {
		m.Close()
		return nil, err
	}

	for range ReservedTextureCount {
		if _, err := m.tables.AddTexture(TextureGPUInfo{
			Width:             1,
			Height:            1,
			IndirectionOffset: indirection.UnallocatedOffset,
		}); err != nil {
			m.Close()
			return nil, err
		}
	}

	logger.Info("vtex manager created",
		"page", cfg.PageSize, "border", cfg.BorderSize, "slot", cfg.SlotSize(),
		"atlasSlots", cfg.AtlasSlotsPerSide*cfg.AtlasSlotsPerSide, "maxRequests", cfg.MaxRequestsPerFrame)
	return m, nil
}

func (m *Manager) createResources() error {
	for t := range numTextureTypes {
		a, err := atlas.New[Request](m.adapter, uint32(t), t.Format(),
			m.cfg.AtlasSlotsPerSide, m.cfg.SlotSize(), m.logger)
		if err != nil {
			return fmt.Errorf("%w: %v atlas: %w", ErrResourceCreation, t, err)
		}
		m.atlases[t] = a
	}

	table, err := indirection.NewTable(m.adapter, m.cfg.IndirectionCapacity, m.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}
	m.indirection = table

	fb, err := feedback.NewBuffer(m.adapter, m.cfg.FeedbackCapacity, m.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}
	m.feedback = fb

	tables, err := newTables(m.adapter, m.cfg, m.logger)
	if err != nil {
		return err
	}
	m.tables = tables
	return nil
}

// Close releases every GPU resource owned by the manager.
func (m *Manager) Close() {
	if m.bindGroup != gpucore.InvalidID {
		m.adapter.DestroyBindGroup(m.bindGroup)
		m.bindGroup = gpucore.InvalidID
	}
	for i, a := range m.atlases {
		if a != nil {
			a.Destroy()
			m.atlases[i] = nil
		}
	}
	if m.indirection != nil {
		m.indirection.Destroy()
		m.indirection = nil
	}
	if m.feedback != nil {
		m.feedback.Destroy()
		m.feedback = nil
	}
	if m.tables != nil {
		m.tables.destroy()
		m.tables = nil
	}
}

// Config returns the manager configuration.
func (m *Manager) Config() Config { return m.cfg }

// Tables returns the GPU tables.
func (m *Manager) Tables() *Tables { return m.tables }

// Store returns the slice store.
func (m *Manager) Store() *slicecache.Store { return m.store }

// Atlas returns the atlas of a texture type.
func (m *Manager) Atlas(t TextureType) *atlas.Atlas[Request] {
	if !t.valid() {
		return nil
	}
	return m.atlases[t]
}

// Indirection returns the indirection table.
func (m *Manager) Indirection() *indirection.Table { return m.indirection }

// Feedback returns the feedback buffer.
func (m *Manager) Feedback() *feedback.Buffer { return m.feedback }

// Frame returns the index passed to the last Update.
func (m *Manager) Frame() uint64 { return m.frame }

// RegisterTexture adds a virtual texture and returns its id. The extent
// must be a multiple of the page size and at most feedback.MaxSlicesPerSide pages
// per side; otherwise ErrConfiguration is returned and nothing is
// registered.
func (m *Manager) RegisterTexture(desc TextureDesc) (TextureID, error) {
	if err := m.validateTexture(desc); err != nil {
		return 0, err
	}
	page := m.cfg.PageSize

	id, err := m.tables.AddTexture(TextureGPUInfo{
		Width:             uint32(desc.Width),
		Height:            uint32(desc.Height),
		IndirectionOffset: indirection.UnallocatedOffset,
	})
	if err != nil {
		return 0, err
	}

	tex := &LogicalTexture{
		ID:                id,
		Width:             desc.Width,
		Height:            desc.Height,
		Type:              desc.Type,
		Folder:            desc.Folder,
		IndirectionOffset: indirection.UnallocatedOffset,
		geometry:          indirection.Geometry{Width: desc.Width, Height: desc.Height, PageSize: page},
		params: slicecache.Params{
			Format:   desc.Type.Format(),
			PageSize: page,
			Border:   m.cfg.BorderSize,
		},
	}

	m.texMu.Lock()
	m.textures[id] = tex
	m.texMu.Unlock()

	m.logger.Info("texture registered", "id", id, "type", desc.Type,
		"width", desc.Width, "height", desc.Height, "mips", tex.MipCount(), "slices", tex.SliceCount())
	return id, nil
}

// validateTexture reports why desc cannot be registered.
func (m *Manager) validateTexture(desc TextureDesc) error {
	page := m.cfg.PageSize
	if !desc.Type.valid() {
		return fmt.Errorf("%w: texture type %v", ErrConfiguration, desc.Type)
	}
	if desc.Width < page || desc.Height < page || desc.Width%page != 0 || desc.Height%page != 0 {
		return fmt.Errorf("%w: %dx%d is not a multiple of page size %d",
			ErrConfiguration, desc.Width, desc.Height, page)
	}
	if desc.Width/page > feedback.MaxSlicesPerSide || desc.Height/page > feedback.MaxSlicesPerSide {
		return fmt.Errorf("%w: %dx%d has more than %d slices per side at page size %d",
			ErrConfiguration, desc.Width, desc.Height, feedback.MaxSlicesPerSide, page)
	}
	if desc.Folder == "" {
		return fmt.Errorf("%w: texture has no slice folder", ErrConfiguration)
	}
	return nil
}

// Texture returns a copy of a registered texture.
func (m *Manager) Texture(id TextureID) (LogicalTexture, bool) {
	m.texMu.RLock()
	defer m.texMu.RUnlock()
	t, ok := m.textures[id]
	if !ok {
		return LogicalTexture{}, false
	}
	return *t, true
}

func (m *Manager) texture(id TextureID) *LogicalTexture {
	m.texMu.RLock()
	defer m.texMu.RUnlock()
	return m.textures[id]
}

// AddTextureSet appends a texture set. The index is provisional until the
// next Update.
func (m *Manager) AddTextureSet(info TextureSetGPUInfo) uint32 {
	return m.tables.AddTextureSet(info)
}

// AddMaterial appends a material. The index is provisional until the next
// Update.
func (m *Manager) AddMaterial(info MaterialGPUInfo) uint32 {
	return m.tables.AddMaterial(info)
}

// Update runs one residency step for frameIndex: drain feedback, resolve a
// bounded batch of requests, evict and upload slices, write indirection
// entries and flush the GPU tables.
//
// Rejected requests are counted in FrameStats; the returned error is only
// non-nil for failures the manager cannot recover from.
func (m *Manager) Update(frameIndex uint64) (FrameStats, error) {
	start := m.clock()
	m.frame = frameIndex
	stats := FrameStats{Frame: frameIndex}

	records, n, err := m.DrainFeedback()
	if err != nil {
		return stats, err
	}
	stats.Drained = n

	batch := m.ResolveRequests(records, m.cfg.MaxRequestsPerFrame)
	stats.Duplicates = batch.Duplicates
	stats.Dropped = batch.Dropped
	stats.Prefetched = batch.Prefetched

	for _, req := range batch.Requests {
		stats.Processed++
		res, err := m.processRequest(req, frameIndex)
		stats.Evicted += res.evicted
		stats.IndirectionWrites += res.indirectionWrites
		if res.uploaded {
			stats.Uploaded++
		}
		if res.resident {
			stats.AlreadyResident++
		}
		if err == nil {
			continue
		}
		var rerr *RequestError
		if !errors.As(err, &rerr) {
			return stats, err
		}
		stats.Rejected[rerr.Reason]++
		m.logReject(rerr)
	}

	regrown, err := m.tables.UpdateBeforeFrame()
	if err != nil {
		return stats, err
	}
	stats.TablesRegrown = regrown

	stats.Duration = m.clock() - start
	m.logger.Debug("vtex frame",
		"frame", frameIndex, "drained", stats.Drained, "processed", stats.Processed,
		"uploaded", stats.Uploaded, "evicted", stats.Evicted, "rejected", stats.TotalRejected(),
		"duration", stats.Duration)
	return stats, nil
}

func (m *Manager) logReject(e *RequestError) {
	switch e.Reason {
	case RejectCacheMiss, RejectFormatMismatch, RejectExhausted:
		m.logger.Warn("slice request rejected", "request", e.Request, "reason", e.Reason, "err", e.Err)
	default:
		m.logger.Debug("slice request rejected", "request", e.Request, "reason", e.Reason, "err", e.Err)
	}
}
