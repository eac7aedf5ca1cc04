package vtex

import (
	"errors"
	"fmt"
	"iter"

	"github.com/gogpu/vtex/internal/atlas"
	"github.com/gogpu/vtex/internal/indirection"
	"github.com/gogpu/vtex/internal/slicecache"
)

// Batch is the ordered set of requests selected for one frame.
type Batch struct {
	// Requests holds unique primary requests in first-seen order followed
	// by coarser-mip prefetches, at most maxPerFrame in total.
	Requests []Request

	Duplicates int
	Dropped    int
	Prefetched int
}

// DrainFeedback reads back and clears the feedback buffer. It returns the
// records and their count.
func (m *Manager) DrainFeedback() (iter.Seq[Request], int, error) {
	seq, n, err := m.feedback.Drain()
	if err != nil {
		return nil, 0, fmt.Errorf("vtex: drain feedback: %w", err)
	}
	return seq, n, nil
}

// ResolveRequests deduplicates records and applies the per-frame throttle.
// Unique requests beyond maxPerFrame are dropped; they will be reported
// again by the shader if still needed. When prefetching is enabled the
// remaining budget is filled with the parents of the accepted requests
// that are valid and not yet resident.
func (m *Manager) ResolveRequests(records iter.Seq[Request], maxPerFrame int) Batch {
	var b Batch
	seen := make(map[Request]struct{})
	for r := range records {
		if _, dup := seen[r]; dup {
			b.Duplicates++
			continue
		}
		seen[r] = struct{}{}
		if len(b.Requests) >= maxPerFrame {
			b.Dropped++
			continue
		}
		b.Requests = append(b.Requests, r)
	}

	if !m.cfg.PrefetchCoarserMip {
		return b
	}
	primaries := len(b.Requests)
	for i := 0; i < primaries && len(b.Requests) < maxPerFrame; i++ {
		p, ok := m.parent(b.Requests[i])
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		b.Requests = append(b.Requests, p)
		b.Prefetched++
	}
	return b
}

// parent returns the next coarser slice covering r, when r names a known
// texture, the parent mip exists, and the parent is not resident.
func (m *Manager) parent(r Request) (Request, bool) {
	if r.TextureID < ReservedTextureCount || r.Mip == 0xFF {
		return Request{}, false
	}
	tex := m.texture(TextureID(r.TextureID))
	if tex == nil {
		return Request{}, false
	}
	p := Request{TextureID: r.TextureID, Mip: r.Mip + 1, SliceX: r.SliceX / 2, SliceY: r.SliceY / 2}
	if !tex.geometry.Contains(int(p.Mip), int(p.SliceX), int(p.SliceY)) {
		return Request{}, false
	}
	if _, ok := m.atlases[tex.Type].Lookup(p); ok {
		return Request{}, false
	}
	return p, true
}

type requestResult struct {
	resident          bool
	uploaded          bool
	evicted           int
	indirectionWrites int
}

// processRequest makes one slice resident. Validation and I/O happen
// before any state changes, so a rejected request leaves the manager
// untouched. Errors other than *RequestError are fatal.
func (m *Manager) processRequest(r Request, frame uint64) (requestResult, error) {
	var res requestResult

	if r.TextureID < ReservedTextureCount {
		return res, reject(r, RejectReserved, fmt.Errorf("%w: texture %d is reserved", ErrOutOfRange, r.TextureID))
	}
	tex := m.texture(TextureID(r.TextureID))
	if tex == nil {
		return res, reject(r, RejectUnknownTexture, fmt.Errorf("%w: texture %d not registered", ErrOutOfRange, r.TextureID))
	}
	mip, sx, sy := int(r.Mip), int(r.SliceX), int(r.SliceY)
	if !tex.geometry.Contains(mip, sx, sy) {
		return res, reject(r, RejectOutOfRange, fmt.Errorf("%w: mip %d slice (%d,%d), texture has %d mips",
			ErrOutOfRange, mip, sx, sy, tex.MipCount()))
	}

	at := m.atlases[tex.Type]
	if slot, ok := at.Lookup(r); ok {
		at.Touch(slot, frame)
		res.resident = true
		return res, nil
	}

	payload, err := m.store.Load(slicecache.Key{Folder: tex.Folder, Mip: mip, SliceX: sx, SliceY: sy}, tex.params)
	switch {
	case errors.Is(err, ErrCacheMiss):
		return res, reject(r, RejectCacheMiss, err)
	case errors.Is(err, ErrCacheFormatMismatch):
		return res, reject(r, RejectFormatMismatch, err)
	case err != nil:
		return res, reject(r, RejectCacheMiss, fmt.Errorf("%w: %w", ErrCacheMiss, err))
	}
	mw := indirection.MipExtent(tex.Width, mip)
	mh := indirection.MipExtent(tex.Height, mip)
	if want := tex.params.PayloadSize(mw, mh); len(payload) != want {
		return res, reject(r, RejectFormatMismatch, fmt.Errorf("%w: payload %d bytes, want %d",
			ErrCacheFormatMismatch, len(payload), want))
	}

	// Pick a victim before mutating anything.
	var victim *Request
	var victimSlot uint32
	if at.Free() == 0 {
		slot, key, ok := at.Victim(frame)
		if !ok {
			return res, reject(r, RejectExhausted, fmt.Errorf("%w: %v atlas full, every slice requested this frame",
				ErrResourceExhausted, tex.Type))
		}
		victim, victimSlot = &key, slot
	}

	// The region is allocated on the first upload and may grow the
	// indirection buffer; failure there is fatal.
	if !tex.Resident() {
		off, err := m.indirection.CreateNewIndirection(tex.SliceCount())
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrResourceCreation, err)
		}
		m.texMu.Lock()
		tex.IndirectionOffset = off
		m.texMu.Unlock()
		m.tables.SetIndirectionOffset(tex.ID, off)
	}

	if victim != nil {
		if err := m.evict(at, victimSlot, *victim); err != nil {
			return res, err
		}
		res.evicted++
		res.indirectionWrites++
	}

	slot, err := at.AcquireSlot(r, frame)
	if err != nil {
		return res, fmt.Errorf("vtex: acquire slot for %v: %w", r, err)
	}
	ww, wh := tex.params.Window(mw, mh)
	if err := at.UploadSlotData(slot, payload, ww, wh); err != nil {
		_ = at.ReleaseSlot(slot)
		return res, fmt.Errorf("vtex: upload %v: %w", r, err)
	}
	res.uploaded = true

	idx, err := indirection.EntryOffset(tex.IndirectionOffset, tex.geometry, mip, sx, sy)
	if err != nil {
		return res, err
	}
	if err := m.indirection.WriteEntry(idx, at.Index(), slot); err != nil {
		return res, err
	}
	res.indirectionWrites++
	return res, nil
}

// evict invalidates the indirection entry of the slice in slot and then
// frees the slot.
func (m *Manager) evict(at *atlas.Atlas[Request], slot uint32, key Request) error {
	owner := m.texture(TextureID(key.TextureID))
	if owner == nil {
		return fmt.Errorf("vtex: slot %d holds %v of an unknown texture", slot, key)
	}
	idx, err := indirection.EntryOffset(owner.IndirectionOffset, owner.geometry,
		int(key.Mip), int(key.SliceX), int(key.SliceY))
	if err != nil {
		return fmt.Errorf("vtex: evict %v: %w", key, err)
	}
	if err := m.indirection.InvalidateEntry(idx); err != nil {
		return fmt.Errorf("vtex: evict %v: %w", key, err)
	}
	if err := at.Evict(slot); err != nil {
		return fmt.Errorf("vtex: evict %v: %w", key, err)
	}
	m.logger.Debug("slice evicted", "request", key, "atlas", at.Index(), "slot", slot)
	return nil
}
