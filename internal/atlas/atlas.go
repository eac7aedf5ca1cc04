// Package atlas implements the physical page atlases of the virtual-texture
// system.
//
// An atlas is one square GPU texture divided into a grid of equally sized
// slots. Each slot holds at most one slice and each resident slice occupies
// exactly one slot. Free slots are handed out lowest index first; when none
// are left the caller picks a victim from the least recently used list.
package atlas

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/vtex/gpucore"
)

// Atlas errors.
var (
	// ErrAtlasFull is returned when no free slot remains.
	ErrAtlasFull = errors.New("atlas: no free slot")

	// ErrInvalidSlot is returned for slot indices outside the grid.
	ErrInvalidSlot = errors.New("atlas: slot out of range")

	// ErrSlotFree is returned when releasing or writing a slot that holds nothing.
	ErrSlotFree = errors.New("atlas: slot not occupied")

	// ErrAlreadyResident is returned when acquiring a slot for a key that has one.
	ErrAlreadyResident = errors.New("atlas: key already resident")

	// ErrDataSize is returned when upload data does not match the region.
	ErrDataSize = errors.New("atlas: upload size mismatch")
)

// SlotSize returns the pixel size of a slot holding pages of pageSize with
// the given border, rounded up to the 4x4 block grid.
func SlotSize(pageSize, border int) int {
	return (pageSize + 2*border + 3) &^ 3
}

// slotState tracks one slot. element is nil while the slot is free.
type slotState[K comparable] struct {
	key      K
	lastUsed uint64
	element  *list.Element
}

// Stats reports atlas usage.
type Stats struct {
	Slots     int
	Resident  int
	Uploads   uint64
	Evictions uint64
}

// Atlas is one slot grid backed by a GPU texture. K identifies the slice
// held by a slot.
//
// Atlas is driven by the render thread and is not safe for concurrent use.
type Atlas[K comparable] struct {
	adapter gpucore.GPUAdapter
	logger  *slog.Logger

	index        uint32
	format       gpucore.TextureFormat
	slotsPerSide int
	slotSize     int
	texture      gpucore.TextureID

	slots []slotState[K]
	free  []uint32 // stack, lowest index on top
	byKey map[K]uint32

	// front = most recently used, back = least recently used
	lru *list.List

	uploads   uint64
	evictions uint64
}

// New creates an atlas of slotsPerSide^2 slots, each slotSize pixels
// square, and its backing texture.
func New[K comparable](adapter gpucore.GPUAdapter, index uint32, format gpucore.TextureFormat,
	slotsPerSide, slotSize int, logger *slog.Logger,
) (*Atlas[K], error) {
	if slotsPerSide <= 0 || slotSize <= 0 || slotSize%4 != 0 {
		return nil, fmt.Errorf("%w: %d slots of %d px", ErrInvalidSlot, slotsPerSide, slotSize)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	extent := slotsPerSide * slotSize
	tex, err := adapter.CreateTexture(extent, extent, format)
	if err != nil {
		return nil, fmt.Errorf("atlas: create %dx%d %v texture: %w", extent, extent, format, err)
	}

	n := slotsPerSide * slotsPerSide
	a := &Atlas[K]{
		adapter:      adapter,
		logger:       logger,
		index:        index,
		format:       format,
		slotsPerSide: slotsPerSide,
		slotSize:     slotSize,
		texture:      tex,
		slots:        make([]slotState[K], n),
		free:         make([]uint32, n),
		byKey:        make(map[K]uint32, n),
		lru:          list.New(),
	}
	for i := range a.free {
		a.free[i] = uint32(n - 1 - i)
	}
	logger.Info("atlas created", "index", index, "format", format, "slots", n, "extent", extent)
	return a, nil
}

// Index returns the atlas index encoded in indirection entries.
func (a *Atlas[K]) Index() uint32 { return a.index }

// Format returns the texture format of the atlas.
func (a *Atlas[K]) Format() gpucore.TextureFormat { return a.format }

// Texture returns the backing GPU texture.
func (a *Atlas[K]) Texture() gpucore.TextureID { return a.texture }

// SlotsPerSide returns the grid dimension.
func (a *Atlas[K]) SlotsPerSide() int { return a.slotsPerSide }

// SlotSize returns the pixel size of one slot.
func (a *Atlas[K]) SlotSize() int { return a.slotSize }

// Capacity returns the number of slots.
func (a *Atlas[K]) Capacity() int { return len(a.slots) }

// Free returns the number of unoccupied slots.
func (a *Atlas[K]) Free() int { return len(a.free) }

// Lookup returns the slot holding key.
func (a *Atlas[K]) Lookup(key K) (uint32, bool) {
	slot, ok := a.byKey[key]
	return slot, ok
}

// Occupant returns the key held by slot.
func (a *Atlas[K]) Occupant(slot uint32) (K, bool) {
	if int(slot) >= len(a.slots) || a.slots[slot].element == nil {
		var zero K
		return zero, false
	}
	return a.slots[slot].key, true
}

// AcquireSlot assigns a free slot to key and marks it used in frame.
func (a *Atlas[K]) AcquireSlot(key K, frame uint64) (uint32, error) {
	if slot, ok := a.byKey[key]; ok {
		return slot, fmt.Errorf("%w: slot %d", ErrAlreadyResident, slot)
	}
	if len(a.free) == 0 {
		return 0, fmt.Errorf("%w: atlas %d (%d slots)", ErrAtlasFull, a.index, len(a.slots))
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	s := &a.slots[slot]
	s.key = key
	s.lastUsed = frame
	s.element = a.lru.PushFront(slot)
	a.byKey[key] = slot
	return slot, nil
}

// ReleaseSlot frees slot. The caller must already have invalidated every
// indirection entry that references it.
func (a *Atlas[K]) ReleaseSlot(slot uint32) error {
	if int(slot) >= len(a.slots) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlot, slot, len(a.slots))
	}
	s := &a.slots[slot]
	if s.element == nil {
		return fmt.Errorf("%w: %d", ErrSlotFree, slot)
	}
	a.lru.Remove(s.element)
	delete(a.byKey, s.key)
	*s = slotState[K]{}
	a.free = append(a.free, slot)
	return nil
}

// Touch marks slot as used in frame.
func (a *Atlas[K]) Touch(slot uint32, frame uint64) {
	if int(slot) >= len(a.slots) || a.slots[slot].element == nil {
		return
	}
	s := &a.slots[slot]
	s.lastUsed = frame
	a.lru.MoveToFront(s.element)
}

// Victim returns the least recently used slot that was not used in frame.
// ok is false when every occupied slot was used in frame.
func (a *Atlas[K]) Victim(frame uint64) (slot uint32, key K, ok bool) {
	back := a.lru.Back()
	if back == nil {
		return 0, key, false
	}
	slot = back.Value.(uint32)
	s := a.slots[slot]
	if s.lastUsed >= frame {
		return 0, key, false
	}
	return slot, s.key, true
}

// Evict releases the victim slot and counts it as an eviction.
func (a *Atlas[K]) Evict(slot uint32) error {
	if err := a.ReleaseSlot(slot); err != nil {
		return err
	}
	a.evictions++
	return nil
}

// SlotOrigin returns the top-left pixel of slot within the atlas texture.
func (a *Atlas[K]) SlotOrigin(slot uint32) (x, y int) {
	col := int(slot) % a.slotsPerSide
	row := int(slot) / a.slotsPerSide
	return col * a.slotSize, row * a.slotSize
}

// UploadSlotData writes a width x height block-compressed window into the
// top-left corner of an occupied slot.
func (a *Atlas[K]) UploadSlotData(slot uint32, data []byte, width, height int) error {
	if int(slot) >= len(a.slots) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlot, slot, len(a.slots))
	}
	if a.slots[slot].element == nil {
		return fmt.Errorf("%w: %d", ErrSlotFree, slot)
	}
	if width <= 0 || height <= 0 || width > a.slotSize || height > a.slotSize {
		return fmt.Errorf("%w: %dx%d window in %d px slot", ErrDataSize, width, height, a.slotSize)
	}
	if want := a.format.ByteSize(width, height); len(data) != want {
		return fmt.Errorf("%w: %d bytes, %dx%d %v needs %d", ErrDataSize, len(data), width, height, a.format, want)
	}

	x, y := a.SlotOrigin(slot)
	a.adapter.WriteTexture(a.texture, gpucore.TextureRegion{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}, data)
	a.uploads++
	return nil
}

// Stats returns usage counters.
func (a *Atlas[K]) Stats() Stats {
	return Stats{
		Slots:     len(a.slots),
		Resident:  len(a.byKey),
		Uploads:   a.uploads,
		Evictions: a.evictions,
	}
}

// Destroy releases the backing texture.
func (a *Atlas[K]) Destroy() {
	if a.texture != gpucore.InvalidID {
		a.adapter.DestroyTexture(a.texture)
		a.texture = gpucore.InvalidID
	}
}
