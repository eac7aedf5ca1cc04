package indirection

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/vtex/gpucore"
)

// Entry encoding.
const (
	// NotResident marks an entry whose slice has no atlas slot.
	NotResident uint32 = 0xFFFFFFFF

	// UnallocatedOffset marks a texture that has no region yet.
	UnallocatedOffset uint32 = 0xFFFFFFFF

	// MaxSlot is the largest slot index an entry can encode.
	MaxSlot = 1<<24 - 1

	// MaxAtlas is the largest atlas index an entry can encode.
	MaxAtlas = 0xFE

	entryBytes = 4
)

// Errors returned by the table.
var (
	// ErrOutOfRange is returned for slice coordinates or indices outside a region.
	ErrOutOfRange = errors.New("indirection: out of range")

	// ErrInvalidEntry is returned when an atlas or slot cannot be encoded.
	ErrInvalidEntry = errors.New("indirection: invalid entry")
)

// EncodeEntry packs an atlas index and slot into an entry.
func EncodeEntry(atlas, slot uint32) uint32 {
	return atlas<<24 | slot&MaxSlot
}

// DecodeEntry unpacks an entry. ok is false for NotResident.
func DecodeEntry(e uint32) (atlas, slot uint32, ok bool) {
	if e == NotResident {
		return 0, 0, false
	}
	return e >> 24, e & MaxSlot, true
}

// Table is the indirection table. It is driven by the render thread and is
// not safe for concurrent use.
type Table struct {
	adapter gpucore.GPUAdapter
	logger  *slog.Logger

	buffer     gpucore.BufferID
	entries    []uint32
	next       uint32
	generation uint64
}

// NewTable creates a table with room for capacity entries. All entries
// start NotResident on both the CPU and the GPU.
func NewTable(adapter gpucore.GPUAdapter, capacity int, logger *slog.Logger) (*Table, error) {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Table{adapter: adapter, logger: logger}
	if err := t.realloc(capacity); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateNewIndirection reserves a region of sliceCount entries and returns
// its offset. The GPU buffer grows when the region does not fit.
func (t *Table) CreateNewIndirection(sliceCount int) (uint32, error) {
	if sliceCount <= 0 {
		return UnallocatedOffset, fmt.Errorf("%w: slice count %d", ErrOutOfRange, sliceCount)
	}
	need := int(t.next) + sliceCount
	if need > len(t.entries) {
		if err := t.realloc(max(need, len(t.entries)*2)); err != nil {
			return UnallocatedOffset, err
		}
	}
	offset := t.next
	t.next += uint32(sliceCount)
	t.logger.Debug("indirection region allocated",
		"offset", offset, "slices", sliceCount, "used", t.next, "capacity", len(t.entries))
	return offset, nil
}

// EntryOffset returns the absolute entry index of a slice in the region
// starting at regionOffset.
func EntryOffset(regionOffset uint32, g Geometry, mip, sliceX, sliceY int) (uint32, error) {
	if regionOffset == UnallocatedOffset {
		return 0, fmt.Errorf("%w: region not allocated", ErrOutOfRange)
	}
	i, err := g.EntryIndex(mip, sliceX, sliceY)
	if err != nil {
		return 0, err
	}
	return regionOffset + uint32(i), nil
}

// WriteEntry marks index as resident in (atlas, slot) and pushes it.
func (t *Table) WriteEntry(index, atlas, slot uint32) error {
	if atlas > MaxAtlas || slot > MaxSlot {
		return fmt.Errorf("%w: atlas %d slot %d", ErrInvalidEntry, atlas, slot)
	}
	return t.set(index, EncodeEntry(atlas, slot))
}

// InvalidateEntry marks index NotResident and pushes it.
func (t *Table) InvalidateEntry(index uint32) error {
	return t.set(index, NotResident)
}

// Entry returns the CPU copy of an entry. Indices outside allocated
// regions read as NotResident.
func (t *Table) Entry(index uint32) uint32 {
	if index >= t.next {
		return NotResident
	}
	return t.entries[index]
}

// Buffer returns the GPU storage buffer.
func (t *Table) Buffer() gpucore.BufferID { return t.buffer }

// Size returns the buffer size in bytes.
func (t *Table) Size() uint64 { return uint64(len(t.entries)) * entryBytes }

// Used returns the number of allocated entries.
func (t *Table) Used() int { return int(t.next) }

// Capacity returns the number of entries the buffer holds.
func (t *Table) Capacity() int { return len(t.entries) }

// Generation changes every time the GPU buffer is replaced.
func (t *Table) Generation() uint64 { return t.generation }

// Destroy releases the GPU buffer.
func (t *Table) Destroy() {
	if t.buffer != gpucore.InvalidID {
		t.adapter.DestroyBuffer(t.buffer)
		t.buffer = gpucore.InvalidID
	}
}

func (t *Table) set(index, value uint32) error {
	if index >= t.next {
		return fmt.Errorf("%w: entry %d, %d allocated", ErrOutOfRange, index, t.next)
	}
	t.entries[index] = value
	var buf [entryBytes]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	t.adapter.WriteBuffer(t.buffer, uint64(index)*entryBytes, buf[:])
	return nil
}

// realloc replaces the GPU buffer with one of the given capacity and
// uploads the whole CPU mirror.
func (t *Table) realloc(capacity int) error {
	buf, err := t.adapter.CreateBuffer(capacity*entryBytes, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
	if err != nil {
		return fmt.Errorf("indirection: create buffer (%d entries): %w", capacity, err)
	}

	grown := make([]uint32, capacity)
	n := copy(grown, t.entries)
	for i := n; i < capacity; i++ {
		grown[i] = NotResident
	}
	t.entries = grown

	data := make([]byte, capacity*entryBytes)
	for i, e := range grown {
		binary.LittleEndian.PutUint32(data[i*entryBytes:], e)
	}
	t.adapter.WriteBuffer(buf, 0, data)

	if t.buffer != gpucore.InvalidID {
		t.adapter.DestroyBuffer(t.buffer)
		t.generation++
		t.logger.Info("indirection table grown", "capacity", capacity)
	}
	t.buffer = buf
	return nil
}
