// Package feedback reads the page request buffer written by the sampling
// shader.
//
// Buffer layout (little endian):
//
//	offset 0   u32 record count (atomically incremented on the GPU)
//	offset 4   u32 padding
//	offset 8   records, 8 bytes each:
//	           u16 texture id, u8 mip, u8 slice x, u8 slice y, 3 bytes padding
//
// The count may exceed the capacity when the shader ran out of room; the
// surplus requests are lost and counted as overflow.
package feedback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/gogpu/vtex/gpucore"
)

const (
	// HeaderSize is the byte offset of the first record.
	HeaderSize = 8

	// RecordSize is the stride of one record.
	RecordSize = 8

	// MaxSlicesPerSide bounds the slice coordinates a record can carry.
	MaxSlicesPerSide = 256
)

// ErrShortRecord is returned when decoding fewer than RecordSize bytes.
var ErrShortRecord = errors.New("feedback: short record")

// Record is one page request.
type Record struct {
	TextureID uint16
	Mip       uint8
	SliceX    uint8
	SliceY    uint8
}

// String returns a compact representation of the record.
func (r Record) String() string {
	return fmt.Sprintf("tex%d/mip%d/%d,%d", r.TextureID, r.Mip, r.SliceX, r.SliceY)
}

// PutRecord encodes r into dst[:RecordSize].
func PutRecord(dst []byte, r Record) {
	binary.LittleEndian.PutUint16(dst[0:2], r.TextureID)
	dst[2] = r.Mip
	dst[3] = r.SliceX
	dst[4] = r.SliceY
	dst[5], dst[6], dst[7] = 0, 0, 0
}

// DecodeRecord decodes one record.
func DecodeRecord(src []byte) (Record, error) {
	if len(src) < RecordSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(src))
	}
	return Record{
		TextureID: binary.LittleEndian.Uint16(src[0:2]),
		Mip:       src[2],
		SliceX:    src[3],
		SliceY:    src[4],
	}, nil
}

// EncodeBuffer returns the buffer image holding records, as the sampling
// shader would leave it.
func EncodeBuffer(records []Record) []byte {
	out := make([]byte, HeaderSize+len(records)*RecordSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(records)))
	for i, r := range records {
		PutRecord(out[HeaderSize+i*RecordSize:], r)
	}
	return out
}

// Buffer owns the GPU feedback buffer.
//
// Buffer is driven by the render thread and is not safe for concurrent use.
type Buffer struct {
	adapter  gpucore.GPUAdapter
	logger   *slog.Logger
	buffer   gpucore.BufferID
	capacity int

	drained  uint64
	overflow uint64
}

// NewBuffer creates a feedback buffer holding up to capacity records.
func NewBuffer(adapter gpucore.GPUAdapter, capacity int, logger *slog.Logger) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("feedback: invalid capacity %d", capacity)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := HeaderSize + capacity*RecordSize
	buf, err := adapter.CreateBuffer(size,
		gpucore.BufferUsageStorage|gpucore.BufferUsageCopySrc|gpucore.BufferUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("feedback: create buffer (%d bytes): %w", size, err)
	}
	return &Buffer{adapter: adapter, logger: logger, buffer: buf, capacity: capacity}, nil
}

// Buffer returns the GPU buffer.
func (b *Buffer) Buffer() gpucore.BufferID { return b.buffer }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return uint64(HeaderSize + b.capacity*RecordSize) }

// Capacity returns the number of records the buffer holds.
func (b *Buffer) Capacity() int { return b.capacity }

// Overflow returns the total number of requests lost to a full buffer.
func (b *Buffer) Overflow() uint64 { return b.overflow }

// Drain reads back the records written since the previous Drain and
// resets the counter. The clear is queued before Drain returns, so records
// are consumed exactly once. The returned sequence iterates a snapshot and
// may be ranged over more than once.
func (b *Buffer) Drain() (iter.Seq[Record], int, error) {
	data, err := b.adapter.ReadBuffer(b.buffer, 0, b.Size())
	if err != nil {
		return nil, 0, fmt.Errorf("feedback: read back: %w", err)
	}

	count := int(binary.LittleEndian.Uint32(data[0:4]))
	if count > b.capacity {
		lost := count - b.capacity
		b.overflow += uint64(lost)
		b.logger.Warn("feedback buffer overflow", "written", count, "capacity", b.capacity, "lost", lost)
		count = b.capacity
	}
	if count > 0 {
		var zero [4]byte
		b.adapter.WriteBuffer(b.buffer, 0, zero[:])
	}
	b.drained += uint64(count)

	records := data[HeaderSize : HeaderSize+count*RecordSize]
	seq := func(yield func(Record) bool) {
		for i := 0; i < count; i++ {
			r, _ := DecodeRecord(records[i*RecordSize:])
			if !yield(r) {
				return
			}
		}
	}
	return seq, count, nil
}

// Destroy releases the GPU buffer.
func (b *Buffer) Destroy() {
	if b.buffer != gpucore.InvalidID {
		b.adapter.DestroyBuffer(b.buffer)
		b.buffer = gpucore.InvalidID
	}
}
