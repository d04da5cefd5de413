// Package wire provides the binary codec shared by every NodeMesh protocol.
//
// A Buffer is a growable byte container with independent read and write
// cursors. All multi-byte values are big-endian. Reads use a sticky error:
// the first failure is recorded, later reads return zero values, and Err
// reports what went wrong. This keeps decoders linear:
//
//	name := buf.ReadString()
//	port := buf.ReadInt32()
//	if err := buf.Err(); err != nil {
//		return err
//	}
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxLength is the largest string or byte array a Buffer will decode.
const MaxLength = 64 * 1024 * 1024

var (
	// ErrShortBuffer is recorded when a read goes past the written extent.
	ErrShortBuffer = errors.New("wire: read past end of buffer")

	// ErrNegativeLength is recorded when a length prefix is negative.
	ErrNegativeLength = errors.New("wire: negative length prefix")

	// ErrLengthExceeded is recorded when a length prefix exceeds MaxLength.
	ErrLengthExceeded = errors.New("wire: length prefix exceeds limit")

	// ErrInvalidUTF8 is recorded when a string payload is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("wire: invalid utf-8 string")

	// ErrUnknownEnum is recorded when an enum ordinal is outside the known range.
	ErrUnknownEnum = errors.New("wire: unknown enum ordinal")
)

// Buffer is a byte buffer with separate read and write positions.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data []byte
	off  int
	err  error
}

// NewBuffer returns an empty buffer ready for writing.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, 64)}
}

// FromBytes returns a buffer whose readable content is b.
// The buffer takes ownership of b.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the full written content, independent of the read cursor.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of written bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Readable returns the number of bytes left to read.
func (b *Buffer) Readable() int {
	return len(b.data) - b.off
}

// Reset rewinds the read cursor and clears the sticky error so the content
// can be read again from the start.
func (b *Buffer) Reset() {
	b.off = 0
	b.err = nil
}

// Err returns the first read error, if any.
func (b *Buffer) Err() error {
	return b.err
}

// Fail records err as the sticky error unless one is already set.
// Decoders use it to report semantic failures through the same channel.
func (b *Buffer) Fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Copy returns an independent buffer with the same content and a fresh
// read cursor.
func (b *Buffer) Copy() *Buffer {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return &Buffer{data: out}
}

// ---------------------------------------------------------------------------
// writers
// ---------------------------------------------------------------------------

// WriteBool writes a single byte, 1 for true.
func (b *Buffer) WriteBool(v bool) *Buffer {
	if v {
		b.data = append(b.data, 1)
	} else {
		b.data = append(b.data, 0)
	}
	return b
}

// WriteByte writes one byte. It never fails; the error satisfies io.ByteWriter.
func (b *Buffer) WriteByte(v byte) error {
	b.data = append(b.data, v)
	return nil
}

// WriteInt16 writes a big-endian int16.
func (b *Buffer) WriteInt16(v int16) *Buffer {
	b.data = binary.BigEndian.AppendUint16(b.data, uint16(v))
	return b
}

// WriteInt32 writes a big-endian int32.
func (b *Buffer) WriteInt32(v int32) *Buffer {
	b.data = binary.BigEndian.AppendUint32(b.data, uint32(v))
	return b
}

// WriteInt64 writes a big-endian int64.
func (b *Buffer) WriteInt64(v int64) *Buffer {
	b.data = binary.BigEndian.AppendUint64(b.data, uint64(v))
	return b
}

// WriteFloat32 writes the IEEE 754 bits of v.
func (b *Buffer) WriteFloat32(v float32) *Buffer {
	b.data = binary.BigEndian.AppendUint32(b.data, math.Float32bits(v))
	return b
}

// WriteFloat64 writes the IEEE 754 bits of v.
func (b *Buffer) WriteFloat64(v float64) *Buffer {
	b.data = binary.BigEndian.AppendUint64(b.data, math.Float64bits(v))
	return b
}

// WriteString writes an int32 byte length followed by the UTF-8 bytes.
func (b *Buffer) WriteString(s string) *Buffer {
	b.WriteInt32(int32(len(s)))
	b.data = append(b.data, s...)
	return b
}

// WriteBytes writes an int32 length followed by p.
func (b *Buffer) WriteBytes(p []byte) *Buffer {
	b.WriteInt32(int32(len(p)))
	b.data = append(b.data, p...)
	return b
}

// WriteRaw appends p without a length prefix.
func (b *Buffer) WriteRaw(p []byte) *Buffer {
	b.data = append(b.data, p...)
	return b
}

// WriteUUID writes id as two int64 values, most significant half first.
func (b *Buffer) WriteUUID(id uuid.UUID) *Buffer {
	b.data = append(b.data, id[:]...)
	return b
}

// WriteEnum writes an enum ordinal as int32.
func (b *Buffer) WriteEnum(ordinal int32) *Buffer {
	return b.WriteInt32(ordinal)
}

// WriteBuffer writes the full content of other as a length-prefixed block.
// A nil buffer is written as an empty block.
func (b *Buffer) WriteBuffer(other *Buffer) *Buffer {
	if other == nil {
		return b.WriteInt32(0)
	}
	return b.WriteBytes(other.data)
}

// ---------------------------------------------------------------------------
// readers
// ---------------------------------------------------------------------------

func (b *Buffer) take(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n > len(b.data)-b.off {
		b.err = fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, len(b.data)-b.off)
		return nil
	}
	p := b.data[b.off : b.off+n]
	b.off += n
	return p
}

// ReadBool reads a single byte; any non-zero value is true.
func (b *Buffer) ReadBool() bool {
	p := b.take(1)
	return p != nil && p[0] != 0
}

// ReadByte reads one byte and satisfies io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	p := b.take(1)
	if p == nil {
		return 0, b.err
	}
	return p[0], nil
}

// ReadInt16 reads a big-endian int16.
func (b *Buffer) ReadInt16() int16 {
	p := b.take(2)
	if p == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(p))
}

// ReadInt32 reads a big-endian int32.
func (b *Buffer) ReadInt32() int32 {
	p := b.take(4)
	if p == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(p))
}

// ReadInt64 reads a big-endian int64.
func (b *Buffer) ReadInt64() int64 {
	p := b.take(8)
	if p == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(p))
}

// ReadFloat32 reads an IEEE 754 float32.
func (b *Buffer) ReadFloat32() float32 {
	p := b.take(4)
	if p == nil {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(p))
}

// ReadFloat64 reads an IEEE 754 float64.
func (b *Buffer) ReadFloat64() float64 {
	p := b.take(8)
	if p == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(p))
}

// readLength reads and validates an int32 length prefix.
func (b *Buffer) readLength() int {
	n := b.ReadInt32()
	if b.err != nil {
		return 0
	}
	if n < 0 {
		b.err = fmt.Errorf("%w: %d", ErrNegativeLength, n)
		return 0
	}
	if n > MaxLength {
		b.err = fmt.Errorf("%w: %d", ErrLengthExceeded, n)
		return 0
	}
	return int(n)
}

// ReadString reads a length-prefixed UTF-8 string.
func (b *Buffer) ReadString() string {
	n := b.readLength()
	p := b.take(n)
	if p == nil {
		return ""
	}
	if !utf8.Valid(p) {
		b.Fail(ErrInvalidUTF8)
		return ""
	}
	return string(p)
}

// ReadBytes reads a length-prefixed byte array. The result is a copy.
func (b *Buffer) ReadBytes() []byte {
	n := b.readLength()
	p := b.take(n)
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

// ReadUUID reads a UUID written by WriteUUID.
func (b *Buffer) ReadUUID() uuid.UUID {
	var id uuid.UUID
	if p := b.take(16); p != nil {
		copy(id[:], p)
	}
	return id
}

// ReadEnum reads an int32 ordinal and checks it against count known
// constants. An out-of-range ordinal records ErrUnknownEnum.
func (b *Buffer) ReadEnum(count int32) int32 {
	v := b.ReadInt32()
	if b.err != nil {
		return 0
	}
	if v < 0 || v >= count {
		b.err = fmt.Errorf("%w: %d not in [0,%d)", ErrUnknownEnum, v, count)
		return 0
	}
	return v
}

// ReadBuffer reads a block written by WriteBuffer into a new buffer.
func (b *Buffer) ReadBuffer() *Buffer {
	p := b.ReadBytes()
	if p == nil {
		return NewBuffer()
	}
	return FromBytes(p)
}

// ---------------------------------------------------------------------------
// collections
// ---------------------------------------------------------------------------

// WriteSlice writes len(items) as int32 followed by each element.
func WriteSlice[T any](b *Buffer, items []T, write func(*Buffer, T)) {
	b.WriteInt32(int32(len(items)))
	for _, it := range items {
		write(b, it)
	}
}

// ReadSlice reads a collection written by WriteSlice. It stops at the first
// read error and returns what was decoded so far.
func ReadSlice[T any](b *Buffer, read func(*Buffer) T) []T {
	n := b.readLength()
	if b.err != nil {
		return nil
	}
	// cap the preallocation; a hostile count must not force a huge alloc
	out := make([]T, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		v := read(b)
		if b.err != nil {
			return out
		}
		out = append(out, v)
	}
	return out
}
