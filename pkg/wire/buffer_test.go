package wire

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_Scalars(t *testing.T) {
	id := uuid.New()

	b := NewBuffer()
	b.WriteBool(true).WriteBool(false)
	require.NoError(t, b.WriteByte(0x7f))
	b.WriteInt16(-2).
		WriteInt32(42).
		WriteInt64(-1 << 40).
		WriteFloat32(1.5).
		WriteFloat64(-2.25).
		WriteString("hello, wörld").
		WriteBytes([]byte{1, 2, 3}).
		WriteUUID(id).
		WriteEnum(2)

	assert.True(t, b.ReadBool())
	assert.False(t, b.ReadBool())
	by, err := b.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x7f), by)
	assert.Equal(t, int16(-2), b.ReadInt16())
	assert.Equal(t, int32(42), b.ReadInt32())
	assert.Equal(t, int64(-1<<40), b.ReadInt64())
	assert.Equal(t, float32(1.5), b.ReadFloat32())
	assert.Equal(t, -2.25, b.ReadFloat64())
	assert.Equal(t, "hello, wörld", b.ReadString())
	assert.Equal(t, []byte{1, 2, 3}, b.ReadBytes())
	assert.Equal(t, id, b.ReadUUID())
	assert.Equal(t, int32(2), b.ReadEnum(3))
	require.NoError(t, b.Err())
	assert.Equal(t, 0, b.Readable())
}

func TestBuffer_UUIDLayout(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0001-0000-000000000002")
	b := NewBuffer().WriteUUID(id)

	// two big-endian int64 values, most significant half first
	assert.Equal(t, int64(1), b.ReadInt64())
	assert.Equal(t, int64(2), b.ReadInt64())
}

func TestBuffer_ReadPastEnd(t *testing.T) {
	b := NewBuffer().WriteInt16(1)

	assert.Equal(t, int32(0), b.ReadInt32())
	assert.ErrorIs(t, b.Err(), ErrShortBuffer)

	// sticky: later reads keep returning zero values
	assert.Equal(t, "", b.ReadString())
	assert.ErrorIs(t, b.Err(), ErrShortBuffer)
}

func TestBuffer_Reset(t *testing.T) {
	b := NewBuffer().WriteString("again")

	assert.Equal(t, "again", b.ReadString())
	_ = b.ReadInt32()
	require.Error(t, b.Err())

	b.Reset()
	assert.NoError(t, b.Err())
	assert.Equal(t, "again", b.ReadString())
}

func TestBuffer_LengthValidation(t *testing.T) {
	tests := []struct {
		name   string
		length int32
		want   error
	}{
		{name: "negative", length: -1, want: ErrNegativeLength},
		{name: "too large", length: MaxLength + 1, want: ErrLengthExceeded},
		{name: "truncated", length: 10, want: ErrShortBuffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer().WriteInt32(tt.length)
			_ = b.ReadString()
			assert.True(t, errors.Is(b.Err(), tt.want), "got %v", b.Err())
		})
	}
}

func TestBuffer_InvalidUTF8(t *testing.T) {
	b := NewBuffer().WriteBytes([]byte{0xff, 0xfe})
	_ = b.ReadString()
	assert.ErrorIs(t, b.Err(), ErrInvalidUTF8)
}

func TestBuffer_UnknownEnum(t *testing.T) {
	b := NewBuffer().WriteEnum(5).WriteString("tail")

	assert.Equal(t, int32(0), b.ReadEnum(3))
	assert.ErrorIs(t, b.Err(), ErrUnknownEnum)
}

func TestBuffer_NestedBuffer(t *testing.T) {
	inner := NewBuffer().WriteString("inner").WriteInt32(7)
	outer := NewBuffer().WriteBuffer(inner).WriteBool(true)

	got := outer.ReadBuffer()
	assert.True(t, outer.ReadBool())
	require.NoError(t, outer.Err())

	assert.Equal(t, "inner", got.ReadString())
	assert.Equal(t, int32(7), got.ReadInt32())
	require.NoError(t, got.Err())

	empty := NewBuffer().WriteBuffer(nil)
	assert.Equal(t, 0, empty.ReadBuffer().Len())
}

func TestBuffer_Copy(t *testing.T) {
	b := NewBuffer().WriteInt32(1)
	_ = b.ReadInt32()

	c := b.Copy()
	b.Bytes()[0] = 0xff

	assert.Equal(t, int32(1), c.ReadInt32())
}

func TestSlices(t *testing.T) {
	b := NewBuffer()
	WriteSlice(b, []string{"a", "bb", "ccc"}, func(b *Buffer, s string) { b.WriteString(s) })
	WriteSlice(b, []int32{}, func(b *Buffer, v int32) { b.WriteInt32(v) })

	assert.Equal(t, []string{"a", "bb", "ccc"}, ReadSlice(b, (*Buffer).ReadString))
	assert.Empty(t, ReadSlice(b, (*Buffer).ReadInt32))
	require.NoError(t, b.Err())
}

func TestReadSlice_Truncated(t *testing.T) {
	b := NewBuffer().WriteInt32(3).WriteString("only-one")

	got := ReadSlice(b, (*Buffer).ReadString)
	assert.Equal(t, []string{"only-one"}, got)
	assert.ErrorIs(t, b.Err(), ErrShortBuffer)
}
