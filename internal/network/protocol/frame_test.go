package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/nodemesh-go/pkg/wire"
)

func TestFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    *Packet
	}{
		{
			name: "plain",
			p:    New(ChannelRPC, wire.NewBuffer().WriteString("body")),
		},
		{
			name: "query",
			p: &Packet{
				Channel:  ChannelAuthorization,
				UniqueID: uuid.New(),
				Header:   wire.NewBuffer().WriteInt32(7),
				Body:     wire.NewBuffer().WriteBool(true),
			},
		},
		{
			name: "empty body",
			p:    &Packet{Channel: ChannelNodeSnapshot},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tt.p))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.p.Channel, got.Channel)
			assert.Equal(t, tt.p.UniqueID, got.UniqueID)
			assert.Equal(t, bufferBytes(tt.p.Header), nilIfEmpty(got.Header.Bytes()))
			assert.Equal(t, bufferBytes(tt.p.Body), nilIfEmpty(got.Body.Bytes()))
			assert.Equal(t, 0, buf.Len())
		})
	}
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func TestFrame_Layout(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0001-0000-000000000002")
	p := &Packet{Channel: 3, UniqueID: id, Body: wire.FromBytes([]byte{0xAA})}

	frame, err := Encode(p)
	require.NoError(t, err)

	b := wire.FromBytes(frame)
	assert.Equal(t, int32(len(frame)-4), b.ReadInt32())
	assert.Equal(t, int16(Magic), b.ReadInt16())
	v, _ := b.ReadByte()
	assert.Equal(t, Version, v)
	assert.Equal(t, int32(3), b.ReadInt32())
	assert.True(t, b.ReadBool())
	assert.Equal(t, int64(1), b.ReadInt64())
	assert.Equal(t, int64(2), b.ReadInt64())
	assert.Equal(t, int32(0), b.ReadInt32())
	assert.Equal(t, []byte{0xAA}, b.ReadBytes())
	require.NoError(t, b.Err())
}

func TestFrame_MalformedIsSkipped(t *testing.T) {
	var stream bytes.Buffer

	// a frame whose body length claims more than the frame holds
	bad := make([]byte, 0, 32)
	bad = binary.BigEndian.AppendUint16(bad, Magic)
	bad = append(bad, Version)
	bad = binary.BigEndian.AppendUint32(bad, uint32(ChannelRPC))
	bad = append(bad, 0)
	bad = binary.BigEndian.AppendUint32(bad, 0)
	bad = binary.BigEndian.AppendUint32(bad, 1000)
	bad = append(bad, 1, 2, 3)
	stream.Write(binary.BigEndian.AppendUint32(nil, uint32(len(bad))))
	stream.Write(bad)

	good := New(ChannelRPC, wire.NewBuffer().WriteString("after"))
	require.NoError(t, WriteFrame(&stream, good))

	_, err := ReadFrame(&stream)
	require.ErrorIs(t, err, ErrMalformedFrame)
	assert.True(t, IsRecoverable(err))

	got, err := ReadFrame(&stream)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Body.ReadString())
}

func TestFrame_Fatal(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		r := bytes.NewReader(binary.BigEndian.AppendUint32(nil, MaxFrameSize+1))
		_, err := ReadFrame(r)
		assert.ErrorIs(t, err, ErrFrameTooLarge)
		assert.False(t, IsRecoverable(err))
	})

	t.Run("bad magic", func(t *testing.T) {
		payload := []byte{0x00, 0x01, Version, 0, 0, 0, 0}
		r := bytes.NewReader(append(binary.BigEndian.AppendUint32(nil, uint32(len(payload))), payload...))
		_, err := ReadFrame(r)
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("version", func(t *testing.T) {
		payload := binary.BigEndian.AppendUint16(nil, Magic)
		payload = append(payload, Version+1)
		_, err := Decode(payload)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("truncated stream", func(t *testing.T) {
		frame, err := Encode(New(ChannelRPC, wire.NewBuffer().WriteInt64(1)))
		require.NoError(t, err)
		_, err = ReadFrame(bytes.NewReader(frame[:len(frame)-3]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("eof", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(nil))
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestNewResponse(t *testing.T) {
	req := New(ChannelRPC, nil)
	req.UniqueID = uuid.New()

	resp := NewResponse(req, wire.NewBuffer().WriteBool(true))
	assert.True(t, resp.IsResponse())
	assert.Equal(t, req.UniqueID, resp.UniqueID)
	assert.False(t, req.IsResponse())
	assert.True(t, req.HasUniqueID())
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "rpc", ChannelName(ChannelRPC))
	assert.Equal(t, "response", ChannelName(ChannelResponse))
	assert.Equal(t, "custom", ChannelName(99))
}
