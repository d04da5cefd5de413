package transfer

import (
	"fmt"

	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// Chunk is one piece of a session.
type Chunk struct {
	Session Session
	Index   int32
	Final   bool
	// TotalChunks is only meaningful on the final chunk.
	TotalChunks int32
	Payload     []byte
}

// Offset is the position of the chunk's payload in the reassembled data.
func (c Chunk) Offset() int64 {
	return int64(c.Index) * int64(c.Session.ChunkSize)
}

// Encode writes c to b.
func (c Chunk) Encode(b *wire.Buffer) *wire.Buffer {
	b.WriteUUID(c.Session.ID).
		WriteInt32(c.Session.ChunkSize).
		WriteString(c.Session.TransferChannel).
		WriteBytes(c.Session.ExtraData).
		WriteInt32(c.Index).
		WriteBool(c.Final)
	if c.Final {
		b.WriteInt32(c.TotalChunks)
	}
	return b.WriteBytes(c.Payload)
}

// Packet wraps c into a packet on the chunked transfer channel.
func (c Chunk) Packet() *protocol.Packet {
	return protocol.New(protocol.ChannelChunkedTransfer, c.Encode(wire.NewBuffer()))
}

// DecodeChunk reads a chunk written by Encode and validates it.
func DecodeChunk(b *wire.Buffer) (Chunk, error) {
	var c Chunk
	c.Session.ID = b.ReadUUID()
	c.Session.ChunkSize = b.ReadInt32()
	c.Session.TransferChannel = b.ReadString()
	c.Session.ExtraData = b.ReadBytes()
	c.Index = b.ReadInt32()
	c.Final = b.ReadBool()
	if c.Final {
		c.TotalChunks = b.ReadInt32()
	}
	c.Payload = b.ReadBytes()
	if err := b.Err(); err != nil {
		return Chunk{}, fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}
	if err := c.validate(); err != nil {
		return Chunk{}, err
	}
	return c, nil
}

func (c Chunk) validate() error {
	switch {
	case c.Session.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunk, c.Session.ChunkSize)
	case c.Index < 0:
		return fmt.Errorf("%w: index %d", ErrInvalidChunk, c.Index)
	case len(c.Payload) > int(c.Session.ChunkSize):
		return fmt.Errorf("%w: payload of %d bytes exceeds chunk size %d", ErrInvalidChunk, len(c.Payload), c.Session.ChunkSize)
	case c.Final && c.TotalChunks != c.Index+1:
		return fmt.Errorf("%w: final chunk %d announces %d chunks", ErrInvalidChunk, c.Index, c.TotalChunks)
	}
	return nil
}
