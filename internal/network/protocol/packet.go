// Package protocol defines the NodeMesh packet and its frame encoding.
//
// Frame layout (big-endian):
//
//	uint32  frame length (everything after this field)
//	uint16  magic 0x4E4D ("NM")
//	uint8   version
//	int32   channel id
//	bool    correlation id present
//	[16]    correlation id (two int64, most significant first) if present
//	int32   header length, header bytes
//	int32   body length, body bytes
//
// The outer length lets a reader skip a frame whose inner fields are
// inconsistent without losing sync with the frames that follow.
package protocol

import (
	"github.com/google/uuid"

	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// Process-wide channel ids. They identify the listener set a packet is
// dispatched to, not a connection.
const (
	// ChannelResponse carries replies to queries. Replies complete the
	// pending query and are never dispatched to listeners.
	ChannelResponse int32 = -1

	ChannelAuthorization    int32 = 1
	ChannelRPC              int32 = 2
	ChannelChunkedTransfer  int32 = 3
	ChannelNodeSnapshot     int32 = 4
	ChannelServiceLifecycle int32 = 5
)

// ChannelName returns a readable name for logs and metric labels.
func ChannelName(id int32) string {
	switch id {
	case ChannelResponse:
		return "response"
	case ChannelAuthorization:
		return "authorization"
	case ChannelRPC:
		return "rpc"
	case ChannelChunkedTransfer:
		return "chunked_transfer"
	case ChannelNodeSnapshot:
		return "node_snapshot"
	case ChannelServiceLifecycle:
		return "service_lifecycle"
	default:
		return "custom"
	}
}

// Packet is one framed message.
type Packet struct {
	// Channel selects the listener set on the receiving side.
	Channel int32
	// UniqueID correlates a query with its reply. uuid.Nil means absent.
	UniqueID uuid.UUID
	// Header carries optional metadata; may be empty.
	Header *wire.Buffer
	// Body carries the payload.
	Body *wire.Buffer
}

// New creates a packet with an empty header.
func New(channel int32, body *wire.Buffer) *Packet {
	if body == nil {
		body = wire.NewBuffer()
	}
	return &Packet{
		Channel: channel,
		Header:  wire.NewBuffer(),
		Body:    body,
	}
}

// NewResponse creates the reply to request: same correlation id, channel
// ChannelResponse.
func NewResponse(request *Packet, body *wire.Buffer) *Packet {
	p := New(ChannelResponse, body)
	p.UniqueID = request.UniqueID
	return p
}

// HasUniqueID reports whether the packet carries a correlation id.
func (p *Packet) HasUniqueID() bool {
	return p.UniqueID != uuid.Nil
}

// IsResponse reports whether the packet is a reply to a query.
func (p *Packet) IsResponse() bool {
	return p.Channel == ChannelResponse
}
