package transfer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultChunkSize is the chunk size used when none is configured (1 MiB).
const DefaultChunkSize int32 = 1 << 20

var (
	// ErrInvalidChunk is returned for chunks whose fields do not add up.
	ErrInvalidChunk = errors.New("transfer: invalid chunk")
	// ErrRejected is returned when a receiver did not accept a chunk.
	ErrRejected = errors.New("transfer: chunk rejected")
	// ErrAborted fails sessions discarded before they completed.
	ErrAborted = errors.New("transfer: session aborted")
	// ErrNoTargets is returned when a transfer has nowhere to go.
	ErrNoTargets = errors.New("transfer: no targets")
	// ErrNoHandler is returned for a transfer channel nobody registered.
	ErrNoHandler = errors.New("transfer: no handler for transfer channel")
)

// Status is the state of one transfer session. It only moves forward, and
// StatusSuccess and StatusFailure are terminal.
type Status int32

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailure
)

// EnumCount implements wire.Enum.
func (Status) EnumCount() int32 { return 3 }

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Session identifies one transfer. It is immutable once created.
type Session struct {
	ID        uuid.UUID
	ChunkSize int32
	// TransferChannel names the completion handler on the receiving side.
	TransferChannel string
	ExtraData       []byte
}

// NewSession creates a session with a fresh id. A chunkSize <= 0 selects
// DefaultChunkSize.
func NewSession(transferChannel string, chunkSize int32, extra []byte) Session {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return Session{
		ID:              uuid.New(),
		ChunkSize:       chunkSize,
		TransferChannel: transferChannel,
		ExtraData:       extra,
	}
}
