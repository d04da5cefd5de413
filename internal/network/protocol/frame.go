package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// Frame constants.
const (
	Magic   uint16 = 0x4E4D
	Version uint8  = 1

	// MaxFrameSize bounds a single frame (64 MiB).
	MaxFrameSize = 64 * 1024 * 1024

	// frameFixedLen is magic + version + channel + present flag +
	// header length + body length.
	frameFixedLen = 2 + 1 + 4 + 1 + 4 + 4
)

var (
	// ErrMalformedFrame is returned when the inner fields of a frame are
	// inconsistent. The frame is skipped; the stream stays usable.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrFrameTooLarge is returned when a frame length exceeds the limit.
	// The stream cannot be trusted afterwards.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrBadMagic is returned when a frame does not start with Magic.
	// The stream cannot be trusted afterwards.
	ErrBadMagic = errors.New("protocol: bad frame magic")

	// ErrUnsupportedVersion is returned for an unknown frame version.
	ErrUnsupportedVersion = errors.New("protocol: unsupported frame version")
)

// IsRecoverable reports whether the stream can keep being read after err.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrMalformedFrame)
}

// Encode serializes p into a complete frame including the length prefix.
func Encode(p *Packet) ([]byte, error) {
	header := bufferBytes(p.Header)
	body := bufferBytes(p.Body)

	size := frameFixedLen + len(header) + len(body)
	if p.HasUniqueID() {
		size += 16
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	out := make([]byte, 0, 4+size)
	out = binary.BigEndian.AppendUint32(out, uint32(size))
	out = binary.BigEndian.AppendUint16(out, Magic)
	out = append(out, Version)
	out = binary.BigEndian.AppendUint32(out, uint32(p.Channel))
	if p.HasUniqueID() {
		out = append(out, 1)
		out = append(out, p.UniqueID[:]...)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(header)))
	out = append(out, header...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out, nil
}

// WriteFrame encodes p and writes it to w in a single call.
func WriteFrame(w io.Writer, p *Packet) error {
	frame, err := Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads one frame from r.
//
// I/O errors are returned as is (io.EOF on a clean end of stream).
// A frame whose inner fields do not add up yields ErrMalformedFrame after
// the whole frame has been consumed, so the caller may continue reading.
func ReadFrame(r io.Reader) (*Packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return Decode(payload)
}

// Decode parses a frame payload (without the length prefix).
func Decode(payload []byte) (*Packet, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(payload))
	}
	if binary.BigEndian.Uint16(payload) != Magic {
		return nil, ErrBadMagic
	}
	if payload[2] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, payload[2])
	}

	b := wire.FromBytes(payload[3:])
	p := &Packet{Channel: b.ReadInt32()}
	if b.ReadBool() {
		p.UniqueID = b.ReadUUID()
	}
	p.Header = b.ReadBuffer()
	p.Body = b.ReadBuffer()
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if b.Readable() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, b.Readable())
	}
	return p, nil
}

func bufferBytes(b *wire.Buffer) []byte {
	if b == nil {
		return nil
	}
	return b.Bytes()
}
