package protocol

import (
	"errors"
	"io"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 4

	// MaxPayloadSize is the maximum frame payload (2^16 - 1 bytes). Asset
	// bytes are split into chunks below this limit; nothing else comes
	// close to it.
	MaxPayloadSize = 65535
)

// FrameType identifies the kind of message a frame carries.
type FrameType uint8

const (
	FrameHandshake  FrameType = 0x00 // Join request/response
	FrameCommand    FrameType = 0x01 // State commands, both directions
	FrameAssetStart FrameType = 0x02 // Begin a chunked asset transfer
	FrameAssetChunk FrameType = 0x03 // One segment of asset bytes
	FrameControl    FrameType = 0x04 // Heartbeat, ping/pong, close
	FrameError      FrameType = 0x05 // Protocol error report
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameHandshake:
		return "Handshake"
	case FrameCommand:
		return "Command"
	case FrameAssetStart:
		return "AssetStart"
	case FrameAssetChunk:
		return "AssetChunk"
	case FrameControl:
		return "Control"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

// FrameFlags is a reserved byte in the frame header. No flags are defined
// by the current protocol version; senders must write zero and receivers
// must ignore unknown bits.
type FrameFlags uint8

// Frame errors.
var (
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")
)

// Frame is the unit of transmission.
//
// Wire format (4-byte header + payload):
//
//	[ type:1 ][ flags:1 ][ length:2 big-endian ][ payload ... ]
type Frame struct {
	Type    FrameType
	Flags   FrameFlags
	Payload []byte
}

// NewFrame creates a frame with the given type and payload.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode returns the frame's wire bytes including the header. A payload
// larger than MaxPayloadSize cannot be represented in the 16-bit length
// field and is rejected rather than truncated.
func (f *Frame) Encode() ([]byte, error) {
	length := len(f.Payload)
	if length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderSize+length)
	buf[0] = byte(f.Type)
	buf[1] = byte(f.Flags)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf, nil
}

// DecodeFrame decodes a frame from data, which must contain the complete
// header and payload.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	ft := FrameType(data[0])
	flags := FrameFlags(data[1])
	length := int(data[2])<<8 | int(data[3])

	if len(data) < FrameHeaderSize+length {
		return nil, io.ErrUnexpectedEOF
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:FrameHeaderSize+length])

	return &Frame{Type: ft, Flags: flags, Payload: payload}, nil
}

// ReadFrame reads a complete frame from r. Useful for stream transports
// and tests; WebSocket delivery hands us whole messages already.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	ft := FrameType(header[0])
	flags := FrameFlags(header[1])
	length := int(header[2])<<8 | int(header[3])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{Type: ft, Flags: flags, Payload: payload}, nil
}

// WriteFrame writes a complete frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
