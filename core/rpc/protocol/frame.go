// Package protocol defines the length-prefixed frame the admin RPC
// surface speaks. The framing is deliberately minimal: a fixed header
// carrying type, flags, a request id and the two section lengths, then
// the metadata (routing: service/method) and payload (codec-encoded args
// or reply) back to back.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic leads every frame; a connection that opens with anything
	// else is not speaking this protocol and is dropped immediately.
	Magic uint32 = 0x6361646d // "cadm"

	// Version is bumped on any wire-incompatible change.
	Version byte = 0x01

	// HeaderSize is the fixed prefix every frame starts with:
	// magic(4) version(1) type(1) flags(1) reserved(1) requestID(4)
	// metaLen(2) payloadLen(4).
	HeaderSize = 18

	// MaxFrameSize bounds one frame end to end. Admin replies (stats
	// snapshots, bottleneck reports) stay far below this; anything
	// larger is a protocol error, not a workload.
	MaxFrameSize = 8 << 20
)

// Frame types.
const (
	TypeRequest  byte = 0x01
	TypeResponse byte = 0x02
	TypeError    byte = 0x03
	TypePing     byte = 0x04
	TypePong     byte = 0x05
)

// Frame flags.
const (
	FlagCompressed byte = 1 << 0 // payload is compressed
	FlagPriority   byte = 1 << 1 // jump the receive queue
)

var (
	ErrInvalidMagic   = errors.New("protocol: bad magic")
	ErrInvalidVersion = errors.New("protocol: unsupported version")
	ErrFrameTooLarge  = errors.New("protocol: frame exceeds size bound")
)

// Frame is one admin RPC message.
type Frame struct {
	Version   byte
	Type      byte
	Flags     byte
	RequestID uint32
	Metadata  []byte
	Payload   []byte
}

// NewFrame creates a frame of the given type bound to requestID.
func NewFrame(typ byte, requestID uint32) *Frame {
	return &Frame{Version: Version, Type: typ, RequestID: requestID}
}

// SetFlag sets one flag bit.
func (f *Frame) SetFlag(flag byte) { f.Flags |= flag }

// HasFlag reports whether flag is set.
func (f *Frame) HasFlag(flag byte) bool { return f.Flags&flag != 0 }

// Encode renders the frame as a single wire buffer.
func (f *Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Metadata)+len(f.Payload))

	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = f.Version
	buf[5] = f.Type
	buf[6] = f.Flags
	buf[7] = 0 // reserved
	binary.BigEndian.PutUint32(buf[8:12], f.RequestID)
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(f.Metadata)))
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Payload)))

	n := copy(buf[HeaderSize:], f.Metadata)
	copy(buf[HeaderSize+n:], f.Payload)
	return buf
}

// DecodeHeader validates and decodes the fixed prefix only; the section
// lengths are recovered separately via GetFrameSize.
func DecodeHeader(buf []byte) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("protocol: short header: %d bytes", len(buf))
	}
	if binary.BigEndian.Uint32(buf[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if buf[4] != Version {
		return nil, ErrInvalidVersion
	}

	return &Frame{
		Version:   buf[4],
		Type:      buf[5],
		Flags:     buf[6],
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// Decode decodes a complete frame, copying the metadata and payload out
// of buf so the caller may reuse its read buffer.
func Decode(buf []byte) (*Frame, error) {
	f, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	total, err := GetFrameSize(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < total {
		return nil, fmt.Errorf("protocol: short frame: have %d of %d bytes", len(buf), total)
	}

	metaLen := int(binary.BigEndian.Uint16(buf[12:14]))
	if metaLen > 0 {
		f.Metadata = append([]byte(nil), buf[HeaderSize:HeaderSize+metaLen]...)
	}
	if payloadLen := total - HeaderSize - metaLen; payloadLen > 0 {
		f.Payload = append([]byte(nil), buf[HeaderSize+metaLen:total]...)
	}
	return f, nil
}

// FrameSize is the wire size of a frame with the given section lengths.
func FrameSize(metaLen, payloadLen int) int {
	return HeaderSize + metaLen + payloadLen
}

// GetFrameSize recovers a frame's total wire size from its header,
// enforcing MaxFrameSize so a bad length prefix can't provoke an
// arbitrary allocation.
func GetFrameSize(headerBuf []byte) (int, error) {
	if len(headerBuf) < HeaderSize {
		return 0, fmt.Errorf("protocol: short header: %d bytes", len(headerBuf))
	}
	metaLen := int(binary.BigEndian.Uint16(headerBuf[12:14]))
	payloadLen := int(binary.BigEndian.Uint32(headerBuf[14:18]))
	total := FrameSize(metaLen, payloadLen)
	if total > MaxFrameSize {
		return 0, ErrFrameTooLarge
	}
	return total, nil
}
