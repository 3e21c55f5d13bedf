// Package frame carries raw link-layer (Ethernet) frames between the
// excluded network driver boundary and the APPDU encapsulation layer.
package frame

import (
	"encoding/binary"
	"errors"

	"github.com/avbforge/avproxy/internal/eui"
)

const (
	// MaxFrameSize is the largest entire Ethernet frame accepted for
	// encapsulation, including the 802.1Q tag.
	MaxFrameSize = 1522

	// headerSize covers DA, SA, and EtherType.
	headerSize = eui.EUI48Len*2 + 2
)

var (
	ErrFrameTooLarge = errors.New("frame: exceeds maximum frame size")
	ErrFrameTooShort = errors.New("frame: shorter than link-layer header")
)

// Frame is an immutable bounded byte buffer holding one raw frame.
type Frame struct {
	buf []byte
}

// New copies data into a bounded Frame. Inputs larger than MaxFrameSize
// are rejected, never truncated.
func New(data []byte) (Frame, error) {
	if len(data) > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Frame{buf: buf}, nil
}

// Build assembles a frame from its link-layer header fields and payload.
func Build(da, sa eui.EUI48, etherType uint16, payload []byte) (Frame, error) {
	if headerSize+len(payload) > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	buf := make([]byte, 0, headerSize+len(payload))
	buf = append(buf, da[:]...)
	buf = append(buf, sa[:]...)
	buf = binary.BigEndian.AppendUint16(buf, etherType)
	buf = append(buf, payload...)
	return Frame{buf: buf}, nil
}

// Bytes returns the raw frame octets. Callers must not mutate the result.
func (f Frame) Bytes() []byte {
	return f.buf
}

func (f Frame) Len() int {
	return len(f.buf)
}

// DA returns the destination address, or an error for runt frames.
func (f Frame) DA() (eui.EUI48, error) {
	return f.addrAt(0)
}

// SA returns the source address, or an error for runt frames.
func (f Frame) SA() (eui.EUI48, error) {
	return f.addrAt(eui.EUI48Len)
}

// EtherType returns the 16-bit type field following the addresses.
func (f Frame) EtherType() (uint16, error) {
	if len(f.buf) < headerSize {
		return 0, ErrFrameTooShort
	}
	return binary.BigEndian.Uint16(f.buf[eui.EUI48Len*2 : headerSize]), nil
}

// Payload returns the octets following the link-layer header.
func (f Frame) Payload() ([]byte, error) {
	if len(f.buf) < headerSize {
		return nil, ErrFrameTooShort
	}
	return f.buf[headerSize:], nil
}

func (f Frame) addrAt(offset int) (eui.EUI48, error) {
	var out eui.EUI48
	if len(f.buf) < offset+eui.EUI48Len {
		return out, ErrFrameTooShort
	}
	copy(out[:], f.buf[offset:offset+eui.EUI48Len])
	return out, nil
}
