// Package appdu implements the IEEE 1722.1-2013 Annex C AVDECC Proxy
// Protocol data unit: the wire message model, an incremental octet-at-a-time
// stream parser, and type-based dispatch to a handler.
package appdu

import (
	"encoding/binary"

	"github.com/avbforge/avproxy/internal/eui"
	"github.com/avbforge/avproxy/internal/frame"
)

const (
	// Version0 is the only protocol version defined by Annex C.
	Version0 uint8 = 0

	// HeaderLen is the fixed wire header size in octets.
	HeaderLen = 6

	// MaxPayload bounds the variable-length payload following the header.
	MaxPayload = 1500

	// MaxAPPDUSize is the largest complete message, header included.
	MaxAPPDUSize = HeaderLen + MaxPayload

	// entityIDPayloadLen is an EUI-48 APC MAC followed by an EUI-64 entity ID.
	entityIDPayloadLen = eui.EUI48Len + eui.EUI64Len
)

// MessageType tags one APPDU message kind (Annex C.5.1).
type MessageType uint8

const (
	TypeNop MessageType = iota
	TypeEntityIDRequest
	TypeEntityIDResponse
	TypeLinkUp
	TypeLinkDown
	TypeAvdeccFromAPS
	TypeAvdeccFromAPC
	TypeVendor
)

// Valid reports whether t is one of the eight defined message types.
func (t MessageType) Valid() bool {
	return t <= TypeVendor
}

func (t MessageType) String() string {
	switch t {
	case TypeNop:
		return "NOP"
	case TypeEntityIDRequest:
		return "ENTITY_ID_REQUEST"
	case TypeEntityIDResponse:
		return "ENTITY_ID_RESPONSE"
	case TypeLinkUp:
		return "LINK_UP"
	case TypeLinkDown:
		return "LINK_DOWN"
	case TypeAvdeccFromAPS:
		return "AVDECC_FROM_APS"
	case TypeAvdeccFromAPC:
		return "AVDECC_FROM_APC"
	case TypeVendor:
		return "VENDOR"
	default:
		return "UNKNOWN"
	}
}

// Header is the fixed wire header: version, type tag, reserved status,
// and the payload length in network byte order.
type Header struct {
	Version       uint8
	Type          MessageType
	Status        uint16
	PayloadLength uint16
}

func decodeHeader(b []byte) Header {
	return Header{
		Version:       b[0],
		Type:          MessageType(b[1]),
		Status:        binary.BigEndian.Uint16(b[2:4]),
		PayloadLength: binary.BigEndian.Uint16(b[4:6]),
	}
}

func (h Header) validate() error {
	if h.Version != Version0 {
		return ErrUnsupportedVersion
	}
	if h.Status != 0 {
		return ErrReservedStatus
	}
	if !h.Type.Valid() {
		return ErrUnknownMessageType
	}
	if h.PayloadLength > MaxPayload {
		return ErrPayloadTooLarge
	}
	return nil
}

// Message is one APPDU: a fixed header plus its variable-length payload.
// The zero value is not ready for use; construct with NewMessage.
type Message struct {
	header  Header
	payload []byte
}

// NewMessage returns a message initialized to NOP.
func NewMessage() *Message {
	m := &Message{payload: make([]byte, 0, MaxPayload)}
	m.SetNop()
	return m
}

// Clear resets the message to NOP.
func (m *Message) Clear() {
	m.SetNop()
}

// SetNop sets the message to NOP with an empty payload (Annex C.5.1.1).
func (m *Message) SetNop() {
	m.set(TypeNop)
}

// SetEntityIDRequest sets the message to ENTITY_ID_REQUEST carrying the
// APC primary MAC and the requested entity ID (Annex C.5.1.2).
func (m *Message) SetEntityIDRequest(apcPrimaryMAC eui.EUI48, requestedEntityID eui.EUI64) {
	m.set(TypeEntityIDRequest, apcPrimaryMAC[:], requestedEntityID[:])
}

// SetEntityIDResponse sets the message to ENTITY_ID_RESPONSE with the same
// payload shape as the request (Annex C.5.1.3).
func (m *Message) SetEntityIDResponse(apcPrimaryMAC eui.EUI48, requestedEntityID eui.EUI64) {
	m.set(TypeEntityIDResponse, apcPrimaryMAC[:], requestedEntityID[:])
}

// SetLinkUp sets the message to LINK_UP carrying the network port MAC
// (Annex C.5.1.4).
func (m *Message) SetLinkUp(networkPortMAC eui.EUI48) {
	m.set(TypeLinkUp, networkPortMAC[:])
}

// SetLinkDown sets the message to LINK_DOWN carrying the network port MAC
// (Annex C.5.1.5).
func (m *Message) SetLinkDown(networkPortMAC eui.EUI48) {
	m.set(TypeLinkDown, networkPortMAC[:])
}

// SetAvdeccFromAPS encapsulates a raw AVDECC frame sent by the proxy server
// (Annex C.5.1.6). Frames larger than MaxPayload are rejected, never
// truncated, and the message is left unchanged.
func (m *Message) SetAvdeccFromAPS(f frame.Frame) error {
	return m.setFrame(TypeAvdeccFromAPS, f)
}

// SetAvdeccFromAPC encapsulates a raw AVDECC frame sent by the proxy client
// (Annex C.5.1.7). Same bound and rejection policy as SetAvdeccFromAPS.
func (m *Message) SetAvdeccFromAPC(f frame.Frame) error {
	return m.setFrame(TypeAvdeccFromAPC, f)
}

// SetVendor sets the message to VENDOR: an EUI-48 vendor message tag
// followed by opaque vendor octets (Annex C.5.1.8). Oversized input is
// rejected and the message is left unchanged.
func (m *Message) SetVendor(vendorMessageType eui.EUI48, data []byte) error {
	if eui.EUI48Len+len(data) > MaxPayload {
		return ErrPayloadTooLarge
	}
	m.set(TypeVendor, vendorMessageType[:], data)
	return nil
}

func (m *Message) setFrame(t MessageType, f frame.Frame) error {
	if f.Len() > MaxPayload {
		return ErrPayloadTooLarge
	}
	m.set(t, f.Bytes())
	return nil
}

// set overwrites header and payload together so the two can never disagree.
func (m *Message) set(t MessageType, parts ...[]byte) {
	m.payload = m.payload[:0]
	for _, part := range parts {
		m.payload = append(m.payload, part...)
	}
	m.header = Header{
		Version:       Version0,
		Type:          t,
		Status:        0,
		PayloadLength: uint16(len(m.payload)),
	}
}

// Header returns a copy of the fixed header fields.
func (m *Message) Header() Header {
	return m.header
}

// Type returns the message type tag.
func (m *Message) Type() MessageType {
	return m.header.Type
}

// Payload returns the payload octets. The slice aliases message storage and
// must not be mutated.
func (m *Message) Payload() []byte {
	return m.payload
}

// Clone returns an independent copy of the message.
func (m *Message) Clone() *Message {
	out := &Message{
		header:  m.header,
		payload: make([]byte, len(m.payload)),
	}
	copy(out.payload, m.payload)
	return out
}

// Encode serializes header and payload into a fresh buffer.
func (m *Message) Encode() []byte {
	buf := make([]byte, HeaderLen, HeaderLen+len(m.payload))
	buf[0] = m.header.Version
	buf[1] = byte(m.header.Type)
	binary.BigEndian.PutUint16(buf[2:4], m.header.Status)
	binary.BigEndian.PutUint16(buf[4:6], m.header.PayloadLength)
	return append(buf, m.payload...)
}

// APCPrimaryMAC returns the APC primary MAC from an ENTITY_ID_REQUEST or
// ENTITY_ID_RESPONSE payload.
func (m *Message) APCPrimaryMAC() (eui.EUI48, error) {
	if m.header.Type != TypeEntityIDRequest && m.header.Type != TypeEntityIDResponse {
		return eui.EUI48{}, ErrMessageTypeMismatch
	}
	return m.eui48At(0, entityIDPayloadLen)
}

// RequestedEntityID returns the entity ID from an ENTITY_ID_REQUEST or
// ENTITY_ID_RESPONSE payload.
func (m *Message) RequestedEntityID() (eui.EUI64, error) {
	if m.header.Type != TypeEntityIDRequest && m.header.Type != TypeEntityIDResponse {
		return eui.EUI64{}, ErrMessageTypeMismatch
	}
	if len(m.payload) != entityIDPayloadLen {
		return eui.EUI64{}, ErrTruncatedPayload
	}
	var out eui.EUI64
	copy(out[:], m.payload[eui.EUI48Len:])
	return out, nil
}

// NetworkPortMAC returns the port MAC from a LINK_UP or LINK_DOWN payload.
func (m *Message) NetworkPortMAC() (eui.EUI48, error) {
	if m.header.Type != TypeLinkUp && m.header.Type != TypeLinkDown {
		return eui.EUI48{}, ErrMessageTypeMismatch
	}
	return m.eui48At(0, eui.EUI48Len)
}

// AvdeccFrame returns the encapsulated frame from an AVDECC_FROM_APS or
// AVDECC_FROM_APC payload.
func (m *Message) AvdeccFrame() (frame.Frame, error) {
	if m.header.Type != TypeAvdeccFromAPS && m.header.Type != TypeAvdeccFromAPC {
		return frame.Frame{}, ErrMessageTypeMismatch
	}
	return frame.New(m.payload)
}

// VendorMessageType returns the EUI-48 tag from a VENDOR payload.
func (m *Message) VendorMessageType() (eui.EUI48, error) {
	if m.header.Type != TypeVendor {
		return eui.EUI48{}, ErrMessageTypeMismatch
	}
	if len(m.payload) < eui.EUI48Len {
		return eui.EUI48{}, ErrTruncatedPayload
	}
	var out eui.EUI48
	copy(out[:], m.payload[:eui.EUI48Len])
	return out, nil
}

// VendorData returns the opaque octets following the vendor tag.
func (m *Message) VendorData() ([]byte, error) {
	if m.header.Type != TypeVendor {
		return nil, ErrMessageTypeMismatch
	}
	if len(m.payload) < eui.EUI48Len {
		return nil, ErrTruncatedPayload
	}
	return m.payload[eui.EUI48Len:], nil
}

func (m *Message) eui48At(offset, wantLen int) (eui.EUI48, error) {
	var out eui.EUI48
	if len(m.payload) != wantLen {
		return out, ErrTruncatedPayload
	}
	copy(out[:], m.payload[offset:offset+eui.EUI48Len])
	return out, nil
}
