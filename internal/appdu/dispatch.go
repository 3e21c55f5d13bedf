package appdu

import "fmt"

// Handler receives completed messages, one callback per message type.
// The proxy client and proxy server each supply their own implementation.
type Handler interface {
	OnNop(msg *Message) error
	OnEntityIDRequest(msg *Message) error
	OnEntityIDResponse(msg *Message) error
	OnLinkUp(msg *Message) error
	OnLinkDown(msg *Message) error
	OnAvdeccFromAPS(msg *Message) error
	OnAvdeccFromAPC(msg *Message) error
	OnVendor(msg *Message) error
}

// Dispatch invokes exactly one handler callback for msg based on its type
// tag. The parser rejects unknown types during header validation, so an
// out-of-range tag here is an internal-consistency fault reported as
// ErrUnknownMessageType rather than a protocol error.
func Dispatch(msg *Message, h Handler) error {
	switch msg.Type() {
	case TypeNop:
		return h.OnNop(msg)
	case TypeEntityIDRequest:
		return h.OnEntityIDRequest(msg)
	case TypeEntityIDResponse:
		return h.OnEntityIDResponse(msg)
	case TypeLinkUp:
		return h.OnLinkUp(msg)
	case TypeLinkDown:
		return h.OnLinkDown(msg)
	case TypeAvdeccFromAPS:
		return h.OnAvdeccFromAPS(msg)
	case TypeAvdeccFromAPC:
		return h.OnAvdeccFromAPC(msg)
	case TypeVendor:
		return h.OnVendor(msg)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, msg.Type())
	}
}
