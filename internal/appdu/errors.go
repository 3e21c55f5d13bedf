package appdu

import "errors"

var (
	ErrUnsupportedVersion  = errors.New("appdu: unsupported version")
	ErrReservedStatus      = errors.New("appdu: nonzero reserved status field")
	ErrUnknownMessageType  = errors.New("appdu: unknown message type")
	ErrPayloadTooLarge     = errors.New("appdu: payload exceeds maximum length")
	ErrMessageTypeMismatch = errors.New("appdu: message type mismatch")
	ErrTruncatedPayload    = errors.New("appdu: truncated payload")
)
