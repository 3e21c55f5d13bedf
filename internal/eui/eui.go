// Package eui provides the fixed-width IEEE identifier value types used
// for MAC and entity addressing on the APPDU wire: EUI-48 and EUI-64.
package eui

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	EUI48Len = 6
	EUI64Len = 8
)

var (
	ErrBadEUI48 = errors.New("eui: malformed EUI-48")
	ErrBadEUI64 = errors.New("eui: malformed EUI-64")
)

// EUI48 is a 48-bit identifier (MAC address, vendor message tag).
type EUI48 [EUI48Len]byte

// EUI64 is a 64-bit identifier (AVDECC entity ID).
type EUI64 [EUI64Len]byte

// ParseEUI48 parses colon- or dash-separated hex, e.g. "aa:bb:cc:dd:ee:ff".
func ParseEUI48(s string) (EUI48, error) {
	var out EUI48
	octets, err := parseOctets(s, EUI48Len)
	if err != nil {
		return EUI48{}, fmt.Errorf("%w: %q", ErrBadEUI48, s)
	}
	copy(out[:], octets)
	return out, nil
}

// ParseEUI64 parses colon- or dash-separated hex, e.g. "00:11:22:33:44:55:66:77".
func ParseEUI64(s string) (EUI64, error) {
	var out EUI64
	octets, err := parseOctets(s, EUI64Len)
	if err != nil {
		return EUI64{}, fmt.Errorf("%w: %q", ErrBadEUI64, s)
	}
	copy(out[:], octets)
	return out, nil
}

func parseOctets(s string, want int) ([]byte, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d octets, got %d", want, len(parts))
	}
	out := make([]byte, 0, want)
	for _, part := range parts {
		if len(part) != 2 {
			return nil, fmt.Errorf("octet %q is not two hex digits", part)
		}
		b, err := hex.DecodeString(part)
		if err != nil {
			return nil, err
		}
		out = append(out, b[0])
	}
	return out, nil
}

func (e EUI48) String() string {
	return formatOctets(e[:])
}

func (e EUI48) IsZero() bool {
	return e == EUI48{}
}

func (e EUI64) String() string {
	return formatOctets(e[:])
}

func (e EUI64) IsZero() bool {
	return e == EUI64{}
}

func formatOctets(b []byte) string {
	var sb strings.Builder
	for i, octet := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", octet)
	}
	return sb.String()
}
