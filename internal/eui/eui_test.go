package eui

import (
	"errors"
	"testing"
)

func TestParseEUI48RoundTrip(t *testing.T) {
	in := "aa:bb:cc:dd:ee:ff"
	mac, err := ParseEUI48(in)
	if err != nil {
		t.Fatalf("parse eui48: %v", err)
	}
	if mac != (EUI48{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}) {
		t.Fatalf("unexpected octets: %v", mac)
	}
	if got := mac.String(); got != in {
		t.Fatalf("string mismatch: got %q want %q", got, in)
	}
}

func TestParseEUI48DashSeparated(t *testing.T) {
	mac, err := ParseEUI48("00-1B-21-00-00-01")
	if err != nil {
		t.Fatalf("parse eui48: %v", err)
	}
	if mac[1] != 0x1B || mac[5] != 0x01 {
		t.Fatalf("unexpected octets: %v", mac)
	}
}

func TestParseEUI64RoundTrip(t *testing.T) {
	in := "00:1b:21:ff:fe:00:00:01"
	id, err := ParseEUI64(in)
	if err != nil {
		t.Fatalf("parse eui64: %v", err)
	}
	if got := id.String(); got != in {
		t.Fatalf("string mismatch: got %q want %q", got, in)
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := []string{"", "aa:bb:cc", "aa:bb:cc:dd:ee:ff:00", "zz:bb:cc:dd:ee:ff", "aaa:bb:cc:dd:ee:f"}
	for _, in := range cases {
		if _, err := ParseEUI48(in); !errors.Is(err, ErrBadEUI48) {
			t.Fatalf("input %q: expected ErrBadEUI48, got %v", in, err)
		}
	}
	if _, err := ParseEUI64("aa:bb:cc:dd:ee:ff"); !errors.Is(err, ErrBadEUI64) {
		t.Fatalf("expected ErrBadEUI64 for short input")
	}
}

func TestIsZero(t *testing.T) {
	if !(EUI48{}).IsZero() || !(EUI64{}).IsZero() {
		t.Fatal("zero values must report IsZero")
	}
	if (EUI48{0x01}).IsZero() {
		t.Fatal("non-zero EUI48 reported zero")
	}
}
