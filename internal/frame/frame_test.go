package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/avbforge/avproxy/internal/eui"
)

func TestBuildAndAccessors(t *testing.T) {
	da := eui.EUI48{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x00}
	sa := eui.EUI48{0x00, 0x1B, 0x21, 0x00, 0x00, 0x01}
	payload := []byte{0xFA, 0x00, 0x00, 0x10}

	f, err := Build(da, sa, 0x22F0, payload)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	if f.Len() != headerSize+len(payload) {
		t.Fatalf("unexpected frame length %d", f.Len())
	}
	gotDA, err := f.DA()
	if err != nil || gotDA != da {
		t.Fatalf("DA mismatch: %v %v", gotDA, err)
	}
	gotSA, err := f.SA()
	if err != nil || gotSA != sa {
		t.Fatalf("SA mismatch: %v %v", gotSA, err)
	}
	et, err := f.EtherType()
	if err != nil || et != 0x22F0 {
		t.Fatalf("EtherType mismatch: %#x %v", et, err)
	}
	pl, err := f.Payload()
	if err != nil || !bytes.Equal(pl, payload) {
		t.Fatalf("payload mismatch: %v %v", pl, err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	f, err := New(data)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	data[0] = 0xFF
	if f.Bytes()[0] != 1 {
		t.Fatal("frame aliased caller buffer")
	}
}

func TestOversizedInputRejected(t *testing.T) {
	if _, err := New(make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, err := Build(eui.EUI48{}, eui.EUI48{}, 0x22F0, make([]byte, MaxFrameSize)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge from Build, got %v", err)
	}
}

func TestRuntFrameAccessors(t *testing.T) {
	f, err := New([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if _, err := f.DA(); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
	if _, err := f.EtherType(); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
}
