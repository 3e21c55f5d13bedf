package apc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/avbforge/avproxy/internal/appdu"
	"github.com/avbforge/avproxy/internal/eui"
	"github.com/avbforge/avproxy/internal/frame"
	"github.com/avbforge/avproxy/internal/session"
	"github.com/avbforge/avproxy/internal/testutil/testlog"
)

const waitTimeout = 5 * time.Second

var (
	testMAC     = eui.EUI48{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testPortMAC = eui.EUI48{0x00, 0x1B, 0x21, 0x00, 0x00, 0xFF}
)

func testConfig(addr string) Config {
	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.PrimaryMAC = testMAC
	cfg.Session = session.DefaultConfig()
	cfg.Session.KeepaliveInterval = 50 * time.Millisecond
	cfg.Session.Backoff.InitialDelay = 10 * time.Millisecond
	cfg.Session.Backoff.MaxDelay = 50 * time.Millisecond
	return cfg
}

func TestNewClientValidation(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewClient(cfg); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("missing address: got %v", err)
	}

	cfg.Address = "127.0.0.1:17221"
	if _, err := NewClient(cfg); !errors.Is(err, ErrPrimaryMACRequired) {
		t.Fatalf("missing primary MAC: got %v", err)
	}

	cfg.PrimaryMAC = testMAC
	if _, err := NewClient(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestRunGivesUpAfterMaxConnectAttempts(t *testing.T) {
	testlog.Start(t)

	// Grab a port nothing is listening on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(addr)
	cfg.MaxConnectAttempts = 2
	cfg.Session.ConnectTimeout = 200 * time.Millisecond
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	err = client.Run(context.Background())
	if err == nil {
		t.Fatal("expected dial failure, got nil")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("expected dial error, got %v", err)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	cfg := testConfig("127.0.0.1:17221")
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	f, err := frame.Build(testMAC, testMAC, 0x22F0, []byte{1})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	if err := client.SendFrame(f); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendFrame disconnected: got %v", err)
	}
	if err := client.SendVendor(testMAC, []byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendVendor disconnected: got %v", err)
	}
}

// scriptServer accepts one session, consumes the entity ID handshake, and
// hands the connection to the script.
func scriptServer(t *testing.T, script func(conn net.Conn, requested eui.EUI64)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Entity ID request: 6-octet header plus MAC and entity ID.
		buf := make([]byte, appdu.HeaderLen+14)
		if _, err := io.ReadFull(conn, buf); err != nil {
			t.Errorf("read handshake: %v", err)
			return
		}
		parser := appdu.NewParser()
		var req *appdu.Message
		for _, octet := range buf {
			req = parser.Consume(octet)
		}
		if req == nil || req.Type() != appdu.TypeEntityIDRequest {
			t.Errorf("handshake did not open with entity id request")
			return
		}
		requested, err := req.RequestedEntityID()
		if err != nil {
			t.Errorf("requested entity id: %v", err)
			return
		}
		script(conn, requested)
	}()
	return ln.Addr().String()
}

func writeMsg(t *testing.T, conn net.Conn, m *appdu.Message) {
	t.Helper()
	if _, err := conn.Write(m.Encode()); err != nil {
		t.Errorf("write %s: %v", m.Type(), err)
	}
}

func TestClientSessionCallbacks(t *testing.T) {
	testlog.Start(t)

	desired := eui.EUI64{0x00, 0x1B, 0x21, 0xFF, 0xFE, 0x00, 0x00, 0x07}
	netFrame, err := frame.Build(testMAC, testPortMAC, 0x22F0, []byte{0xCA, 0xFE})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	vendorTag := eui.EUI48{0x00, 0x1B, 0xC5, 0x00, 0x00, 0x01}
	vendorData := []byte{0x01, 0x02, 0x03}

	stay := make(chan struct{})
	defer close(stay)
	addr := scriptServer(t, func(conn net.Conn, requested eui.EUI64) {
		resp := appdu.NewMessage()
		resp.SetEntityIDResponse(testMAC, requested)
		writeMsg(t, conn, resp)

		link := appdu.NewMessage()
		link.SetLinkUp(testPortMAC)
		writeMsg(t, conn, link)

		fromNet := appdu.NewMessage()
		if err := fromNet.SetAvdeccFromAPS(netFrame); err != nil {
			t.Errorf("SetAvdeccFromAPS: %v", err)
			return
		}
		writeMsg(t, conn, fromNet)

		vendor := appdu.NewMessage()
		if err := vendor.SetVendor(vendorTag, vendorData); err != nil {
			t.Errorf("SetVendor: %v", err)
			return
		}
		writeMsg(t, conn, vendor)

		// Keep the session open until the test is done asserting.
		<-stay
	})

	linkCh := make(chan bool, 2)
	frameCh := make(chan frame.Frame, 2)
	vendorCh := make(chan []byte, 2)

	cfg := testConfig(addr)
	cfg.DesiredEntityID = desired
	client, err := NewClient(cfg,
		WithLinkHandler(func(up bool, _ eui.EUI48) { linkCh <- up }),
		WithFrameHandler(func(f frame.Frame) { frameCh <- f }),
		WithVendorHandler(func(tag eui.EUI48, data []byte) {
			if tag == vendorTag {
				vendorCh <- data
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case up := <-linkCh:
		if !up {
			t.Fatal("link notice reported down")
		}
	case <-time.After(waitTimeout):
		t.Fatal("no link notice")
	}

	select {
	case got := <-frameCh:
		if !bytes.Equal(got.Bytes(), netFrame.Bytes()) {
			t.Fatalf("frame mismatch: got %x want %x", got.Bytes(), netFrame.Bytes())
		}
	case <-time.After(waitTimeout):
		t.Fatal("no frame callback")
	}

	select {
	case got := <-vendorCh:
		if !bytes.Equal(got, vendorData) {
			t.Fatalf("vendor data mismatch: got %x want %x", got, vendorData)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no vendor callback")
	}

	st := client.Status()
	if !st.Connected {
		t.Fatal("status not connected")
	}
	if st.EntityID != desired {
		t.Fatalf("entity id: got %v want %v", st.EntityID, desired)
	}
	if !st.LinkUp || st.NetworkPortMAC != testPortMAC {
		t.Fatalf("link status: %+v", st)
	}
}

func TestClientDisconnectsAfterParseErrorThreshold(t *testing.T) {
	testlog.Start(t)

	served := make(chan struct{})
	addr := scriptServer(t, func(conn net.Conn, requested eui.EUI64) {
		defer close(served)
		resp := appdu.NewMessage()
		resp.SetEntityIDResponse(testMAC, requested)
		writeMsg(t, conn, resp)

		// Unsupported-version headers past the client's threshold.
		bad := bytes.Repeat([]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00}, 12)
		if _, err := conn.Write(bad); err != nil {
			t.Errorf("write garbage: %v", err)
			return
		}
		// Wait for the client to hang up on us.
		_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
		_, _ = io.Copy(io.Discard, conn)
	})

	cfg := testConfig(addr)
	cfg.MaxConnectAttempts = 1
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	conn, err := client.dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := client.serve(ctx, conn); !errors.Is(err, ErrParseThreshold) {
		t.Fatalf("serve: got %v want ErrParseThreshold", err)
	}
	<-served

	if got := client.Status().ParseErrors; got <= client.cfg.MaxParseErrors {
		t.Fatalf("parse errors not recorded: %d", got)
	}
}
