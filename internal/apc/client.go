// Package apc implements the AVDECC Proxy Client role: it dials a proxy
// server over TCP with backoff, negotiates an entity ID, keeps the session
// alive with NOPs, and relays AVDECC frames in both directions.
package apc

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avbforge/avproxy/internal/appdu"
	"github.com/avbforge/avproxy/internal/eui"
	"github.com/avbforge/avproxy/internal/frame"
	"github.com/avbforge/avproxy/internal/observability"
	"github.com/avbforge/avproxy/internal/session"
)

var (
	ErrAddressRequired    = errors.New("apc: proxy server address required")
	ErrPrimaryMACRequired = errors.New("apc: primary MAC required")
	ErrNotConnected       = errors.New("apc: not connected")
	ErrParseThreshold     = errors.New("apc: parse error threshold exceeded")
)

// Config configures one proxy client.
type Config struct {
	Address            string
	PrimaryMAC         eui.EUI48
	DesiredEntityID    eui.EUI64
	MaxConnectAttempts int
	MaxParseErrors     int
	Session            session.Config
}

func DefaultConfig() Config {
	return Config{
		MaxParseErrors: 8,
		Session:        session.DefaultConfig(),
	}
}

// Status is a point-in-time snapshot of client state.
type Status struct {
	Connected      bool
	EntityID       eui.EUI64
	LinkUp         bool
	NetworkPortMAC eui.EUI48
	MessagesRx     uint64
	MessagesTx     uint64
	ParseErrors    int
}

// FrameFunc receives AVDECC frames decapsulated from the proxy server.
type FrameFunc func(f frame.Frame)

// LinkFunc receives network port link transitions reported by the server.
type LinkFunc func(up bool, portMAC eui.EUI48)

// VendorFunc receives vendor-specific messages.
type VendorFunc func(tag eui.EUI48, data []byte)

type Option func(*Client)

func WithFrameHandler(fn FrameFunc) Option {
	return func(c *Client) { c.onFrame = fn }
}

func WithLinkHandler(fn LinkFunc) Option {
	return func(c *Client) { c.onLink = fn }
}

func WithVendorHandler(fn VendorFunc) Option {
	return func(c *Client) { c.onVendor = fn }
}

// Client is an AVDECC proxy client. One Client drives one server
// connection at a time and reconnects with backoff when it drops.
type Client struct {
	cfg Config
	rng *rand.Rand

	onFrame  FrameFunc
	onLink   LinkFunc
	onVendor VendorFunc

	mu       sync.Mutex
	conn     net.Conn
	entityID eui.EUI64
	linkUp   bool
	portMAC  eui.EUI48

	writeMu sync.Mutex

	rx          atomic.Uint64
	tx          atomic.Uint64
	parseErrors atomic.Int64
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if cfg.PrimaryMAC.IsZero() {
		return nil, ErrPrimaryMACRequired
	}
	if cfg.MaxParseErrors <= 0 {
		cfg.MaxParseErrors = DefaultConfig().MaxParseErrors
	}
	cfg.Session = cfg.Session.WithDefaults()

	c := &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run dials the proxy server and serves the session, reconnecting with
// backoff until ctx is canceled. A bounded MaxConnectAttempts turns dial
// failure into a returned error instead of endless retry.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Str("addr", c.cfg.Address).Msg("apc dial failed")
			if !c.shouldRetry(attempt) {
				return err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}
		attempt = 0

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("addr", c.cfg.Address).Msg("apc session ended, reconnecting")
		if err := c.sleepBackoff(ctx, 1); err != nil {
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", c.cfg.Address)
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// serve runs one connected session to completion.
func (c *Client) serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	c.setConn(conn)
	defer c.setConn(nil)
	observability.SessionOpened("apc")
	defer observability.SessionClosed("apc")
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("apc connected")

	// Entity ID handshake opens every session.
	req := appdu.NewMessage()
	req.SetEntityIDRequest(c.cfg.PrimaryMAC, c.cfg.DesiredEntityID)
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	if err := c.send(req); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go c.keepalive(done)

	parser := appdu.NewParser()
	handler := &clientHandler{c: c}
	buf := make([]byte, 4096)
	reportedErrors := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Session.ReadTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		observability.RecordStreamBytes("apc", "rx", n)

		for _, octet := range buf[:n] {
			msg := parser.Consume(octet)
			if msg == nil {
				continue
			}
			c.rx.Add(1)
			observability.RecordMessage("apc", "rx", msg.Type().String())
			if err := appdu.Dispatch(msg, handler); err != nil {
				return err
			}
		}

		if errs := parser.ErrorCount(); errs > reportedErrors {
			observability.RecordParseErrors("apc", errs-reportedErrors)
			reportedErrors = errs
			c.parseErrors.Store(int64(errs))
			if errs > c.cfg.MaxParseErrors {
				return ErrParseThreshold
			}
		}
	}
}

// keepalive sends NOPs so the server's read deadline never expires on an
// otherwise idle session.
func (c *Client) keepalive(done <-chan struct{}) {
	interval := c.cfg.Session.KeepaliveInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nop := appdu.NewMessage()
	nop.SetNop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.send(nop); err != nil {
				return
			}
		}
	}
}

// SendFrame encapsulates one AVDECC frame as AVDECC_FROM_APC.
func (c *Client) SendFrame(f frame.Frame) error {
	msg := appdu.NewMessage()
	if err := msg.SetAvdeccFromAPC(f); err != nil {
		return err
	}
	return c.send(msg)
}

// SendVendor sends a vendor-specific message.
func (c *Client) SendVendor(tag eui.EUI48, data []byte) error {
	msg := appdu.NewMessage()
	if err := msg.SetVendor(tag, data); err != nil {
		return err
	}
	return c.send(msg)
}

func (c *Client) send(m *appdu.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Session.WriteTimeout))
	buf := m.Encode()
	if _, err := conn.Write(buf); err != nil {
		return err
	}
	c.tx.Add(1)
	observability.RecordMessage("apc", "tx", m.Type().String())
	observability.RecordStreamBytes("apc", "tx", len(buf))
	return nil
}

// Status reports a snapshot of the client's session state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:      c.conn != nil,
		EntityID:       c.entityID,
		LinkUp:         c.linkUp,
		NetworkPortMAC: c.portMAC,
		MessagesRx:     c.rx.Load(),
		MessagesTx:     c.tx.Load(),
		ParseErrors:    int(c.parseErrors.Load()),
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	if conn == nil {
		c.entityID = eui.EUI64{}
	}
}
