package aps

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avbforge/avproxy/internal/appdu"
	"github.com/avbforge/avproxy/internal/eui"
	"github.com/avbforge/avproxy/internal/frame"
	"github.com/avbforge/avproxy/internal/observability"
	"github.com/avbforge/avproxy/internal/session"
)

// ServiceConfig configures one proxy server endpoint.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	ServerID        string
	NetworkPortMAC  eui.EUI48
	EntityIDBase    eui.EUI64
	MaxParseErrors  int
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		// IANA-assigned avdecc-proxy port.
		ListenAddr:     ":17221",
		ServerID:       "aps.local",
		MaxParseErrors: 8,
		Session:        session.DefaultConfig(),
	}
}

// Service owns proxy server IO: the listener, connected sessions, the admin
// endpoint, and fan-out of network frames and link transitions.
type Service struct {
	cfg     ServiceConfig
	server  *Server
	network NetworkPort

	connsMu  sync.Mutex
	sessions map[string]*apcSession
	conns    map[net.Conn]struct{}

	started time.Time
}

// NewService wires a proxy server around the given network port boundary.
// A nil port gets a loopback implementation.
func NewService(cfg ServiceConfig, network NetworkPort) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	if strings.TrimSpace(cfg.ServerID) == "" {
		cfg.ServerID = DefaultServiceConfig().ServerID
	}
	if cfg.MaxParseErrors <= 0 {
		cfg.MaxParseErrors = DefaultServiceConfig().MaxParseErrors
	}
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.EntityIDBase.IsZero() {
		cfg.EntityIDBase = EntityPoolFromMAC(cfg.NetworkPortMAC)
	}
	if network == nil {
		network = NewLoopbackPort(0)
	}
	return &Service{
		cfg:      cfg,
		server:   NewServer(cfg.EntityIDBase, true),
		network:  network,
		sessions: make(map[string]*apcSession),
		conns:    make(map[net.Conn]struct{}),
		started:  time.Now(),
	}
}

// Server exposes the shared proxy state for tests and the admin surface.
func (s *Service) Server() *Server {
	return s.server
}

// Run blocks serving proxy sessions until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Str("server_id", s.cfg.ServerID).Msg("aps listening")

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		go func() {
			adminErr <- s.serveAdmin(ctx, strings.TrimSpace(s.cfg.AdminListenAddr))
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

// Serve accepts proxy client sessions on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(conn)
	}
}

// DeliverNetworkFrame encapsulates one frame received from the local
// network and fans it out to every connected proxy client.
func (s *Service) DeliverNetworkFrame(f frame.Frame) {
	msg := appdu.NewMessage()
	if err := msg.SetAvdeccFromAPS(f); err != nil {
		log.Warn().Err(err).Int("len", f.Len()).Msg("aps dropping oversized network frame")
		return
	}
	for _, sess := range s.snapshotSessions() {
		if err := sess.send(msg); err != nil {
			log.Warn().Err(err).Str("session_id", sess.id).Msg("aps frame fan-out failed")
		}
	}
}

// SetLinkState records a local link transition and notifies every
// connected proxy client.
func (s *Service) SetLinkState(up bool) {
	if !s.server.SetLinkUp(up) {
		return
	}
	msg := appdu.NewMessage()
	if up {
		msg.SetLinkUp(s.cfg.NetworkPortMAC)
	} else {
		msg.SetLinkDown(s.cfg.NetworkPortMAC)
	}
	log.Info().Bool("up", up).Msg("aps link state changed")
	for _, sess := range s.snapshotSessions() {
		if err := sess.send(msg); err != nil {
			log.Warn().Err(err).Str("session_id", sess.id).Msg("aps link fan-out failed")
		}
	}
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)

	remote := conn.RemoteAddr().String()
	sess := newAPCSession(uuid.NewString(), conn, s.cfg.Session)
	s.addSession(sess)
	observability.SessionOpened("aps")
	log.Info().Str("session_id", sess.id).Str("remote", remote).Msg("aps client connected")
	defer func() {
		_, entityID := sess.identity()
		s.server.ReleaseEntityID(entityID)
		s.removeSession(sess)
		observability.SessionClosed("aps")
		log.Info().Str("session_id", sess.id).Str("remote", remote).Msg("aps client disconnected")
	}()

	// Tell the client the current link state right away.
	linkMsg := appdu.NewMessage()
	if s.server.LinkUp() {
		linkMsg.SetLinkUp(s.cfg.NetworkPortMAC)
	} else {
		linkMsg.SetLinkDown(s.cfg.NetworkPortMAC)
	}
	if err := sess.send(linkMsg); err != nil {
		log.Warn().Err(err).Str("session_id", sess.id).Msg("aps initial link notice failed")
		return
	}

	handler := &serverHandler{svc: s, sess: sess}
	buf := make([]byte, 4096)
	reportedErrors := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		observability.RecordStreamBytes("aps", "rx", n)

		for _, octet := range buf[:n] {
			msg := sess.parser.Consume(octet)
			if msg == nil {
				continue
			}
			sess.rx.Add(1)
			observability.RecordMessage("aps", "rx", msg.Type().String())
			if err := appdu.Dispatch(msg, handler); err != nil {
				log.Warn().Err(err).
					Str("session_id", sess.id).
					Str("type", msg.Type().String()).
					Msg("aps message handling failed")
				return
			}
		}

		if errs := sess.parser.ErrorCount(); errs > reportedErrors {
			observability.RecordParseErrors("aps", errs-reportedErrors)
			reportedErrors = errs
			if errs > s.cfg.MaxParseErrors {
				log.Warn().
					Str("session_id", sess.id).
					Int("parse_errors", errs).
					Msg("aps dropping client: parse error threshold exceeded")
				return
			}
		}
		s.server.UpsertSession(sess.info(remote))
	}
}

func (s *Service) addSession(sess *apcSession) {
	s.connsMu.Lock()
	s.sessions[sess.id] = sess
	s.connsMu.Unlock()
	s.server.UpsertSession(sess.info(sess.conn.RemoteAddr().String()))
}

func (s *Service) removeSession(sess *apcSession) {
	s.connsMu.Lock()
	delete(s.sessions, sess.id)
	s.connsMu.Unlock()
	s.server.RemoveSession(sess.id)
}

func (s *Service) snapshotSessions() []*apcSession {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]*apcSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
