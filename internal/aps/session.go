package aps

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avbforge/avproxy/internal/appdu"
	"github.com/avbforge/avproxy/internal/eui"
	"github.com/avbforge/avproxy/internal/observability"
	"github.com/avbforge/avproxy/internal/session"
)

// apcSession is the server-side state for one connected proxy client.
type apcSession struct {
	id   string
	conn net.Conn
	cfg  session.Config

	parser *appdu.Parser

	writeMu sync.Mutex

	rx atomic.Uint64
	tx atomic.Uint64

	mu         sync.Mutex
	primaryMAC eui.EUI48
	entityID   eui.EUI64

	connectedAt time.Time
}

func newAPCSession(id string, conn net.Conn, cfg session.Config) *apcSession {
	return &apcSession{
		id:          id,
		conn:        conn,
		cfg:         cfg,
		parser:      appdu.NewParser(),
		connectedAt: time.Now(),
	}
}

// send serializes one message onto the connection under the write lock.
func (s *apcSession) send(m *appdu.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	buf := m.Encode()
	if _, err := s.conn.Write(buf); err != nil {
		return err
	}
	s.tx.Add(1)
	observability.RecordMessage("aps", "tx", m.Type().String())
	observability.RecordStreamBytes("aps", "tx", len(buf))
	return nil
}

func (s *apcSession) setIdentity(mac eui.EUI48, id eui.EUI64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primaryMAC = mac
	s.entityID = id
}

func (s *apcSession) identity() (eui.EUI48, eui.EUI64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primaryMAC, s.entityID
}

func (s *apcSession) info(remote string) SessionInfo {
	mac, id := s.identity()
	out := SessionInfo{
		ID:          s.id,
		RemoteAddr:  remote,
		ConnectedAt: s.connectedAt,
		MessagesRx:  s.rx.Load(),
		MessagesTx:  s.tx.Load(),
		ParseErrors: s.parser.ErrorCount(),
	}
	if !mac.IsZero() {
		out.APCPrimaryMAC = mac.String()
	}
	if !id.IsZero() {
		out.EntityID = id.String()
	}
	return out
}

// serverHandler dispatches one session's inbound messages to proxy server
// behavior. Types that only ever flow server-to-client are logged as
// protocol direction violations and otherwise ignored.
type serverHandler struct {
	svc  *Service
	sess *apcSession
}

func (h *serverHandler) OnNop(*appdu.Message) error {
	return nil
}

func (h *serverHandler) OnEntityIDRequest(msg *appdu.Message) error {
	mac, err := msg.APCPrimaryMAC()
	if err != nil {
		return err
	}
	requested, err := msg.RequestedEntityID()
	if err != nil {
		return err
	}

	assigned, err := h.svc.server.AssignEntityID(requested)
	if err != nil {
		return err
	}
	h.sess.setIdentity(mac, assigned)
	log.Info().
		Str("session_id", h.sess.id).
		Str("apc_mac", mac.String()).
		Str("requested", requested.String()).
		Str("assigned", assigned.String()).
		Msg("aps entity id assigned")

	reply := appdu.NewMessage()
	reply.SetEntityIDResponse(mac, assigned)
	return h.sess.send(reply)
}

func (h *serverHandler) OnEntityIDResponse(msg *appdu.Message) error {
	return h.directionViolation(msg)
}

func (h *serverHandler) OnLinkUp(msg *appdu.Message) error {
	return h.directionViolation(msg)
}

func (h *serverHandler) OnLinkDown(msg *appdu.Message) error {
	return h.directionViolation(msg)
}

func (h *serverHandler) OnAvdeccFromAPS(msg *appdu.Message) error {
	return h.directionViolation(msg)
}

func (h *serverHandler) OnAvdeccFromAPC(msg *appdu.Message) error {
	f, err := msg.AvdeccFrame()
	if err != nil {
		return err
	}
	if err := h.svc.network.WriteFrame(f); err != nil {
		log.Warn().Err(err).Str("session_id", h.sess.id).Msg("aps network write failed")
	}
	return nil
}

func (h *serverHandler) OnVendor(msg *appdu.Message) error {
	tag, err := msg.VendorMessageType()
	if err != nil {
		return err
	}
	log.Debug().
		Str("session_id", h.sess.id).
		Str("vendor_tag", tag.String()).
		Int("len", len(msg.Payload())).
		Msg("aps vendor message ignored")
	return nil
}

func (h *serverHandler) directionViolation(msg *appdu.Message) error {
	log.Warn().
		Str("session_id", h.sess.id).
		Str("type", msg.Type().String()).
		Msg("aps received server-to-client message type from client")
	return nil
}
