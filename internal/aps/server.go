// Package aps implements the AVDECC Proxy Server role: it accepts proxy
// client TCP sessions, reassembles APPDU messages with one stream parser per
// connection, answers entity ID requests from a local pool, and relays
// AVDECC frames between connected clients and the network port boundary.
package aps

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/avbforge/avproxy/internal/eui"
)

var ErrEntityPoolExhausted = errors.New("aps: entity id pool exhausted")

// SessionInfo is the admin-surface snapshot of one connected proxy client.
type SessionInfo struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	APCPrimaryMAC string    `json:"apc_primary_mac,omitempty"`
	EntityID      string    `json:"entity_id,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
	MessagesRx    uint64    `json:"messages_rx"`
	MessagesTx    uint64    `json:"messages_tx"`
	ParseErrors   int       `json:"parse_errors"`
}

// Server owns the proxy server's shared state: the entity ID pool, the
// observed session registry, and the local link state. IO lives in Service.
type Server struct {
	mu sync.Mutex

	base    eui.EUI64
	claimed map[eui.EUI64]struct{}
	counter uint16

	sessions map[string]SessionInfo
	linkUp   bool
}

// NewServer builds server state with an entity ID pool derived from base.
// The pool hands out base plus a 16-bit counter in the low octets.
func NewServer(base eui.EUI64, linkUp bool) *Server {
	return &Server{
		base:     base,
		claimed:  make(map[eui.EUI64]struct{}),
		sessions: make(map[string]SessionInfo),
		linkUp:   linkUp,
	}
}

// EntityPoolFromMAC derives the default entity ID pool base from the
// server's network port MAC using the EUI-48 to EUI-64 FF:FE expansion.
func EntityPoolFromMAC(mac eui.EUI48) eui.EUI64 {
	return eui.EUI64{mac[0], mac[1], mac[2], 0xFF, 0xFE, mac[3], mac[4], mac[5]}
}

// AssignEntityID grants the requested ID when it is non-zero and unclaimed,
// otherwise derives the next free ID from the pool.
func (s *Server) AssignEntityID(requested eui.EUI64) (eui.EUI64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !requested.IsZero() {
		if _, taken := s.claimed[requested]; !taken {
			s.claimed[requested] = struct{}{}
			return requested, nil
		}
	}

	for i := 0; i < 1<<16; i++ {
		s.counter++
		candidate := s.base
		low := binary.BigEndian.Uint16(candidate[6:8]) + s.counter
		binary.BigEndian.PutUint16(candidate[6:8], low)
		if _, taken := s.claimed[candidate]; !taken {
			s.claimed[candidate] = struct{}{}
			return candidate, nil
		}
	}
	return eui.EUI64{}, ErrEntityPoolExhausted
}

// ReleaseEntityID returns an ID to the pool when its session ends.
func (s *Server) ReleaseEntityID(id eui.EUI64) {
	if id.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, id)
}

// UpsertSession records or refreshes one session's admin snapshot.
func (s *Server) UpsertSession(info SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[info.ID] = info
}

// RemoveSession drops a closed session from the registry.
func (s *Server) RemoveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// SnapshotSessions returns the registry for the admin surface.
func (s *Server) SnapshotSessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, info := range s.sessions {
		out = append(out, info)
	}
	return out
}

// SetLinkUp records the local link state and reports whether it changed.
func (s *Server) SetLinkUp(up bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkUp == up {
		return false
	}
	s.linkUp = up
	return true
}

// LinkUp reports the current local link state.
func (s *Server) LinkUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkUp
}
