package aps

import (
	"errors"

	"github.com/avbforge/avproxy/internal/frame"
)

// NetworkPort is the boundary to the local link-layer driver: the proxy
// server transmits decapsulated AVDECC frames through it. Frames arriving
// from the network reach the proxy through Service.DeliverNetworkFrame, and
// link transitions through Service.SetLinkState.
type NetworkPort interface {
	WriteFrame(f frame.Frame) error
}

var ErrLoopbackFull = errors.New("aps: loopback port buffer full")

// LoopbackPort is a channel-backed NetworkPort for deployments without a
// raw-socket driver and for tests.
type LoopbackPort struct {
	frames chan frame.Frame
}

func NewLoopbackPort(depth int) *LoopbackPort {
	if depth <= 0 {
		depth = 64
	}
	return &LoopbackPort{frames: make(chan frame.Frame, depth)}
}

func (p *LoopbackPort) WriteFrame(f frame.Frame) error {
	select {
	case p.frames <- f:
		return nil
	default:
		return ErrLoopbackFull
	}
}

// Frames exposes the transmitted frames for the consuming side.
func (p *LoopbackPort) Frames() <-chan frame.Frame {
	return p.frames
}
