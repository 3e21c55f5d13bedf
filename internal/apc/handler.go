package apc

import (
	"github.com/rs/zerolog/log"

	"github.com/avbforge/avproxy/internal/appdu"
)

// clientHandler maps inbound messages onto client state and the consumer
// callbacks. Types that only ever flow client-to-server are logged as
// protocol direction violations and otherwise ignored.
type clientHandler struct {
	c *Client
}

func (h *clientHandler) OnNop(*appdu.Message) error {
	return nil
}

func (h *clientHandler) OnEntityIDRequest(msg *appdu.Message) error {
	return h.directionViolation(msg)
}

func (h *clientHandler) OnEntityIDResponse(msg *appdu.Message) error {
	id, err := msg.RequestedEntityID()
	if err != nil {
		return err
	}
	h.c.mu.Lock()
	h.c.entityID = id
	h.c.mu.Unlock()
	log.Info().Str("entity_id", id.String()).Msg("apc entity id assigned")
	return nil
}

func (h *clientHandler) OnLinkUp(msg *appdu.Message) error {
	return h.linkTransition(msg, true)
}

func (h *clientHandler) OnLinkDown(msg *appdu.Message) error {
	return h.linkTransition(msg, false)
}

func (h *clientHandler) OnAvdeccFromAPS(msg *appdu.Message) error {
	f, err := msg.AvdeccFrame()
	if err != nil {
		return err
	}
	if h.c.onFrame != nil {
		h.c.onFrame(f)
	}
	return nil
}

func (h *clientHandler) OnAvdeccFromAPC(msg *appdu.Message) error {
	return h.directionViolation(msg)
}

func (h *clientHandler) OnVendor(msg *appdu.Message) error {
	tag, err := msg.VendorMessageType()
	if err != nil {
		return err
	}
	data, err := msg.VendorData()
	if err != nil {
		return err
	}
	if h.c.onVendor != nil {
		h.c.onVendor(tag, data)
	}
	return nil
}

func (h *clientHandler) linkTransition(msg *appdu.Message, up bool) error {
	mac, err := msg.NetworkPortMAC()
	if err != nil {
		return err
	}
	h.c.mu.Lock()
	h.c.linkUp = up
	h.c.portMAC = mac
	h.c.mu.Unlock()
	log.Info().Bool("up", up).Str("port_mac", mac.String()).Msg("apc link state")
	if h.c.onLink != nil {
		h.c.onLink(up, mac)
	}
	return nil
}

func (h *clientHandler) directionViolation(msg *appdu.Message) error {
	log.Warn().
		Str("type", msg.Type().String()).
		Msg("apc received client-to-server message type from server")
	return nil
}
