package signaling

import (
	"context"
	"fmt"

	"CallCoordinator/internal/registrar"
)

// relay forwards an opaque negotiation payload to the target connection.
func (s *Server) relay(_ context.Context, req request) error {
	var p relayPayload
	if err := s.decode(req.payload, &p); err != nil {
		return err
	}
	if string(p.Payload) == "null" {
		return fmt.Errorf("%w: field payload is required", ErrValidation)
	}
	if _, err := s.reg.Lookup(p.Target); err != nil {
		return fmt.Errorf("relay target %s: %w", p.Target, registrar.ErrNotFound)
	}

	if !s.sendTo(p.Target, req.event, relayed{
		From:       req.from.Handle,
		FromUserID: req.from.Identity.UserID,
		Payload:    p.Payload,
	}) {
		req.log.Debug().Str("target", p.Target).Str("event", req.event).Msg("relay dropped")
	}
	return nil
}
