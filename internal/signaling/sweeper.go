package signaling

import (
	"context"
	"time"
)

func (s *Server) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.cfg.SweepInterval).
		Dur("ring_timeout", s.cfg.RingTimeout).
		Msg("idle call sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep ends calls that have been ringing longer than the ring timeout.
func (s *Server) Sweep() int {
	expired := s.table.ExpireInitiated(s.cfg.RingTimeout)
	for _, sess := range expired {
		s.systemEnded(sess)
	}
	return len(expired)
}
