package signaling

import (
	"CallCoordinator/internal/entity/user"
	"CallCoordinator/internal/registrar"

	"github.com/rs/zerolog"
)

// AdminFanout is a best-effort broadcast to every admin connection.
type AdminFanout struct {
	reg    *registrar.Registrar
	logger zerolog.Logger
}

func NewAdminFanout(reg *registrar.Registrar, logger zerolog.Logger) *AdminFanout {
	return &AdminFanout{reg: reg, logger: logger}
}

// Broadcast sends event to all admins except exclude and returns how many accepted it.
func (f *AdminFanout) Broadcast(event string, payload any, exclude string) int {
	admins := f.reg.ListByRole(user.RoleAdmin)
	if len(admins) == 0 {
		return 0
	}
	msg, err := encode(event, payload)
	if err != nil {
		f.logger.Error().Err(err).Str("event", event).Msg("encode admin event")
		return 0
	}

	sent := 0
	for _, b := range admins {
		if b.Handle == exclude {
			continue
		}
		if b.Conn.Send(msg) {
			sent++
		}
	}
	return sent
}
