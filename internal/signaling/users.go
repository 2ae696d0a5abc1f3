package signaling

import (
	"context"
	"sort"

	"CallCoordinator/internal/entity/user"
)

func (s *Server) getAvailableUsers(_ context.Context, req request) error {
	me := req.from.Identity
	online := s.reg.Online(me.Role.Counterparts()...)

	users := make([]userView, 0, len(online))
	for _, b := range online {
		if b.Identity.UserID == me.UserID {
			continue
		}
		users = append(users, userView{
			UserID:       b.Identity.UserID,
			Name:         b.Identity.Name,
			Role:         b.Identity.Role,
			ConnectionID: b.Handle,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	s.sendTo(req.from.Handle, EventAvailableUsers, availableUsers{Users: users})
	return nil
}

// broadcastPresence tells every non-admin role that lists id's role, then the admins.
func (s *Server) broadcastPresence(id user.Identity, online bool, exclude string) {
	update := presenceUpdate{
		UserID:   id.UserID,
		Name:     id.Name,
		Role:     id.Role,
		IsOnline: online,
	}

	audience := make([]user.Role, 0, len(user.CallableRoles))
	for _, r := range user.CallableRoles {
		if r.Sees(id.Role) {
			audience = append(audience, r)
		}
	}
	if len(audience) > 0 {
		for _, b := range s.reg.ListByRole(audience...) {
			if b.Handle == exclude || b.Identity.UserID == id.UserID {
				continue
			}
			s.sendTo(b.Handle, EventPresenceUpdate, update)
		}
	}
	s.fanout.Broadcast(EventPresenceUpdate, update, exclude)
}
