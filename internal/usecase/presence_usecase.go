package usecase

import (
	"sort"
	"time"

	"CallCoordinator/internal/entity/user"
	"CallCoordinator/internal/registrar"
)

type OnlineSource interface {
	Online() []registrar.Binding
}

type OnlineUser struct {
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Role         user.Role `json:"role"`
	ConnectionID string    `json:"connectionId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

type PresenceUsecase struct {
	source OnlineSource
}

func NewPresenceUsecase(source OnlineSource) *PresenceUsecase {
	return &PresenceUsecase{
		source: source,
	}
}

func (p *PresenceUsecase) List() ([]OnlineUser, error) {
	online := p.source.Online()
	users := make([]OnlineUser, 0, len(online))
	for _, b := range online {
		users = append(users, OnlineUser{
			UserID:       b.Identity.UserID,
			Name:         b.Identity.Name,
			Role:         b.Identity.Role,
			ConnectionID: b.Handle,
			ConnectedAt:  b.ConnectedAt,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}
