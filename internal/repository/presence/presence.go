package presence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"CallCoordinator/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

type Presence struct {
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	IsOnline   bool       `json:"isOnline"`
	SocketID   string     `json:"connectionId,omitempty"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

type PresenceRepo struct {
	Db  *sql.DB
	now func() time.Time
}

func NewPresenceRepo(db *sql.DB) *PresenceRepo {
	return &PresenceRepo{Db: db, now: time.Now}
}

// SetOnline marks the user online on handle, or offline when online is false.
func (p *PresenceRepo) SetOnline(ctx context.Context, userID string, online bool, handle string) error {
	if !online {
		handle = ""
	}
	res, err := p.Db.ExecContext(ctx,
		`UPDATE users SET is_online = $2, socket_id = $3, last_seen_at = $4 WHERE id = $1`,
		userID, online, repository.NullIfEmpty(handle), p.now().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ResetOnline clears flags left behind by a previous process.
func (p *PresenceRepo) ResetOnline(ctx context.Context) (int64, error) {
	res, err := p.Db.ExecContext(ctx,
		`UPDATE users SET is_online = false, socket_id = NULL WHERE is_online`,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PresenceRepo) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	row := p.Db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, userID)
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return name, nil
}

func (p *PresenceRepo) Get(ctx context.Context, userID string) (Presence, error) {
	var (
		rec      Presence
		socketID sql.NullString
		lastSeen sql.NullTime
	)
	row := p.Db.QueryRowContext(ctx,
		`SELECT id, name, is_online, socket_id, last_seen_at FROM users WHERE id = $1`, userID)
	if err := row.Scan(&rec.UserID, &rec.Name, &rec.IsOnline, &socketID, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Presence{}, ErrUserNotFound
		}
		return Presence{}, err
	}
	rec.SocketID = socketID.String
	if lastSeen.Valid {
		rec.LastSeenAt = &lastSeen.Time
	}
	return rec, nil
}
