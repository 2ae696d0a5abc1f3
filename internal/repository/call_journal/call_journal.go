package calljournal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"CallCoordinator/internal/repository"
)

const (
	StatusInitiated = "initiated"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusEnded     = "ended"

	DefaultListLimit = 100
)

var ErrNotFound = errors.New("call journal: not found")

type CallJournal struct {
	CallID      string                 `json:"callId"`
	CallerUser  string                 `json:"callerId"`
	CalleeUser  string                 `json:"calleeId"`
	Status      string                 `json:"status"`
	StartedAt   time.Time              `json:"startedAt"`
	AnsweredAt  *time.Time             `json:"answeredAt,omitempty"`
	EndedAt     *time.Time             `json:"endedAt,omitempty"`
	DurationSec *int                   `json:"duration,omitempty"`
	EndedBy     repository.CallEndedBy `json:"endedBy,omitempty"`
	EndReason   string                 `json:"reason,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

func IsTerminal(status string) bool {
	return status == StatusRejected || status == StatusEnded
}

type ListFilter struct {
	UserID string `validate:"omitempty,max=128"`
	Limit  int    `validate:"min=0,max=500"`
}

type CallJournalRepo struct {
	DB *sql.DB
}

func NewCallJournalRepo(db *sql.DB) *CallJournalRepo {
	return &CallJournalRepo{DB: db}
}

// Append upserts one call record. A row that already reached rejected or
// ended keeps its status, and timestamps are only ever filled, never moved.
func (r *CallJournalRepo) Append(ctx context.Context, rec CallJournal) error {
	const q = `
		INSERT INTO call_journals (
			call_id, caller_user, callee_user, status, started_at,
			answered_at, ended_at, duration_sec, ended_by, end_reason
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (call_id) DO UPDATE SET
			status = CASE
				WHEN call_journals.status IN ('rejected', 'ended') THEN call_journals.status
				ELSE EXCLUDED.status
			END,
			answered_at  = COALESCE(call_journals.answered_at, EXCLUDED.answered_at),
			ended_at     = COALESCE(call_journals.ended_at, EXCLUDED.ended_at),
			duration_sec = COALESCE(call_journals.duration_sec, EXCLUDED.duration_sec),
			ended_by     = COALESCE(call_journals.ended_by, EXCLUDED.ended_by),
			end_reason   = COALESCE(call_journals.end_reason, EXCLUDED.end_reason),
			updated_at   = now()
	`

	_, err := r.DB.ExecContext(
		ctx, q,
		rec.CallID,
		rec.CallerUser,
		rec.CalleeUser,
		rec.Status,
		rec.StartedAt,
		repository.NullTime(rec.AnsweredAt),
		repository.NullTime(rec.EndedAt),
		repository.NullInt(rec.DurationSec),
		repository.NullIfEmpty(string(rec.EndedBy)),
		repository.NullIfEmpty(rec.EndReason),
	)
	if err != nil {
		return fmt.Errorf("append call %s: %w", rec.CallID, err)
	}
	return nil
}

const selectColumns = `
	SELECT call_id, caller_user, callee_user, status, started_at,
		answered_at, ended_at, duration_sec, ended_by, end_reason,
		created_at, updated_at
	FROM call_journals
`

func (r *CallJournalRepo) Get(ctx context.Context, callID string) (CallJournal, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+" WHERE call_id = $1", callID)
	rec, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallJournal{}, ErrNotFound
		}
		return CallJournal{}, err
	}
	return rec, nil
}

// List returns the newest records first, optionally only those involving filter.UserID.
func (r *CallJournalRepo) List(ctx context.Context, filter ListFilter) ([]CallJournal, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(selectColumns)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		sb.WriteString(" WHERE caller_user = $1 OR callee_user = $1")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args)))

	rows, err := r.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallJournal, 0)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (CallJournal, error) {
	var (
		rec        CallJournal
		answeredAt sql.NullTime
		endedAt    sql.NullTime
		duration   sql.NullInt64
		endedBy    sql.NullString
		reason     sql.NullString
	)
	err := s.Scan(
		&rec.CallID, &rec.CallerUser, &rec.CalleeUser, &rec.Status, &rec.StartedAt,
		&answeredAt, &endedAt, &duration, &endedBy, &reason,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return CallJournal{}, err
	}
	if answeredAt.Valid {
		rec.AnsweredAt = &answeredAt.Time
	}
	if endedAt.Valid {
		rec.EndedAt = &endedAt.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		rec.DurationSec = &d
	}
	rec.EndedBy = repository.CallEndedBy(endedBy.String)
	rec.EndReason = reason.String
	return rec, nil
}
