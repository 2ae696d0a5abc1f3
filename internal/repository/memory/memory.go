package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	calljournal "CallCoordinator/internal/repository/call_journal"
	"CallCoordinator/internal/repository/presence"
)

// CallJournalRepository keeps call records in process, merging updates the
// same way the postgres upsert does.
type CallJournalRepository struct {
	mu      sync.Mutex
	records map[string]calljournal.CallJournal
	now     func() time.Time
}

func NewCallJournalRepository() *CallJournalRepository {
	return &CallJournalRepository{
		records: make(map[string]calljournal.CallJournal),
		now:     time.Now,
	}
}

func (r *CallJournalRepository) Append(_ context.Context, rec calljournal.CallJournal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cur, ok := r.records[rec.CallID]
	if !ok {
		rec.CreatedAt = now
		rec.UpdatedAt = now
		r.records[rec.CallID] = rec
		return nil
	}

	if !calljournal.IsTerminal(cur.Status) {
		cur.Status = rec.Status
	}
	if cur.AnsweredAt == nil {
		cur.AnsweredAt = rec.AnsweredAt
	}
	if cur.EndedAt == nil {
		cur.EndedAt = rec.EndedAt
	}
	if cur.DurationSec == nil {
		cur.DurationSec = rec.DurationSec
	}
	if cur.EndedBy == "" {
		cur.EndedBy = rec.EndedBy
	}
	if cur.EndReason == "" {
		cur.EndReason = rec.EndReason
	}
	cur.UpdatedAt = now
	r.records[rec.CallID] = cur
	return nil
}

func (r *CallJournalRepository) Get(_ context.Context, callID string) (calljournal.CallJournal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[callID]
	if !ok {
		return calljournal.CallJournal{}, calljournal.ErrNotFound
	}
	return rec, nil
}

func (r *CallJournalRepository) List(_ context.Context, filter calljournal.ListFilter) ([]calljournal.CallJournal, error) {
	r.mu.Lock()
	out := make([]calljournal.CallJournal, 0, len(r.records))
	for _, rec := range r.records {
		if filter.UserID != "" && rec.CallerUser != filter.UserID && rec.CalleeUser != filter.UserID {
			continue
		}
		out = append(out, rec)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = calljournal.DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PresenceRepository tracks online flags for users seen by this process.
// Unlike the postgres store it has no user catalogue, so any user id is accepted.
type PresenceRepository struct {
	mu    sync.Mutex
	users map[string]presence.Presence
	now   func() time.Time
}

func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{
		users: make(map[string]presence.Presence),
		now:   time.Now,
	}
}

// Seed registers a display name for userID.
func (r *PresenceRepository) Seed(userID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.users[userID]
	rec.UserID = userID
	rec.Name = name
	r.users[userID] = rec
}

func (r *PresenceRepository) SetOnline(_ context.Context, userID string, online bool, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := r.users[userID]
	rec.UserID = userID
	rec.IsOnline = online
	rec.SocketID = ""
	if online {
		rec.SocketID = handle
	}
	rec.LastSeenAt = &now
	r.users[userID] = rec
	return nil
}

func (r *PresenceRepository) ResetOnline(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, rec := range r.users {
		if rec.IsOnline {
			rec.IsOnline = false
			rec.SocketID = ""
			r.users[id] = rec
			n++
		}
	}
	return n, nil
}

func (r *PresenceRepository) DisplayName(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[userID]
	if !ok || rec.Name == "" {
		return "", presence.ErrUserNotFound
	}
	return rec.Name, nil
}

func (r *PresenceRepository) Get(_ context.Context, userID string) (presence.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[userID]
	if !ok {
		return presence.Presence{}, presence.ErrUserNotFound
	}
	return rec, nil
}
