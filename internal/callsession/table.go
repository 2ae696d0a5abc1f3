package callsession

import (
	"sort"
	"sync"
	"time"

	"CallCoordinator/internal/repository"

	"github.com/google/uuid"
)

type pairKey struct {
	a, b string
}

func keyOf(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Table owns every live call. All mutations run under one mutex, so the
// duplicate-pair check and the insert are a single atomic step.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pairs    map[pairKey]string
	now      func() time.Time
	newID    func() string
}

type Option func(*Table)

func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

func withIDGenerator(gen func() string) Option {
	return func(t *Table) { t.newID = gen }
}

func NewTable(opts ...Option) *Table {
	t := &Table{
		sessions: make(map[string]*Session),
		pairs:    make(map[pairKey]string),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create opens a ringing call. live reports whether the callee's handle is
// still registered; it runs under the table lock so that a disconnect either
// precedes the check or finds the new session in FindByConnection.
func (t *Table) Create(caller, callee Party, live func(handle string) bool) (Session, error) {
	if caller.UserID == callee.UserID {
		return Session{}, ErrSelfCall
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if callee.Handle == "" || (live != nil && !live(callee.Handle)) {
		return Session{}, ErrCalleeOffline
	}

	key := keyOf(caller.UserID, callee.UserID)
	if _, ok := t.pairs[key]; ok {
		return Session{}, ErrDuplicateActiveCall
	}

	s := &Session{
		ID:        t.newID(),
		Caller:    caller,
		Callee:    callee,
		Status:    StatusInitiated,
		StartedAt: t.now(),
	}
	t.sessions[s.ID] = s
	t.pairs[key] = s.ID
	return *s, nil
}

// Transition applies a participant-driven status change. accept and reject
// belong to the callee; end belongs to either party.
func (t *Table) Transition(callID string, to Status, actor Actor) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}

	switch to {
	case StatusAccepted, StatusRejected:
		if actor.UserID != s.Callee.UserID {
			return Session{}, ErrUnauthorized
		}
	case StatusEnded:
		if !s.HasUser(actor.UserID) {
			return Session{}, ErrUnauthorized
		}
	}

	if !canMove(s.Status, to) {
		return Session{}, ErrInvalidTransition
	}

	now := t.now()
	switch to {
	case StatusAccepted:
		s.AnsweredAt = &now
		if actor.Handle != "" {
			s.Callee.Handle = actor.Handle
		}
	case StatusRejected:
		s.EndedAt = &now
		s.EndedBy = repository.CallEndedByCallee
	case StatusEnded:
		t.finish(s, now, s.sideOf(actor.UserID), ReasonHangup)
	}
	s.Status = to

	if to.Terminal() {
		t.removeLocked(s)
	}
	return *s, nil
}

// ForceEnd ends a live call on behalf of the system.
func (t *Table) ForceEnd(callID string, reason EndReason) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !s.Status.Live() {
		return Session{}, ErrInvalidTransition
	}

	t.finish(s, t.now(), repository.CallEndedBySystem, reason)
	s.Status = StatusEnded
	t.removeLocked(s)
	return *s, nil
}

// ExpireInitiated ends every call still ringing after olderThan and returns them.
func (t *Table) ExpireInitiated(olderThan time.Duration) []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]Session, 0)
	for _, s := range t.sessions {
		if s.Status != StatusInitiated || now.Sub(s.StartedAt) < olderThan {
			continue
		}
		t.finish(s, now, repository.CallEndedBySystem, ReasonTimeout)
		s.Status = StatusEnded
		t.removeLocked(s)
		out = append(out, *s)
	}
	return out
}

func (t *Table) finish(s *Session, now time.Time, by repository.CallEndedBy, reason EndReason) {
	d := int(now.Sub(s.StartedAt) / time.Second)
	if d < 0 {
		d = 0
	}
	s.EndedAt = &now
	s.Duration = &d
	s.EndedBy = by
	s.Reason = reason
}

func (t *Table) removeLocked(s *Session) {
	delete(t.sessions, s.ID)
	key := keyOf(s.Caller.UserID, s.Callee.UserID)
	if t.pairs[key] == s.ID {
		delete(t.pairs, key)
	}
}

func (t *Table) Get(callID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

func (t *Table) FindByConnection(handle string) []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Session, 0)
	for _, s := range t.sessions {
		if s.Involves(handle) {
			out = append(out, *s)
		}
	}
	return out
}

// remove drops a session without recording a transition.
func (t *Table) remove(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[callID]
	if !ok {
		return false
	}
	t.removeLocked(s)
	return true
}

// Snapshot returns every live call, oldest first.
func (t *Table) Snapshot() []Session {
	t.mu.Lock()
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
