package callsession

import (
	"errors"
	"time"

	"CallCoordinator/internal/repository"
)

var (
	ErrSelfCall            = errors.New("callsession: caller and callee are the same user")
	ErrCalleeOffline       = errors.New("callsession: callee is offline")
	ErrDuplicateActiveCall = errors.New("callsession: a live call already exists between these users")
	ErrNotFound            = errors.New("callsession: call not found")
	ErrUnauthorized        = errors.New("callsession: actor may not perform this transition")
	ErrInvalidTransition   = errors.New("callsession: invalid status transition")
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusEnded     Status = "ended"
)

func (s Status) Live() bool {
	return s == StatusInitiated || s == StatusAccepted
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusEnded
}

// canMove lists the only legal edges of the call state machine.
func canMove(from, to Status) bool {
	switch from {
	case StatusInitiated:
		return to == StatusAccepted || to == StatusRejected || to == StatusEnded
	case StatusAccepted:
		return to == StatusEnded
	}
	return false
}

type EndReason string

const (
	ReasonHangup     EndReason = "hangup"
	ReasonDisconnect EndReason = "disconnect"
	ReasonTimeout    EndReason = "timeout"
)

// Party is one side of a call, pinned to the connection that carries it.
type Party struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Handle string `json:"connectionId"`
}

// Actor is whoever asks for a transition.
type Actor struct {
	UserID string
	Handle string
}

type Session struct {
	ID         string                 `json:"callId"`
	Caller     Party                  `json:"caller"`
	Callee     Party                  `json:"callee"`
	Status     Status                 `json:"status"`
	StartedAt  time.Time              `json:"startedAt"`
	AnsweredAt *time.Time             `json:"answeredAt,omitempty"`
	EndedAt    *time.Time             `json:"endedAt,omitempty"`
	Duration   *int                   `json:"duration,omitempty"`
	EndedBy    repository.CallEndedBy `json:"endedBy,omitempty"`
	Reason     EndReason              `json:"reason,omitempty"`
}

func (s Session) Involves(handle string) bool {
	return s.Caller.Handle == handle || s.Callee.Handle == handle
}

func (s Session) HasUser(userID string) bool {
	return s.Caller.UserID == userID || s.Callee.UserID == userID
}

// Counterpart returns the party on the other side of handle.
func (s Session) Counterpart(handle string) Party {
	if s.Caller.Handle == handle {
		return s.Callee
	}
	return s.Caller
}

func (s Session) sideOf(userID string) repository.CallEndedBy {
	if s.Caller.UserID == userID {
		return repository.CallEndedByCaller
	}
	return repository.CallEndedByCallee
}
