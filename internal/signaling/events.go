package signaling

import (
	"encoding/json"
	"time"

	"CallCoordinator/internal/callsession"
	"CallCoordinator/internal/entity/user"
	"CallCoordinator/internal/repository"
)

// Inbound events.
const (
	EventGetAvailableUsers = "get-available-users"
	EventInitiateCall      = "initiate-call"
	EventAcceptCall        = "accept-call"
	EventRejectCall        = "reject-call"
	EventEndCall           = "end-call"
	EventOffer             = "offer"
	EventAnswer            = "answer"
	EventICECandidate      = "ice-candidate"
	EventGetActiveCalls    = "get-active-calls"
)

// Outbound events.
const (
	EventSelfInfo         = "self-info"
	EventAvailableUsers   = "available-users"
	EventPresenceUpdate   = "presence-update"
	EventCallInitiated    = "call-initiated"
	EventIncomingCall     = "incoming-call"
	EventNewCall          = "new-call"
	EventCallAccepted     = "call-accepted"
	EventCallRejected     = "call-rejected"
	EventCallEnded        = "call-ended"
	EventCallStatusUpdate = "call-status-update"
	EventActiveCalls      = "active-calls"
	EventRateLimited      = "rate-limited"
	EventError            = "error"
)

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(envelope{Event: event, Payload: payload})
}

type initiateCallPayload struct {
	CalleeID string `json:"calleeId" validate:"required,max=128"`
}

type callIDPayload struct {
	CallID string `json:"callId" validate:"required,max=128"`
}

type relayPayload struct {
	Target  string          `json:"target" validate:"required,max=128"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type selfInfo struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Role         user.Role `json:"role"`
}

type userView struct {
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Role         user.Role `json:"role"`
	ConnectionID string    `json:"connectionId"`
}

type availableUsers struct {
	Users []userView `json:"users"`
}

type presenceUpdate struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Role     user.Role `json:"role"`
	IsOnline bool      `json:"isOnline"`
}

type callInitiated struct {
	CallID    string    `json:"callId"`
	CalleeID  string    `json:"calleeId"`
	StartedAt time.Time `json:"startedAt"`
}

type callerInfo struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type incomingCall struct {
	CallID             string     `json:"callId"`
	Caller             callerInfo `json:"caller"`
	CallerConnectionID string     `json:"callerConnectionId"`
	StartedAt          time.Time  `json:"startedAt"`
}

type callAccepted struct {
	CallID             string     `json:"callId"`
	CallerID           string     `json:"callerId"`
	CalleeID           string     `json:"calleeId"`
	CallerConnectionID string     `json:"callerConnectionId"`
	CalleeConnectionID string     `json:"calleeConnectionId"`
	AnsweredAt         *time.Time `json:"answeredAt,omitempty"`
}

type callRejected struct {
	CallID   string `json:"callId"`
	CalleeID string `json:"calleeId"`
}

type callEnded struct {
	CallID   string                 `json:"callId"`
	Reason   callsession.EndReason  `json:"reason"`
	EndedBy  repository.CallEndedBy `json:"endedBy"`
	Duration *int                   `json:"duration,omitempty"`
}

type callStatusUpdate struct {
	CallID   string                `json:"callId"`
	Status   callsession.Status    `json:"status"`
	CallerID string                `json:"callerId"`
	CalleeID string                `json:"calleeId"`
	Reason   callsession.EndReason `json:"reason,omitempty"`
	Duration *int                  `json:"duration,omitempty"`
}

type activeCalls struct {
	Calls []callsession.Session `json:"calls"`
}

type rateLimited struct {
	Code         string `json:"code"`
	Event        string `json:"event"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event"`
	CallID  string `json:"callId,omitempty"`
}

type relayed struct {
	From       string          `json:"from"`
	FromUserID string          `json:"fromUserId"`
	Payload    json.RawMessage `json:"payload"`
}

func statusUpdateOf(s callsession.Session) callStatusUpdate {
	return callStatusUpdate{
		CallID:   s.ID,
		Status:   s.Status,
		CallerID: s.Caller.UserID,
		CalleeID: s.Callee.UserID,
		Reason:   s.Reason,
		Duration: s.Duration,
	}
}

func callEndedOf(s callsession.Session) callEnded {
	return callEnded{
		CallID:   s.ID,
		Reason:   s.Reason,
		EndedBy:  s.EndedBy,
		Duration: s.Duration,
	}
}
