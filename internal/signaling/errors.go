package signaling

import (
	"errors"
	"fmt"

	"CallCoordinator/internal/callsession"
	"CallCoordinator/internal/registrar"

	"github.com/go-playground/validator/v10"
)

const (
	CodeAuthentication      = "authentication_error"
	CodeRateLimited         = "rate_limited"
	CodeValidation          = "validation_error"
	CodeSelfCall            = "self_call"
	CodeCalleeOffline       = "callee_offline"
	CodeDuplicateActiveCall = "duplicate_active_call"
	CodeNotFound            = "not_found"
	CodeUnauthorized        = "unauthorized"
	CodeInvalidTransition   = "invalid_transition"
	CodeInternal            = "internal_error"
)

var (
	ErrValidation   = errors.New("invalid payload")
	ErrUnauthorized = errors.New("not allowed for this role")
	errInternal     = errors.New("internal error")
)

var messages = map[string]string{
	CodeSelfCall:            "cannot call yourself",
	CodeCalleeOffline:       "callee is not online",
	CodeDuplicateActiveCall: "a call between these users is already in progress",
	CodeNotFound:            "not found",
	CodeUnauthorized:        "not allowed",
	CodeInvalidTransition:   "call cannot move to that state",
	CodeInternal:            "internal error",
}

// callError ties a failure to the call it concerns.
type callError struct {
	callID string
	err    error
}

func (e *callError) Error() string { return fmt.Sprintf("call %s: %v", e.callID, e.err) }
func (e *callError) Unwrap() error { return e.err }

func withCall(callID string, err error) error {
	if err == nil {
		return nil
	}
	return &callError{callID: callID, err: err}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, callsession.ErrSelfCall):
		return CodeSelfCall
	case errors.Is(err, callsession.ErrCalleeOffline):
		return CodeCalleeOffline
	case errors.Is(err, callsession.ErrDuplicateActiveCall):
		return CodeDuplicateActiveCall
	case errors.Is(err, callsession.ErrNotFound), errors.Is(err, registrar.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, callsession.ErrUnauthorized), errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, callsession.ErrInvalidTransition):
		return CodeInvalidTransition
	}
	return CodeInternal
}

func toErrorPayload(event string, err error) errorPayload {
	code := errorCode(err)
	p := errorPayload{Code: code, Event: event, Message: messages[code]}
	if code == CodeValidation {
		p.Message = err.Error()
	}
	var ce *callError
	if errors.As(err, &ce) {
		p.CallID = ce.callID
	}
	return p
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	e := verrs[0]
	var text string
	switch e.Tag() {
	case "required":
		text = "is required"
	case "max":
		text = fmt.Sprintf("must be at most %s characters", e.Param())
	default:
		text = "has an invalid value"
	}
	return fmt.Errorf("%w: field %s %s", ErrValidation, e.Field(), text)
}
