package signaling

import (
	"context"

	"CallCoordinator/internal/callsession"
	"CallCoordinator/internal/registrar"
	calljournal "CallCoordinator/internal/repository/call_journal"
)

func partyOf(b registrar.Binding) callsession.Party {
	return callsession.Party{UserID: b.Identity.UserID, Name: b.Identity.Name, Handle: b.Handle}
}

func actorOf(b registrar.Binding) callsession.Actor {
	return callsession.Actor{UserID: b.Identity.UserID, Handle: b.Handle}
}

func (s *Server) initiateCall(_ context.Context, req request) error {
	var p initiateCallPayload
	if err := s.decode(req.payload, &p); err != nil {
		return err
	}
	if p.CalleeID == req.from.Identity.UserID {
		return callsession.ErrSelfCall
	}

	callee := callsession.Party{UserID: p.CalleeID}
	if handle, ok := s.reg.CurrentHandle(p.CalleeID); ok {
		if b, err := s.reg.Lookup(handle); err == nil {
			callee = partyOf(b)
		}
	}

	sess, err := s.table.Create(partyOf(req.from), callee, s.reg.Live)
	if err != nil {
		return err
	}
	s.changed(sess)

	req.log.Info().Str("call_id", sess.ID).Str("callee_id", callee.UserID).Msg("call initiated")

	s.sendTo(req.from.Handle, EventCallInitiated, callInitiated{
		CallID:    sess.ID,
		CalleeID:  callee.UserID,
		StartedAt: sess.StartedAt,
	})
	s.sendTo(callee.Handle, EventIncomingCall, incomingCall{
		CallID:             sess.ID,
		Caller:             callerInfo{UserID: sess.Caller.UserID, Name: sess.Caller.Name},
		CallerConnectionID: sess.Caller.Handle,
		StartedAt:          sess.StartedAt,
	})
	s.fanout.Broadcast(EventNewCall, sess, "")
	return nil
}

func (s *Server) acceptCall(_ context.Context, req request) error {
	var p callIDPayload
	if err := s.decode(req.payload, &p); err != nil {
		return err
	}
	sess, err := s.table.Transition(p.CallID, callsession.StatusAccepted, actorOf(req.from))
	if err != nil {
		return withCall(p.CallID, err)
	}
	s.changed(sess)

	msg := callAccepted{
		CallID:             sess.ID,
		CallerID:           sess.Caller.UserID,
		CalleeID:           sess.Callee.UserID,
		CallerConnectionID: sess.Caller.Handle,
		CalleeConnectionID: sess.Callee.Handle,
		AnsweredAt:         sess.AnsweredAt,
	}
	s.sendTo(sess.Caller.Handle, EventCallAccepted, msg)
	s.sendTo(sess.Callee.Handle, EventCallAccepted, msg)
	s.fanout.Broadcast(EventCallStatusUpdate, statusUpdateOf(sess), "")
	return nil
}

func (s *Server) rejectCall(_ context.Context, req request) error {
	var p callIDPayload
	if err := s.decode(req.payload, &p); err != nil {
		return err
	}
	sess, err := s.table.Transition(p.CallID, callsession.StatusRejected, actorOf(req.from))
	if err != nil {
		return withCall(p.CallID, err)
	}
	s.changed(sess)

	s.sendTo(sess.Caller.Handle, EventCallRejected, callRejected{
		CallID:   sess.ID,
		CalleeID: sess.Callee.UserID,
	})
	s.fanout.Broadcast(EventCallEnded, statusUpdateOf(sess), "")
	return nil
}

func (s *Server) endCall(_ context.Context, req request) error {
	var p callIDPayload
	if err := s.decode(req.payload, &p); err != nil {
		return err
	}
	sess, err := s.table.Transition(p.CallID, callsession.StatusEnded, actorOf(req.from))
	if err != nil {
		return withCall(p.CallID, err)
	}
	s.changed(sess)

	msg := callEndedOf(sess)
	s.sendTo(sess.Caller.Handle, EventCallEnded, msg)
	s.sendTo(sess.Callee.Handle, EventCallEnded, msg)
	s.fanout.Broadcast(EventCallStatusUpdate, statusUpdateOf(sess), "")
	return nil
}

// systemEnded notifies whoever is still connected about a call the
// coordinator ended on its own.
func (s *Server) systemEnded(sess callsession.Session) {
	s.changed(sess)

	s.logger.Info().
		Str("call_id", sess.ID).
		Str("reason", string(sess.Reason)).
		Msg("call ended by system")

	msg := callEndedOf(sess)
	s.sendTo(sess.Caller.Handle, EventCallEnded, msg)
	s.sendTo(sess.Callee.Handle, EventCallEnded, msg)
	s.fanout.Broadcast(EventCallStatusUpdate, statusUpdateOf(sess), "")
}

// changed records a transition durably and in metrics.
func (s *Server) changed(sess callsession.Session) {
	callTransition(sess)
	activeCallsSet(s.table.Len())
	s.recorder.Record(journalOf(sess))
}

func journalOf(sess callsession.Session) calljournal.CallJournal {
	return calljournal.CallJournal{
		CallID:      sess.ID,
		CallerUser:  sess.Caller.UserID,
		CalleeUser:  sess.Callee.UserID,
		Status:      string(sess.Status),
		StartedAt:   sess.StartedAt,
		AnsweredAt:  sess.AnsweredAt,
		EndedAt:     sess.EndedAt,
		DurationSec: sess.Duration,
		EndedBy:     sess.EndedBy,
		EndReason:   string(sess.Reason),
	}
}

func (s *Server) getActiveCalls(_ context.Context, req request) error {
	if !req.from.Identity.Role.IsAdmin() {
		return ErrUnauthorized
	}
	s.sendTo(req.from.Handle, EventActiveCalls, activeCalls{Calls: s.table.Snapshot()})
	return nil
}
