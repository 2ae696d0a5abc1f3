package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"CallCoordinator/internal/callsession"
	"CallCoordinator/internal/entity/user"
	"CallCoordinator/internal/ratelimit"
	"CallCoordinator/internal/registrar"
	calljournal "CallCoordinator/internal/repository/call_journal"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// CallStore is the durable call history.
type CallStore interface {
	Append(ctx context.Context, rec calljournal.CallJournal) error
}

// PresenceStore persists the online flag of a user.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool, handle string) error
}

type Config struct {
	RingTimeout       time.Duration
	SweepInterval     time.Duration
	StoreWriteTimeout time.Duration
	RecorderQueueSize int
}

type request struct {
	from    registrar.Binding
	event   string
	payload []byte
	log     zerolog.Logger
}

type handlerFunc func(ctx context.Context, req request) error

// Server routes inbound events from registered connections and owns the
// call lifecycle around them.
type Server struct {
	reg      *registrar.Registrar
	table    *callsession.Table
	limiter  *ratelimit.Limiter
	presence PresenceStore
	userMu   *userLocks
	recorder *Recorder
	fanout   *AdminFanout
	validate *validator.Validate
	handlers map[string]handlerFunc
	cfg      Config
	logger   zerolog.Logger
}

func New(
	reg *registrar.Registrar,
	table *callsession.Table,
	limiter *ratelimit.Limiter,
	calls CallStore,
	presence PresenceStore,
	cfg Config,
	logger zerolog.Logger,
) *Server {
	if cfg.StoreWriteTimeout <= 0 {
		cfg.StoreWriteTimeout = 5 * time.Second
	}
	if cfg.RecorderQueueSize <= 0 {
		cfg.RecorderQueueSize = 1024
	}
	logger = logger.With().Str("component", "signaling").Logger()

	s := &Server{
		reg:      reg,
		table:    table,
		limiter:  limiter,
		presence: presence,
		userMu:   newUserLocks(),
		recorder: NewRecorder(calls, cfg.RecorderQueueSize, cfg.StoreWriteTimeout, logger),
		fanout:   NewAdminFanout(reg, logger),
		validate: newValidator(),
		cfg:      cfg,
		logger:   logger,
	}
	s.handlers = map[string]handlerFunc{
		EventGetAvailableUsers: s.getAvailableUsers,
		EventInitiateCall:      s.initiateCall,
		EventAcceptCall:        s.acceptCall,
		EventRejectCall:        s.rejectCall,
		EventEndCall:           s.endCall,
		EventOffer:             s.relay,
		EventAnswer:            s.relay,
		EventICECandidate:      s.relay,
		EventGetActiveCalls:    s.getActiveCalls,
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Run drives the recorder and the idle-call sweeper until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.recorder.Run(ctx)
	})
	if s.cfg.SweepInterval > 0 && s.cfg.RingTimeout > 0 {
		g.Go(func() error {
			s.runSweeper(ctx)
			return nil
		})
	}
	return g.Wait()
}

// Connect registers an authenticated connection and announces it.
func (s *Server) Connect(ctx context.Context, conn registrar.Conn, id user.Identity) error {
	handle := conn.ID()
	first, err := s.reg.Register(handle, id, conn)
	if err != nil {
		return err
	}
	connectionsSet(s.reg.Count())

	s.logger.Info().
		Str("conn_id", handle).
		Str("user_id", id.UserID).
		Str("role", id.Role.String()).
		Bool("first", first).
		Msg("connection registered")

	s.syncPresence(ctx, id.UserID)
	s.sendTo(handle, EventSelfInfo, selfInfo{
		ConnectionID: handle,
		UserID:       id.UserID,
		Name:         id.Name,
		Role:         id.Role,
	})
	if first {
		s.broadcastPresence(id, true, handle)
	}
	return nil
}

// Disconnect tears down everything owned by handle. Unknown handles are ignored,
// so a second call for the same handle does nothing.
func (s *Server) Disconnect(ctx context.Context, handle string) {
	dep, ok := s.reg.Unregister(handle)
	if !ok {
		return
	}
	s.limiter.Forget(handle)
	connectionsSet(s.reg.Count())

	for _, sess := range s.table.FindByConnection(handle) {
		ended, err := s.table.ForceEnd(sess.ID, callsession.ReasonDisconnect)
		if err != nil {
			// Already ended by the other party.
			continue
		}
		s.systemEnded(ended)
	}

	id := dep.Identity
	s.logger.Info().
		Str("conn_id", handle).
		Str("user_id", id.UserID).
		Bool("last", dep.NextHandle == "").
		Msg("connection unregistered")

	s.syncPresence(ctx, id.UserID)
	if dep.NextHandle == "" {
		s.broadcastPresence(id, false, handle)
	}
}

// HandleMessage processes one raw frame from handle. It never panics and
// reports every failure back to the sender.
func (s *Server) HandleMessage(ctx context.Context, handle string, raw []byte) {
	from, err := s.reg.Lookup(handle)
	if err != nil {
		s.logger.Warn().Str("conn_id", handle).Msg("message from unregistered connection")
		return
	}
	log := s.logger.With().
		Str("conn_id", handle).
		Str("user_id", from.Identity.UserID).
		Str("role", from.Identity.Role.String()).
		Logger()

	if !gjson.ValidBytes(raw) {
		s.reject(from, "", fmt.Errorf("%w: malformed JSON", ErrValidation))
		return
	}
	ev := gjson.GetBytes(raw, "event")
	if ev.Type != gjson.String || ev.String() == "" {
		s.reject(from, "", fmt.Errorf("%w: missing event", ErrValidation))
		return
	}
	event := ev.String()
	h, ok := s.handlers[event]
	if !ok {
		s.reject(from, event, fmt.Errorf("%w: unknown event %q", ErrValidation, event))
		return
	}

	if !s.limiter.Allow(handle, event) {
		rateLimitedInc(event)
		eventIn(event, CodeRateLimited)
		log.Warn().Str("event", event).Msg("rate limited")
		s.sendTo(handle, EventRateLimited, rateLimited{
			Code:         CodeRateLimited,
			Event:        event,
			Message:      "too many events, slow down",
			RetryAfterMs: s.limiter.RetryAfter(handle, event).Milliseconds(),
		})
		return
	}

	payload := []byte("{}")
	if p := gjson.GetBytes(raw, "payload"); p.Exists() {
		payload = []byte(p.Raw)
	}

	start := time.Now()
	err = s.dispatch(ctx, h, request{from: from, event: event, payload: payload, log: log})
	observeHandler(event, start)
	if err != nil {
		s.reject(from, event, err)
		return
	}
	eventIn(event, "ok")
}

func (s *Server) dispatch(ctx context.Context, h handlerFunc, req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			req.log.Error().
				Str("event", req.event).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("handler panic")
			err = fmt.Errorf("%w: %v", errInternal, r)
		}
	}()
	return h(ctx, req)
}

func (s *Server) reject(from registrar.Binding, event string, err error) {
	p := toErrorPayload(event, err)
	label := event
	if label == "" {
		label = "unknown"
	}
	eventIn(label, p.Code)

	ev := s.logger.Debug()
	if p.Code == CodeInternal {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("conn_id", from.Handle).Str("event", event).Str("code", p.Code).Msg("event rejected")

	s.sendTo(from.Handle, EventError, p)
}

func (s *Server) decode(payload []byte, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// sendTo delivers one event to handle. Departed handles are skipped.
func (s *Server) sendTo(handle, event string, payload any) bool {
	if handle == "" {
		return false
	}
	b, err := s.reg.Lookup(handle)
	if err != nil {
		return false
	}
	msg, err := encode(event, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("encode outbound event")
		return false
	}
	return b.Conn.Send(msg)
}

// syncPresence writes the registry's current view of userID to the presence
// store. The registry read and the write happen under the user's lock, so
// the last write for a user always reflects the registry at that time.
func (s *Server) syncPresence(ctx context.Context, userID string) {
	if s.presence == nil {
		return
	}
	unlock := s.userMu.lock(userID)
	defer unlock()

	handle, online := s.reg.CurrentHandle(userID)
	s.setPresence(ctx, userID, online, handle)
}

func (s *Server) setPresence(ctx context.Context, userID string, online bool, handle string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreWriteTimeout)
	defer cancel()

	err := s.presence.SetOnline(ctx, userID, online, handle)
	storeWrite("presence", err)
	if err != nil {
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Bool("online", online).
			Msg("presence update failed")
	}
}

// ActiveCalls returns the live call table, oldest first.
func (s *Server) ActiveCalls() []callsession.Session {
	return s.table.Snapshot()
}

// Online lists connected users, one entry per user.
func (s *Server) Online() []registrar.Binding {
	return s.reg.Online()
}

// CloseAll closes every registered connection. Each connection then runs its
// normal disconnect path.
func (s *Server) CloseAll() int {
	all := s.reg.All()
	for _, b := range all {
		if err := b.Conn.Close(); err != nil {
			s.logger.Debug().Err(err).Str("conn_id", b.Handle).Msg("close connection")
		}
	}
	return len(all)
}

// Flush waits until every durable write queued so far has been attempted.
func (s *Server) Flush(ctx context.Context) error {
	return s.recorder.Flush(ctx)
}
