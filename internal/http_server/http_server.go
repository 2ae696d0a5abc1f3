package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"CallCoordinator/internal/auth"
	"CallCoordinator/internal/entity/user"
	calljournal "CallCoordinator/internal/repository/call_journal"
	"CallCoordinator/internal/signaling"
	"CallCoordinator/internal/transport"
	"CallCoordinator/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrBadRequest = errors.New("bad request")

type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (user.Identity, error)
}

type HttpServer struct {
	signaling          *signaling.Server
	callJournalUsecase *usecase.CallJournalUsecase
	sessionUsecase     *usecase.SessionUsecase
	presenceUsecase    *usecase.PresenceUsecase
	auth               Authenticator
	upgrader           websocket.Upgrader
	transport          transport.Config
	validator          *validator.Validate
	logger             zerolog.Logger

	conns   sync.WaitGroup
	closing atomic.Bool
}

func NewHttpServer(
	sig *signaling.Server,
	calls usecase.CallHistory,
	authenticator Authenticator,
	transportCfg transport.Config,
	logger zerolog.Logger,
) *HttpServer {
	return &HttpServer{
		signaling:          sig,
		callJournalUsecase: usecase.NewCallJournalUsecase(calls),
		sessionUsecase:     usecase.NewSessionUsecase(sig),
		presenceUsecase:    usecase.NewPresenceUsecase(sig),
		auth:               authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the web app origin; the credential is what gates access.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		transport: transportCfg,
		validator: validator.New(),
		logger:    logger.With().Str("component", "http").Logger(),
	}
}

// ServeWS authenticates before upgrading. A rejected credential never reaches the registry.
func (s *HttpServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"errors": map[string]interface{}{"server": "shutting down"},
		})
		return
	}

	id, err := s.auth.Authenticate(r.Context(), auth.CredentialFromRequest(r))
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket authentication failed")
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"errors": map[string]interface{}{"auth": signaling.CodeAuthentication},
		})
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade")
		return
	}

	conn := transport.New(ws, s.transport, s.logger.With().
		Str("user_id", id.UserID).
		Str("role", id.Role.String()).
		Logger())
	ctx := context.WithoutCancel(r.Context())

	if err := s.signaling.Connect(ctx, conn, id); err != nil {
		s.logger.Error().Err(err).Str("conn_id", conn.ID()).Msg("register connection")
		_ = conn.Close()
		return
	}
	defer s.signaling.Disconnect(ctx, conn.ID())

	if s.closing.Load() {
		_ = conn.Close()
		return
	}

	if err := conn.Run(ctx, s.signaling.HandleMessage); err != nil {
		s.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("connection read loop ended")
	}
}

// Shutdown closes every live connection and waits for their disconnect handling.
func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	n := s.signaling.CloseAll()
	s.logger.Info().Int("connections", n).Msg("closing websocket connections")

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequireAdmin guards the reporting API with the same credential as the socket.
func (s *HttpServer) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.auth.Authenticate(r.Context(), auth.CredentialFromRequest(r))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"errors": map[string]interface{}{"auth": signaling.CodeAuthentication},
			})
			return
		}
		if !id.Role.IsAdmin() {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"errors": map[string]interface{}{"auth": signaling.CodeUnauthorized},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HttpServer) ListCallJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := calljournal.ListFilter{UserID: q.Get("userId")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			buildResponse(struct{}{}, w, fmt.Errorf("%w: limit must be a number", ErrBadRequest))
			return
		}
		filter.Limit = limit
	}

	if err := s.validator.Struct(filter); err != nil {
		buildResponse(filter, w, err)
		return
	}

	callJournals, err := s.callJournalUsecase.List(r.Context(), filter)
	buildResponse(callJournals, w, err)
}

func (s *HttpServer) ListActiveCalls(w http.ResponseWriter, _ *http.Request) {
	sessions, err := s.sessionUsecase.List()
	buildResponse(sessions, w, err)
}

func (s *HttpServer) ListPresence(w http.ResponseWriter, _ *http.Request) {
	users, err := s.presenceUsecase.List()
	buildResponse(users, w, err)
}

func (s *HttpServer) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.closing.Load() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status})
}

func buildResponse(entity interface{}, w http.ResponseWriter, err error) {
	if err != nil {
		if errors.Is(err, calljournal.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"errors": map[string]interface{}{
					"call": "call not found",
				},
			})
			return
		}
		if errors.Is(err, ErrBadRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"errors": map[string]interface{}{
					"request": err.Error(),
				},
			})
			return
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errorsMap := map[string]interface{}{}
			for _, e := range verrs {
				var errText string
				switch e.Tag() {
				case "required":
					errText = "field is required"
				case "oneof":
					errText = fmt.Sprintf("field is oneof %s", e.Param())
				case "min":
					errText = fmt.Sprintf("field min %s", e.Param())
				case "max":
					errText = fmt.Sprintf("field max %s", e.Param())
				default:
					errText = "invalid value"
				}

				errorsMap[e.Field()] = errText
			}
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"errors": errorsMap,
			})
			return
		}

		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"errors": map[string]interface{}{
				"server": "internal server error",
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": entity,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
