package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CallCoordinator/internal/auth"
	"CallCoordinator/internal/callsession"
	httpserver "CallCoordinator/internal/http_server"
	"CallCoordinator/internal/metrics"
	"CallCoordinator/internal/ratelimit"
	"CallCoordinator/internal/registrar"
	"CallCoordinator/internal/repository/memory"
	"CallCoordinator/internal/signaling"
	"CallCoordinator/internal/transport"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "router-test-secret"

type stack struct {
	srv *httptest.Server
	sig *signaling.Server
	hs  *httpserver.HttpServer
}

func newStack(t *testing.T) *stack {
	t.Helper()
	calls := memory.NewCallJournalRepository()
	pres := memory.NewPresenceRepository()
	sig := signaling.New(
		registrar.New(),
		callsession.NewTable(),
		ratelimit.New(ratelimit.Config{Window: time.Second, MaxEvents: 5}),
		calls, pres,
		signaling.Config{RingTimeout: time.Minute, SweepInterval: time.Minute, StoreWriteTimeout: time.Second, RecorderQueueSize: 32},
		zerolog.Nop(),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sig.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	hs := httpserver.NewHttpServer(
		sig, calls,
		auth.NewJWTAuthenticator(secret, pres, zerolog.Nop()),
		transport.Config{SendBuffer: 32, WriteWait: time.Second, PongWait: 10 * time.Second, MaxMessageBytes: 1 << 16},
		zerolog.Nop(),
	)
	promReg := prometheus.NewRegistry()
	metrics.MustRegister(promReg)

	srv := httptest.NewServer(NewRouter(hs, promReg, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return &stack{srv: srv, sig: sig, hs: hs}
}

func token(t *testing.T, sub, role, name string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func (s *stack) dial(t *testing.T, tok string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=" + tok
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (s *stack) get(t *testing.T, path, tok string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &body)
	return resp.StatusCode, body
}

func send(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"event": event, "payload": payload}))
}

// expect reads frames until event arrives, skipping everything else.
func expect(t *testing.T, ws *websocket.Conn, event string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var f struct {
			Event   string         `json:"event"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, ws.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f.Payload
		}
	}
}

func TestWebSocketCallScenario(t *testing.T) {
	s := newStack(t)
	adminTok := token(t, "adm-1", "admin", "Ann")

	doc := s.dial(t, token(t, "doc-1", "doctor", "Dr. Dee"))
	docSelf := expect(t, doc, signaling.EventSelfInfo)
	docHandle := docSelf["connectionId"].(string)

	emp := s.dial(t, token(t, "emp-1", "employee", "Alice"))
	assert.Equal(t, "emp-1", expect(t, emp, signaling.EventSelfInfo)["userId"])
	assert.Equal(t, "emp-1", expect(t, doc, signaling.EventPresenceUpdate)["userId"])

	send(t, emp, signaling.EventGetAvailableUsers, nil)
	users := expect(t, emp, signaling.EventAvailableUsers)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, docHandle, users[0].(map[string]any)["connectionId"])

	send(t, emp, signaling.EventInitiateCall, map[string]any{"calleeId": "doc-1"})
	callID := expect(t, emp, signaling.EventCallInitiated)["callId"].(string)
	incoming := expect(t, doc, signaling.EventIncomingCall)
	assert.Equal(t, callID, incoming["callId"])
	empHandle := incoming["callerConnectionId"].(string)

	send(t, emp, signaling.EventOffer, map[string]any{"target": docHandle, "payload": map[string]any{"sdp": "v=0"}})
	offer := expect(t, doc, signaling.EventOffer)
	assert.Equal(t, empHandle, offer["from"])

	send(t, doc, signaling.EventAcceptCall, map[string]any{"callId": callID})
	assert.Equal(t, callID, expect(t, emp, signaling.EventCallAccepted)["callId"])

	code, body := s.get(t, "/api/calls/active", adminTok)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	send(t, emp, signaling.EventEndCall, map[string]any{"callId": callID})
	ended := expect(t, doc, signaling.EventCallEnded)
	assert.Equal(t, "hangup", ended["reason"])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.sig.Flush(ctx))

	code, body = s.get(t, "/api/calls?userId=emp-1", adminTok)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "ended", data[0].(map[string]any)["status"])

	code, body = s.get(t, "/api/presence", adminTok)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 2)

	require.NoError(t, doc.Close())
	gone := expect(t, emp, signaling.EventPresenceUpdate)
	assert.Equal(t, "doc-1", gone["userId"])
	assert.Equal(t, false, gone["isOnline"])
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	s := newStack(t)
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=garbage"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, s.sig.Online())
}

func TestAPIAccess(t *testing.T) {
	s := newStack(t)
	adminTok := token(t, "adm-1", "admin", "Ann")

	code, _ := s.get(t, "/api/calls", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.get(t, "/api/calls", token(t, "emp-1", "employee", "Alice"))
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.get(t, "/api/calls", adminTok)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["data"])

	code, _ = s.get(t, "/api/calls?limit=abc", adminTok)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.get(t, "/api/calls?limit=1000", adminTok)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["errors"], "Limit")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newStack(t)

	code, body := s.get(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestShutdownClosesConnections(t *testing.T) {
	s := newStack(t)
	emp := s.dial(t, token(t, "emp-1", "employee", "Alice"))
	expect(t, emp, signaling.EventSelfInfo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.hs.Shutdown(ctx))
	assert.Empty(t, s.sig.Online())

	code, body := s.get(t, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting_down", body["status"])
}
