package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"CallCoordinator/internal/callsession"
	"CallCoordinator/internal/entity/user"
	"CallCoordinator/internal/ratelimit"
	"CallCoordinator/internal/registrar"
	"CallCoordinator/internal/repository/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, msg)
	return true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type frame struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

func (c *fakeConn) received(event string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0)
	for _, raw := range c.frames {
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if f.Event == event {
			out = append(out, f.Payload)
		}
	}
	return out
}

func (c *fakeConn) last(t *testing.T, event string) map[string]any {
	t.Helper()
	got := c.received(event)
	require.NotEmpty(t, got, "no %q frame on %s", event, c.id)
	return got[len(got)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	srv      *Server
	reg      *registrar.Registrar
	table    *callsession.Table
	clock    *testClock
	calls    *memory.CallJournalRepository
	presence *memory.PresenceRepository
	ctx      context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	reg := registrar.New()
	table := callsession.NewTable(callsession.WithClock(clock.Now))
	limiter := ratelimit.New(ratelimit.Config{Window: time.Second, MaxEvents: 5}).WithClock(clock.Now)
	calls := memory.NewCallJournalRepository()
	pres := memory.NewPresenceRepository()

	srv := New(reg, table, limiter, calls, pres, Config{
		RingTimeout:       30 * time.Second,
		StoreWriteTimeout: time.Second,
		RecorderQueueSize: 64,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{
		srv:      srv,
		reg:      reg,
		table:    table,
		clock:    clock,
		calls:    calls,
		presence: pres,
		ctx:      context.Background(),
	}
}

func (h *harness) connect(t *testing.T, handle string, id user.Identity) *fakeConn {
	t.Helper()
	conn := &fakeConn{id: handle}
	require.NoError(t, h.srv.Connect(h.ctx, conn, id))
	return conn
}

func (h *harness) send(t *testing.T, from *fakeConn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	require.NoError(t, err)
	h.srv.HandleMessage(h.ctx, from.id, raw)
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Flush(ctx))
}

// call starts a call from caller to calleeID and returns its id.
func (h *harness) call(t *testing.T, caller *fakeConn, calleeID string) string {
	t.Helper()
	h.send(t, caller, EventInitiateCall, map[string]any{"calleeId": calleeID})
	p := caller.last(t, EventCallInitiated)
	id, _ := p["callId"].(string)
	require.NotEmpty(t, id)
	return id
}

var (
	empA   = user.Identity{UserID: "emp-a", Name: "Alice", Role: user.RoleEmployee}
	empB   = user.Identity{UserID: "emp-b", Name: "Ben", Role: user.RoleEmployee}
	docD   = user.Identity{UserID: "doc-d", Name: "Dr. Dee", Role: user.RoleDoctor}
	docE   = user.Identity{UserID: "doc-e", Name: "Dr. Eli", Role: user.RoleDoctor}
	adminX = user.Identity{UserID: "adm-x", Name: "Xena", Role: user.RoleAdmin}
)
