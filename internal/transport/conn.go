package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"CallCoordinator/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MessageHandler is invoked for every inbound text or binary frame, in order.
type MessageHandler func(ctx context.Context, handle string, msg []byte)

type Config struct {
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
}

func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// Conn is one WebSocket connection with a buffered, non-blocking send path.
type Conn struct {
	id     string
	ws     *websocket.Conn
	cfg    Config
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func New(ws *websocket.Conn, cfg Config, logger zerolog.Logger) *Conn {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("conn_id", id).Logger(),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Send queues msg for the write pump. It never blocks: a full queue or a
// closed connection drops the message and returns false.
func (c *Conn) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		metrics.SignalFanoutDropped.Inc()
		c.logger.Warn().Int("queued", len(c.send)).Msg("send queue full, message dropped")
		return false
	}
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Run starts the write pump and reads until the peer goes away or ctx ends.
// onMessage runs on the calling goroutine.
func (c *Conn) Run(ctx context.Context, onMessage MessageHandler) error {
	go c.writePump()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer c.Close()

	if c.cfg.MaxMessageBytes > 0 {
		c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && !c.closed() {
				c.logger.Warn().Err(err).Msg("unexpected close")
				return err
			}
			return nil
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		onMessage(ctx, c.id, msg)
	}
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.fail(err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) fail(err error) {
	if !c.closed() && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("write failed")
	}
	_ = c.Close()
}
