package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

var (
	// ErrNotConnected is returned by Send while no connection is open
	ErrNotConnected = errors.New("relay connection is not open")
	// ErrSendBufferFull is returned by Send when the write queue is saturated
	ErrSendBufferFull = errors.New("relay send buffer full")
	// ErrReconnectExhausted is returned by Run once the retry budget is spent
	ErrReconnectExhausted = errors.New("relay reconnect attempts exhausted")
)

// Handler receives connection lifecycle callbacks. All callbacks for a
// ConnectionManager are made from the Run goroutine, in order.
type Handler interface {
	OnOpen()
	OnFrame(frame protocol.Frame)
	OnClose(err error)
}

// ConnectionManager owns the persistent duplex connection to the relay
type ConnectionManager struct {
	config Config
	dialer *websocket.Dialer
	clock  clockwork.Clock

	mu   sync.RWMutex
	conn *connection
}

// connection is one physical websocket connection
type connection struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewConnectionManager creates a connection manager. Pass nil for a real clock.
func NewConnectionManager(config Config, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		clock: clock,
	}
}

// Connected reports whether a physical connection is currently open
func (cm *ConnectionManager) Connected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn != nil
}

// Send queues a frame for the current connection
func (cm *ConnectionManager) Send(frame protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame %s: %w", frame.Command, err)
	}

	cm.mu.RLock()
	conn := cm.conn
	cm.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	select {
	case <-conn.done:
		return ErrNotConnected
	case conn.Send <- data:
		return nil
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("command", string(frame.Command)).
			Msg("relay send buffer full, dropping frame")
		return ErrSendBufferFull
	}
}

// Run connects to the relay and keeps reconnecting with exponential backoff
// until ctx is cancelled or the retry budget is exhausted. Connection errors
// are logged and never returned; callers observe them through the Handler.
func (cm *ConnectionManager) Run(ctx context.Context, handler Handler) error {
	schedule := newBackOff(cm.config, cm.clock)
	attempt := 0

	log.Info().Str("url", cm.config.URL).Msg("connection manager started")

	for {
		served, err := cm.connectOnce(ctx, handler)
		if ctx.Err() != nil {
			log.Info().Msg("connection manager shutting down")
			return ctx.Err()
		}
		if served {
			schedule.Reset()
			attempt = 0
		}

		delay := schedule.NextBackOff()
		if delay < 0 {
			log.Error().
				Err(err).
				Int("attempts", attempt).
				Msg("giving up on relay connection")
			return ErrReconnectExhausted
		}
		attempt++

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("relay connection lost, reconnecting")

		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return ctx.Err()
		case <-cm.clock.After(delay):
		}
	}
}

// connectOnce dials and serves a single physical connection. served reports
// whether the dial succeeded.
func (cm *ConnectionManager) connectOnce(ctx context.Context, handler Handler) (bool, error) {
	ws, _, err := cm.dialer.DialContext(ctx, cm.config.URL, cm.config.Header)
	if err != nil {
		return false, fmt.Errorf("dial relay: %w", err)
	}

	conn := &connection{
		ID:          uuid.New().String()[:8],
		Conn:        ws,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		ConnectedAt: cm.clock.Now(),
		done:        make(chan struct{}),
	}

	cm.mu.Lock()
	cm.conn = conn
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("url", cm.config.URL).
		Msg("relay connection established")

	handler.OnOpen()

	go func() {
		select {
		case <-ctx.Done():
			conn.close()
		case <-conn.done:
		}
	}()
	go cm.writePump(conn)

	readErr := cm.readPump(conn, handler)

	cm.mu.Lock()
	if cm.conn == conn {
		cm.conn = nil
	}
	cm.mu.Unlock()
	conn.close()

	log.Info().
		Err(readErr).
		Str("connection_id", conn.ID).
		Dur("lifetime", cm.clock.Since(conn.ConnectedAt)).
		Msg("relay connection closed")

	handler.OnClose(readErr)
	return true, readErr
}

// writePump handles sending messages to the websocket connection
func (cm *ConnectionManager) writePump(c *connection) {
	ticker := time.NewTicker(cm.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to relay")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads frames until the connection fails
func (cm *ConnectionManager) readPump(c *connection, handler Handler) error {
	c.Conn.SetReadLimit(cm.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected relay close error")
			}
			return fmt.Errorf("read relay frame: %w", err)
		}
		c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))

		var frame protocol.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.ID).
				Msg("dropping malformed relay frame")
			continue
		}

		handler.OnFrame(frame)
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
