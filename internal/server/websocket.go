package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/worker"
)

var errConnectionClosed = errors.New("connection closed")

// handleWebSocket handles WebSocket upgrade and communication
func (s *Server) handleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(s.handleConnection)(c)
}

// handleConnection runs one worker for the lifetime of the connection.
// Requests are JSON worker messages; everything the worker posts is written
// back as JSON. A protocol violation closes the connection with a policy
// violation close frame.
func (s *Server) handleConnection(c *websocket.Conn) {
	conn := &connection{id: uuid.New().String(), conn: c}

	s.conns.Add(1)
	defer s.conns.Done()
	s.metrics.UpdateWorkerConnections(1)
	defer s.metrics.UpdateWorkerConnections(-1)

	if s.config.Server.MessageSizeLimit > 0 {
		c.SetReadLimit(s.config.Server.MessageSizeLimit)
	}

	log.Debug().Str("connection_id", conn.id).Msg("Worker connection opened")

	w := worker.New(s.pipeline, conn, s.metrics)
	// runs outlive the read loop; their results are delivered while the
	// connection is still open
	defer w.Wait()

	ctx := context.Background()
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("connection_id", conn.id).Msg("WebSocket error")
			}
			return
		}

		var req worker.Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warn().Err(err).Str("connection_id", conn.id).Msg("Malformed worker message")
			conn.close(websocket.ClosePolicyViolation, "malformed message")
			return
		}

		if err := w.Handle(ctx, req); err != nil {
			var protoErr *worker.ProtocolError
			if errors.As(err, &protoErr) {
				log.Warn().Err(err).Str("connection_id", conn.id).Msg("Closing connection on protocol violation")
				conn.close(websocket.ClosePolicyViolation, protoErr.Error())
				return
			}
			log.Error().Err(err).Str("connection_id", conn.id).Msg("Failed to handle worker message")
			return
		}
	}
}

// connection serializes writes to a WebSocket; worker runs post from their
// own goroutines.
type connection struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Post writes msg as JSON
func (c *connection) Post(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	return c.conn.WriteJSON(msg)
}

func (c *connection) close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	deadline := time.Now().Add(time.Second)
	if err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("Failed to send close frame")
	}
}
