package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clabconsole/clabconsole-backend/internal/api/rest"
	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16 * 1024
)

// Client is one websocket connection and its visualize session.
type Client struct {
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	sessionID string
	service   service.VisualizeService
	logger    *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(ctx context.Context, conn *websocket.Conn, sessionID string, vs service.VisualizeService, logger *slog.Logger) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:      conn,
		send:      make(chan []byte, 16),
		ctx:       clientCtx,
		cancel:    cancel,
		sessionID: sessionID,
		service:   vs,
		logger:    logger.With("session", sessionID),
	}
}

// ReadPump reads client messages until the connection fails or the client context ends.
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.enqueue(Response{Type: TypeSession, Session: c.sessionID})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.cancel()
}

func (c *Client) handleMessage(message []byte) {
	var msg Request
	if err := json.Unmarshal(message, &msg); err != nil {
		c.enqueue(errorResponse("", rest.ErrCodeInvalidRequest, "invalid message: "+err.Error()))
		return
	}

	switch msg.Type {
	case TypeVisualize:
		req, err := msg.visualizeRequest()
		if err != nil {
			c.enqueue(errorResponse(msg.ID, rest.ErrCodeInvalidRequest, err.Error()))
			return
		}
		// the session token is taken here, in frame order; only the computation runs async
		run := c.service.Start(c.ctx, req, c.sessionID)
		go c.visualize(msg.ID, req, run)
	case TypeCancel:
		c.service.EndSession(c.sessionID)
	default:
		c.enqueue(errorResponse(msg.ID, rest.ErrCodeInvalidRequest, "unknown message type "+msg.Type))
	}
}

func (c *Client) visualize(id string, req models.VisualizeRequest, run func() (*models.VisualizeResult, error)) {
	result, err := run()
	switch {
	case err == nil:
		c.enqueue(Response{Type: TypeResult, ID: id, Result: result})
	case errors.Is(err, service.ErrSuperseded), errors.Is(err, context.Canceled):
		// a newer request or a cancel owns the view; the stale frame is dropped
		c.logger.Debug("visualize frame dropped", "id", id, "error", err)
	default:
		_, code := rest.ClassifyError(err)
		c.logger.Warn("visualize failed", "id", id, "namespace", req.Namespace, "topology", req.Topology, "error", err)
		c.enqueue(errorResponse(id, code, err.Error()))
	}
}

// enqueue hands a message to the write pump unless the connection is closing.
func (c *Client) enqueue(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("encode websocket message", "type", resp.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}
