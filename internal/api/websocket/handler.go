package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clabconsole/clabconsole-backend/internal/pkg/metrics"
	"github.com/clabconsole/clabconsole-backend/internal/service"
)

// Handler upgrades /ws/visualize connections. Every connection is one visualize session.
type Handler struct {
	ctx      context.Context
	service  service.VisualizeService
	upgrader websocket.Upgrader
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewHandler creates a WebSocket handler. Connections are closed when ctx is done.
// allowedOrigins of ["*"] or empty accepts any origin.
func NewHandler(ctx context.Context, vs service.VisualizeService, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ctx:     ctx,
		service: vs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients send no origin
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS handles websocket requests from clients
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.wg.Add(1)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.wg.Done()
		h.logger.Warn("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	sessionID := uuid.New().String()
	client := NewClient(h.ctx, conn, sessionID, h.service, h.logger)
	metrics.WebSocketConnectionsActive.Inc()

	go client.WritePump()
	go func() {
		defer h.wg.Done()
		client.ReadPump()
		h.service.EndSession(sessionID)
		metrics.WebSocketConnectionsActive.Dec()
		h.logger.Debug("websocket client disconnected", "session", sessionID)
	}()

	h.logger.Debug("websocket client connected", "session", sessionID)
}

// Wait blocks until every connection has been torn down. Connections close once the handler's
// context is done.
func (h *Handler) Wait() {
	h.wg.Wait()
}
