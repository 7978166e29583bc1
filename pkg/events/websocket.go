package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/getmockd/apilab/pkg/logging"
)

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// Handler streams hub events to websocket clients as JSON text messages.
// An optional ?type= query parameter filters by event type.
type Handler struct {
	hub            *Hub
	originPatterns []string
	log            *slog.Logger
}

// NewHandler creates a websocket handler for hub. originPatterns are passed
// to websocket.AcceptOptions; nil allows only same-origin requests.
func NewHandler(hub *Hub, originPatterns []string, log *slog.Logger) *Handler {
	return &Handler{hub: hub, originPatterns: originPatterns, log: logging.OrNop(log)}
}

// ServeHTTP upgrades the connection and forwards events until either side
// goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	filter := r.URL.Query().Get("type")
	sub, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer closes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if filter != "" && ev.Type != filter {
				continue
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.log.Debug("websocket write failed", "error", err)
				}
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
