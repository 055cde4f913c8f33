package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"bonvoyage/internal/broker"
	"bonvoyage/internal/domain"
	"bonvoyage/internal/hub"
)

// WSHandler streams the events of one request. The connection opens with a
// snapshot of the entries received so far and closes after the final event.
type WSHandler struct {
	hub     *hub.Hub
	results resultReader
	logger  *slog.Logger
}

func NewWSHandler(h *hub.Hub, results resultReader, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, results: results, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SnapshotMessage struct {
	Type    string               `json:"type"`
	Payload broker.PartialResult `json:"payload"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.results.Partial(r.Context(), id); err != nil {
		if errors.Is(err, broker.ErrUnknownRequest) {
			respondError(w, http.StatusNotFound, "request not found")
			return
		}
		h.logger.Error("read partial results failed", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.NewString(), id, 64)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// registered before the snapshot so no event falls in between
	if done := h.writeSnapshot(ctx, conn, client); done {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "results published")
		return
	}

	go h.writeLoop(ctx, cancel, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		if msg.Type == "ping" {
			h.sendPong(client)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *hub.Client) {
	defer cancel()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			wcancel()
			if err != nil {
				return
			}
			if isFinal(msg) {
				conn.Close(websocket.StatusNormalClosure, "results published")
				return
			}

		case <-ticker.C:
			pingCtx, pcancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}

// writeSnapshot sends the entries received so far and reports whether the
// request is already complete, or the connection unusable.
func (h *WSHandler) writeSnapshot(ctx context.Context, conn *websocket.Conn, client *hub.Client) bool {
	res, err := h.results.Partial(ctx, client.RequestID)
	if err != nil {
		h.logger.Warn("snapshot failed", "request_id", client.RequestID, "error", err)
		return false
	}

	data, err := json.Marshal(SnapshotMessage{Type: "snapshot", Payload: res})
	if err != nil {
		return false
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		h.logger.Debug("snapshot write failed", "client_id", client.ID, "error", err)
		return true
	}
	return res.Complete
}

func (h *WSHandler) sendPong(client *hub.Client) {
	data, err := json.Marshal(PongMessage{Type: "pong"})
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
	}
}

func isFinal(msg []byte) bool {
	var ev struct {
		Type domain.EventType `json:"type"`
	}
	return json.Unmarshal(msg, &ev) == nil && ev.Type == domain.EventFinal
}
