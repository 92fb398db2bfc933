package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/careerbot/internal/metrics"
)

// HandleWebSocket handles GET /ws/chat. Each text frame is a ChatRequest;
// the reply is streamed back as JSON events followed by a [DONE] frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if len(opts.OriginPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.cfg.MaxRequestBodySize)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client")
			} else {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := h.writeFrame(ctx, ws, ErrorEvent("invalid request body")); err != nil {
				return
			}
			if err := h.writeDone(ctx, ws); err != nil {
				return
			}
			continue
		}

		if err := h.serveTurn(ctx, ws, req); err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return
		}
	}
}

func (h *Handler) serveTurn(ctx context.Context, ws *websocket.Conn, req ChatRequest) error {
	started := time.Now()
	metrics.ChatRequest(metrics.ModeWebSocket)
	defer metrics.ObserveReply(metrics.ModeWebSocket, started)

	id := req.Identity()
	events, err := h.svc.Stream(ctx, req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		if err := h.writeFrame(ctx, ws, ErrorEvent("Missing required parameters")); err != nil {
			return err
		}
		return h.writeDone(ctx, ws)
	case errors.Is(err, ErrSetupNotFound):
		if err := h.writeFrame(ctx, ws, ErrorEvent("Setup not found")); err != nil {
			return err
		}
		return h.writeDone(ctx, ws)
	case err != nil:
		slog.Error("Stream setup failed", "user_id", id.UserID, "channel_id", id.ChannelID, "error", err)
		if err := h.writeFrame(ctx, ws, ErrorEvent("failed to start stream")); err != nil {
			return err
		}
		return h.writeDone(ctx, ws)
	}

	h.logUserMessage(channelWebSocket, id, req.Message, "")
	tr := newTranscript()
	var writeErr error
	for ev := range events {
		tr.observe(ev)
		if writeErr = h.writeFrame(ctx, ws, ev); writeErr != nil {
			tr.fail(writeErr)
			break
		}
	}
	h.logAssistantMessage(channelWebSocket, id, tr.content.String(), tr.chunks, tr.closed, tr.errMsg, "")
	if writeErr != nil {
		return writeErr
	}
	return h.writeDone(ctx, ws)
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *Handler) writeDone(ctx context.Context, ws *websocket.Conn) error {
	return ws.Write(ctx, websocket.MessageText, []byte(sseDone))
}
