package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ashureev/careerbot/internal/api"
	"github.com/ashureev/careerbot/internal/identity"
	"github.com/ashureev/careerbot/internal/metrics"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

const sseDone = "[DONE]"

// Conversation log channels.
const (
	channelHTTP      = "chat_http"
	channelSSE       = "chat_sse"
	channelWebSocket = "chat_ws"
)

// HandlerConfig tunes the chat handler.
type HandlerConfig struct {
	MaxRequestBodySize int64
	AllowedOrigins     []string
}

// Handler serves the chat endpoints.
type Handler struct {
	svc            *Service
	log            ConversationLogger
	cfg            HandlerConfig
	originPatterns []string
}

// NewHandler creates a chat handler. A nil logger disables conversation logs.
func NewHandler(svc *Service, conversationLogger ConversationLogger, cfg HandlerConfig) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		svc:            svc,
		log:            conversationLogger,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

// originPatterns converts allowed origins to the host patterns the
// WebSocket handshake matches against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/careerbot", h.HandleChat)
	r.With(identity.QueryMiddleware).Get("/api/careerbot-stream", h.HandleStream)
	r.With(identity.QueryMiddleware).Get("/api/conversation", h.HandleConversation)
	r.Get("/ws/chat", h.HandleWebSocket)
}

// Close releases handler resources.
func (h *Handler) Close() {
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleChat handles POST /api/careerbot.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	metrics.ChatRequest(metrics.ModeBlocking)
	defer metrics.ObserveReply(metrics.ModeBlocking, started)

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := req.Identity()
	reqID := chiMiddleware.GetReqID(r.Context())
	h.logUserMessage(channelHTTP, id, req.Message, reqID)

	reply, err := h.svc.Reply(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Chat turn failed", "user_id", id.UserID, "channel_id", id.ChannelID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	content := reply.Text
	if reply.Close != nil {
		content = reply.Close.Message
	}
	h.logAssistantMessage(channelHTTP, id, content, 0, reply.Close != nil, "", reqID)
	api.JSON(w, http.StatusOK, reply)
}

// HandleStream handles GET /api/careerbot-stream.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	metrics.ChatRequest(metrics.ModeStream)
	defer metrics.ObserveReply(metrics.ModeStream, started)

	q := r.URL.Query()
	id, ok := identity.FromContext(r.Context())
	if !ok {
		id = identity.FromQuery(r)
	}
	req := ChatRequest{
		UserID:    id.UserID,
		ChannelID: id.ChannelID,
		Message:   q.Get("message"),
		Model:     q.Get("model"),
	}

	events, err := h.svc.Stream(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrSetupNotFound):
		api.Error(w, http.StatusNotFound, "Setup not found")
		return
	case err != nil:
		slog.Error("Stream setup failed", "user_id", id.UserID, "channel_id", id.ChannelID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to start stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	streamID := uuid.NewString()
	reqID := chiMiddleware.GetReqID(r.Context())
	h.logUserMessage(channelSSE, id, req.Message, reqID)
	slog.Info("Chat stream started", "stream_id", streamID, "user_id", id.UserID, "channel_id", id.ChannelID)

	tr := newTranscript()
	for ev := range events {
		tr.observe(ev)
		if err := writeSSEEvent(w, ev); err != nil {
			slog.Warn("failed to write SSE event", "stream_id", streamID, "error", err)
			tr.fail(err)
			break
		}
		flusher.Flush()
	}
	if err := writeSSEData(w, sseDone); err != nil {
		slog.Debug("failed to write SSE done marker", "stream_id", streamID, "error", err)
	} else {
		flusher.Flush()
	}

	h.logAssistantMessage(channelSSE, id, tr.content.String(), tr.chunks, tr.closed, tr.errMsg, reqID)
	slog.Info("Chat stream finished", "stream_id", streamID, "chunks", tr.chunks, "closed", tr.closed)
}

// HandleConversation handles GET /api/conversation.
func (h *Handler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		id = identity.FromQuery(r)
	}
	history, err := h.svc.History(id)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	api.JSON(w, http.StatusOK, history)
}

// transcript accumulates what a client was shown during one streamed turn.
type transcript struct {
	content strings.Builder
	chunks  int
	closed  bool
	errMsg  string
}

func newTranscript() *transcript { return &transcript{} }

func (t *transcript) observe(ev Event) {
	switch ev.Type {
	case EventContent:
		t.chunks++
		t.content.WriteString(ev.Content)
	case EventClose:
		t.closed = true
		t.content.WriteString(ev.Content)
	case EventError:
		t.errMsg = ev.Error
	}
}

func (t *transcript) fail(err error) {
	t.errMsg = err.Error()
}

func writeSSEEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return writeSSEData(w, string(data))
}

func writeSSEData(w io.Writer, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (h *Handler) logUserMessage(channel string, id identity.Identity, message, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     id.UserID,
		SessionID:  id.Key(),
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: message,
		Content:    cleanForReadability(message),
		Meta: map[string]any{
			"request_id": requestID,
			"channel_id": id.ChannelID,
		},
	})
}

func (h *Handler) logAssistantMessage(channel string, id identity.Identity, content string, chunks int, closed bool, errMsg, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     id.UserID,
		SessionID:  id.Key(),
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta: map[string]any{
			"stream_chunks": chunks,
			"close_chat":    closed,
			"stream_error":  errMsg,
			"request_id":    requestID,
		},
	})
}
