// Package agent runs chat turns against a provider and keeps the session,
// lead and conversation-log state in step with what the client sees.
package agent

import (
	"encoding/json"
	"errors"

	"github.com/ashureev/careerbot/internal/closesignal"
	"github.com/ashureev/careerbot/internal/identity"
)

var (
	// ErrInvalidRequest is returned when the request identity is missing or malformed.
	ErrInvalidRequest = errors.New("invalid chat request")
	// ErrSetupNotFound is returned when the channel has no setup.
	ErrSetupNotFound = errors.New("setup not found")
)

// Fixed replies.
const (
	SetupMissingReply  = "Please complete your business setup first."
	ClosedNoticeReply  = "Thank you for chatting with us! This conversation is now closed."
	ClosedStreamError  = "This conversation is closed."
	NoUsableReply      = "⚠️ No usable response"
	providerErrorReply = "⚠️ %s API error: %v"
)

// ChatRequest is one user turn. PageID is the legacy name for ChannelID.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	PageID    string `json:"page_id,omitempty"`
	Message   string `json:"message"`
	Model     string `json:"model,omitempty"`
}

// Identity resolves the request identity, preferring channel_id over page_id.
func (r ChatRequest) Identity() identity.Identity {
	channelID := r.ChannelID
	if channelID == "" {
		channelID = r.PageID
	}
	return identity.New(r.UserID, channelID)
}

// Reply is the result of a blocking chat turn.
type Reply struct {
	Text string
	// Closed is set when the session was already closed before this turn.
	Closed bool
	// Close is set when this turn closed the session.
	Close *closesignal.Payload
}

// MarshalJSON renders the reply in the wire shape the client expects.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Close != nil {
		return json.Marshal(r.Close)
	}
	if r.Closed {
		return json.Marshal(struct {
			Reply     string `json:"reply"`
			CloseChat bool   `json:"close_chat"`
		}{r.Text, true})
	}
	return json.Marshal(struct {
		Reply string `json:"reply"`
	}{r.Text})
}

// EventType distinguishes stream events.
type EventType string

// Stream event types.
const (
	EventContent EventType = "content"
	EventClose   EventType = "close"
	EventError   EventType = "error"
)

// Event is one message of a streamed turn.
type Event struct {
	Type    EventType
	Content string
	Error   string
}

// ContentEvent carries visible text.
func ContentEvent(s string) Event { return Event{Type: EventContent, Content: s} }

// CloseEvent ends the conversation with message.
func CloseEvent(message string) Event { return Event{Type: EventClose, Content: message} }

// ErrorEvent reports a failure to the client.
func ErrorEvent(msg string) Event { return Event{Type: EventError, Error: msg} }

// MarshalJSON renders the event as an SSE or WebSocket payload.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventClose:
		return json.Marshal(struct {
			Content     string `json:"content"`
			CloseChat   bool   `json:"close_chat"`
			BlockTyping bool   `json:"block_typing"`
		}{e.Content, true, true})
	case EventError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Error})
	default:
		return json.Marshal(struct {
			Content string `json:"content"`
		}{e.Content})
	}
}

// HistoryEntry is one visible turn returned by the history endpoint.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the visible transcript of a session.
type History struct {
	History    []HistoryEntry `json:"history"`
	ChatClosed bool           `json:"chatClosed"`
}
