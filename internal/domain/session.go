package domain

import (
	"time"
)

// Session holds the transcript of one (channel, user) conversation.
type Session struct {
	Key       string    `json:"key"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Turns     []Turn    `json:"turns"`
	Closed    bool      `json:"closed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LastAssistant returns the most recent assistant turn.
func (s *Session) LastAssistant() (Turn, bool) {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant {
			return s.Turns[i], true
		}
	}
	return Turn{}, false
}

// Clone returns a deep copy safe to hand out of a locked store.
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = make([]Turn, len(s.Turns))
	copy(c.Turns, s.Turns)
	return &c
}
