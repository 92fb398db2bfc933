package domain

import (
	"encoding/json"
	"fmt"
)

// Lead is the structured data collected from one (user, channel) conversation.
// It serializes as a flat object: the collected fields plus user_id and channel_id.
type Lead struct {
	UserID    string
	ChannelID string
	Fields    map[string]string
}

const (
	leadUserIDKey    = "user_id"
	leadChannelIDKey = "channel_id"
)

// MarshalJSON flattens the collected fields next to the identity keys.
func (l Lead) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(l.Fields)+2)
	for k, v := range l.Fields {
		out[k] = v
	}
	out[leadUserIDKey] = l.UserID
	out[leadChannelIDKey] = l.ChannelID
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat object back into identity keys and fields.
func (l *Lead) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode lead: %w", err)
	}
	l.UserID = raw[leadUserIDKey]
	l.ChannelID = raw[leadChannelIDKey]
	delete(raw, leadUserIDKey)
	delete(raw, leadChannelIDKey)
	l.Fields = raw
	return nil
}
