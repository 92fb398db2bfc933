// Package identity resolves the (channel, user) pair a chat request belongs to.
package identity

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// Query parameter names. page_id is accepted as a legacy alias of channel_id.
const (
	UserIDParam        = "user_id"
	ChannelIDParam     = "channel_id"
	LegacyChannelParam = "page_id"

	keySeparator = "_"
)

type contextKey int

const identityKey contextKey = iota

var (
	idPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

	// ErrMissingIdentity is returned when user or channel is absent.
	ErrMissingIdentity = errors.New("user_id and channel_id are required")
	// ErrInvalidIdentity is returned when an ID contains unsupported characters.
	ErrInvalidIdentity = errors.New("user_id or channel_id has an invalid format")
)

// Identity names one conversation participant on one channel.
type Identity struct {
	UserID    string
	ChannelID string
}

// New trims both IDs and returns the identity.
func New(userID, channelID string) Identity {
	return Identity{
		UserID:    strings.TrimSpace(userID),
		ChannelID: strings.TrimSpace(channelID),
	}
}

// Validate checks both IDs are present and well-formed.
func (id Identity) Validate() error {
	if id.UserID == "" || id.ChannelID == "" {
		return ErrMissingIdentity
	}
	if !idPattern.MatchString(id.UserID) || !idPattern.MatchString(id.ChannelID) {
		return ErrInvalidIdentity
	}
	return nil
}

// Key returns the composite session key.
func (id Identity) Key() string {
	return SessionKey(id.ChannelID, id.UserID)
}

// SessionKey builds the composite key for a (channel, user) pair.
func SessionKey(channelID, userID string) string {
	return channelID + keySeparator + userID
}

// FromQuery reads the identity from URL query parameters.
func FromQuery(r *http.Request) Identity {
	q := r.URL.Query()
	channelID := q.Get(ChannelIDParam)
	if channelID == "" {
		channelID = q.Get(LegacyChannelParam)
	}
	return New(q.Get(UserIDParam), channelID)
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// QueryMiddleware resolves the identity from query parameters and rejects
// requests that lack one.
func QueryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromQuery(r)
		if id.UserID == "" || id.ChannelID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Missing required parameters"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
