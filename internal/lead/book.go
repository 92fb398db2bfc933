// Package lead merges extracted fields into per-(user, channel) lead records.
package lead

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/ashureev/careerbot/internal/domain"
	"github.com/ashureev/careerbot/internal/store"
)

// Merge folds fields into the lead for (userID, channelID), creating it if
// absent. Keys in fields overwrite existing values; other keys are kept.
// The input slice is not modified.
func Merge(leads []domain.Lead, fields map[string]string, userID, channelID string) []domain.Lead {
	out := make([]domain.Lead, len(leads), len(leads)+1)
	for i, l := range leads {
		out[i] = domain.Lead{UserID: l.UserID, ChannelID: l.ChannelID, Fields: maps.Clone(l.Fields)}
	}
	if len(fields) == 0 {
		return out
	}

	for i := range out {
		if out[i].UserID == userID && out[i].ChannelID == channelID {
			if out[i].Fields == nil {
				out[i].Fields = make(map[string]string, len(fields))
			}
			maps.Copy(out[i].Fields, fields)
			return out
		}
	}
	return append(out, domain.Lead{
		UserID:    userID,
		ChannelID: channelID,
		Fields:    maps.Clone(fields),
	})
}

// Book holds the lead collection and persists it after every change.
type Book struct {
	repo  store.Repository
	mu    sync.Mutex
	leads []domain.Lead
}

// NewBook loads the persisted leads snapshot.
func NewBook(ctx context.Context, repo store.Repository) (*Book, error) {
	var leads []domain.Lead
	if _, err := store.LoadJSON(ctx, repo, store.Leads, &leads); err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	return &Book{repo: repo, leads: leads}, nil
}

// Upsert merges fields into the lead for (userID, channelID).
// It reports false without touching the store when fields is empty.
func (b *Book) Upsert(ctx context.Context, userID, channelID string, fields map[string]string) (domain.Lead, bool, error) {
	if len(fields) == 0 {
		return domain.Lead{}, false, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := Merge(b.leads, fields, userID, channelID)
	if err := store.SaveJSON(ctx, b.repo, store.Leads, next); err != nil {
		return domain.Lead{}, false, fmt.Errorf("persist leads: %w", err)
	}
	b.leads = next

	lead, _ := find(next, userID, channelID)
	slog.Info("Lead upserted", "user_id", userID, "channel_id", channelID, "fields", len(lead.Fields))
	return lead, true, nil
}

// Get returns a copy of the lead for (userID, channelID).
func (b *Book) Get(userID, channelID string) (domain.Lead, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return find(b.leads, userID, channelID)
}

// All returns a copy of every lead.
func (b *Book) All() []domain.Lead {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Lead, len(b.leads))
	for i, l := range b.leads {
		out[i] = domain.Lead{UserID: l.UserID, ChannelID: l.ChannelID, Fields: maps.Clone(l.Fields)}
	}
	return out
}

// Clear removes every lead.
func (b *Book) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := store.SaveJSON(ctx, b.repo, store.Leads, []domain.Lead{}); err != nil {
		return fmt.Errorf("clear leads: %w", err)
	}
	b.leads = nil
	return nil
}

func find(leads []domain.Lead, userID, channelID string) (domain.Lead, bool) {
	for _, l := range leads {
		if l.UserID == userID && l.ChannelID == channelID {
			return domain.Lead{UserID: l.UserID, ChannelID: l.ChannelID, Fields: maps.Clone(l.Fields)}, true
		}
	}
	return domain.Lead{}, false
}
