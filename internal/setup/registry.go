// Package setup stores per-channel business setups and renders the system
// prompt for a conversation from them.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/careerbot/internal/domain"
	"github.com/ashureev/careerbot/internal/store"
)

type snapshot struct {
	ByUser    map[string]domain.Setup `json:"by_user"`
	ByChannel map[string]domain.Setup `json:"by_channel"`
}

// Registry indexes setups by channel and by owning user.
type Registry struct {
	repo store.Repository

	mu        sync.RWMutex
	byUser    map[string]domain.Setup
	byChannel map[string]domain.Setup
}

// NewRegistry loads the persisted setups snapshot.
func NewRegistry(ctx context.Context, repo store.Repository) (*Registry, error) {
	var snap snapshot
	if _, err := store.LoadJSON(ctx, repo, store.Setups, &snap); err != nil {
		return nil, fmt.Errorf("load setups: %w", err)
	}
	if snap.ByUser == nil {
		snap.ByUser = make(map[string]domain.Setup)
	}
	if snap.ByChannel == nil {
		snap.ByChannel = make(map[string]domain.Setup)
	}
	return &Registry{
		repo:      repo,
		byUser:    snap.ByUser,
		byChannel: snap.ByChannel,
	}, nil
}

// ForChannel returns the setup configured for channelID.
func (r *Registry) ForChannel(channelID string) (domain.Setup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byChannel[channelID]
	return s, ok
}

// ForUser returns the most recent setup saved by userID.
func (r *Registry) ForUser(userID string) (domain.Setup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// Len returns the number of configured channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChannel)
}

// Save validates s, indexes it and persists the registry.
func (r *Registry) Save(ctx context.Context, s domain.Setup) error {
	s = Normalize(s)
	if err := Validate(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prevUser, hadUser := r.byUser[s.UserID]
	prevChannel, hadChannel := r.byChannel[s.ChannelID]
	r.byUser[s.UserID] = s
	r.byChannel[s.ChannelID] = s

	if err := r.persistLocked(ctx); err != nil {
		restore(r.byUser, s.UserID, prevUser, hadUser)
		restore(r.byChannel, s.ChannelID, prevChannel, hadChannel)
		return err
	}
	slog.Info("Setup saved", "user_id", s.UserID, "channel_id", s.ChannelID, "fields", len(s.Fields))
	return nil
}

// LoadFile seeds the registry from a YAML list of setups.
// Channels that already have a setup are left untouched.
func (r *Registry) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read setups file: %w", err)
	}

	var doc struct {
		Setups []domain.Setup `yaml:"setups"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse setups file: %w", err)
	}

	loaded := 0
	for i, s := range doc.Setups {
		if _, exists := r.ForChannel(s.ChannelID); exists {
			continue
		}
		if err := r.Save(ctx, s); err != nil {
			return loaded, fmt.Errorf("seed setup %d: %w", i, err)
		}
		loaded++
	}
	return loaded, nil
}

func (r *Registry) persistLocked(ctx context.Context) error {
	snap := snapshot{ByUser: r.byUser, ByChannel: r.byChannel}
	if err := store.SaveJSON(ctx, r.repo, store.Setups, snap); err != nil {
		return fmt.Errorf("persist setups: %w", err)
	}
	return nil
}

func restore(m map[string]domain.Setup, key string, prev domain.Setup, had bool) {
	if had {
		m[key] = prev
		return
	}
	delete(m, key)
}
