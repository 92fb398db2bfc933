// Package store provides whole-document snapshot persistence.
//
// Every collection the service keeps in memory (conversations, leads,
// setups) is persisted as one named snapshot that is overwritten in full
// after each mutation.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot names.
const (
	Conversations = "conversations"
	Leads         = "leads"
	Setups        = "setups"
)

// Repository defines the key-value interface used to persist snapshots.
type Repository interface {
	// Load returns the snapshot stored under name, or nil if there is none.
	Load(ctx context.Context, name string) ([]byte, error)

	// Save overwrites the snapshot stored under name.
	Save(ctx context.Context, name string, data []byte) error

	// Delete removes the snapshot stored under name. Missing names are not an error.
	Delete(ctx context.Context, name string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// LoadJSON decodes the snapshot stored under name into v.
// It reports false when no snapshot exists.
func LoadJSON(ctx context.Context, repo Repository, name string, v any) (bool, error) {
	data, err := repo.Load(ctx, name)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s snapshot: %w", name, err)
	}
	return true, nil
}

// SaveJSON encodes v and overwrites the snapshot stored under name.
func SaveJSON(ctx context.Context, repo Repository, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", name, err)
	}
	return repo.Save(ctx, name, data)
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	SQLitePath string
	BadgerPath string
}

// Open returns the configured backend.
func Open(opts Options) (Repository, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		s, err := NewSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		s, err := NewBadger(BadgerConfig{
			Path:       opts.BadgerPath,
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
