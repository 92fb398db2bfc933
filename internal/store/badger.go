package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the embedded Badger backend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory   bool
	SyncWrites bool
	// GCInterval enables periodic value-log GC when positive.
	GCInterval time.Duration
	Logger     *slog.Logger
}

// BadgerStore implements Repository on an embedded Badger database.
type BadgerStore struct {
	db     *badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadger opens a Badger-backed repository.
func NewBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("badger value log GC failed", "error", err)
			}
		}
	}
}

// Load returns the snapshot stored under name.
func (s *BadgerStore) Load(_ context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	return data, nil
}

// Save overwrites the snapshot stored under name.
func (s *BadgerStore) Save(_ context.Context, name string, data []byte) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(name), data)
	}); err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return nil
}

// Delete removes the snapshot stored under name.
func (s *BadgerStore) Delete(_ context.Context, name string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(name))
	}); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	return nil
}

// Ping reports an error once the database has been closed.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger database: %w", err)
	}
	return nil
}
