package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/careerbot/internal/datablock"
)

const defaultConversationLogQueue = 256

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*\x07`)
	unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._@-]`)
)

// ConversationLogEvent is one line of the per-session conversation log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogConfig configures NewConversationLogger.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogger records chat traffic for later review.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// fileConversationLogger appends NDJSON lines to <dir>/<user>/<session>.ndjson
// from a single background writer. Events are dropped when the queue is full.
type fileConversationLogger struct {
	dir    string
	global *os.File
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan ConversationLogEvent
	done    chan struct{}
	dropped atomic.Int64
}

// NewConversationLogger returns a file-backed logger, or a no-op logger when
// cfg is disabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, errors.New("conversation log dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultConversationLogQueue
	}

	l := &fileConversationLogger{
		dir:    cfg.Dir,
		logger: logger,
		queue:  make(chan ConversationLogEvent, queueSize),
		done:   make(chan struct{}),
	}

	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o750); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

// Log queues event without blocking.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("conversation log queue full, dropping events", "dropped", n)
		}
	}
}

// Close drains the queue and closes open files.
func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if l.global != nil {
		return l.global.Close()
	}
	return nil
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to encode conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.appendSession(event, line); err != nil {
			l.logger.Warn("failed to write conversation log", "user_id", event.UserID, "error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileConversationLogger) appendSession(event ConversationLogEvent, line []byte) error {
	userDir := filepath.Join(l.dir, safePathPart(event.UserID))
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return err
	}
	path := filepath.Join(userDir, safePathPart(event.SessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func safePathPart(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

// cleanForReadability removes terminal escapes and data blocks.
func cleanForReadability(raw string) string {
	clean := ansiPattern.ReplaceAllString(raw, "")
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	return datablock.Strip(clean)
}
