// Package transcript appends chat turns to per-session NDJSON files so
// conversations can be replayed when debugging dialogue behavior.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one logged line: a single user or assistant message.
type Event struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Logger writes events asynchronously through a bounded queue. When the
// queue is full an event is dropped rather than blocking a chat turn.
type Logger struct {
	cfg     Config
	queue   chan Event
	done    chan struct{}
	logger  *slog.Logger
	once    sync.Once
	dropped int64
	mu      sync.Mutex
}

// New creates a transcript logger and starts its writer goroutine. A
// disabled config returns a logger whose methods are no-ops.
func New(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return &Logger{cfg: cfg, logger: logger}, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l := &Logger{
		cfg:    cfg,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l, nil
}

// LogTurn enqueues one side of a turn. Safe to call concurrently.
func (l *Logger) LogTurn(sessionID, role, content string) {
	if !l.cfg.Enabled {
		return
	}
	event := Event{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	select {
	case l.queue <- event:
	default:
		l.mu.Lock()
		l.dropped++
		n := l.dropped
		l.mu.Unlock()
		if n%100 == 1 {
			l.logger.Warn("Transcript queue full, dropping events", "dropped_total", n)
		}
	}
}

// Close drains the queue and stops the writer.
func (l *Logger) Close() error {
	if !l.cfg.Enabled {
		return nil
	}
	l.once.Do(func() {
		close(l.queue)
		<-l.done
	})
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	for event := range l.queue {
		if err := l.append(event); err != nil {
			l.logger.Warn("Failed to write transcript event",
				"session_id", event.SessionID, "error", err)
		}
	}
}

func (l *Logger) append(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}

	path := filepath.Join(l.cfg.Dir, sanitize(event.SessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transcript line: %w", err)
	}
	return nil
}

// sanitize keeps session ids from escaping the transcript directory.
func sanitize(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
