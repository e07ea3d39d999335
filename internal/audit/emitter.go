package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/binder-annotator/internal/logging"
)

// Config enables the audit log. Endpoint is optional; events are always
// written under Dir.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Emitter appends events to the audit log.
type Emitter interface {
	Emit(ctx context.Context, evt *Event) error
	Close() error
}

// NewEmitter returns a no-op emitter when cfg is disabled.
func NewEmitter(cfg Config) (Emitter, error) {
	if !cfg.Enabled {
		return noopEmitter{}, nil
	}
	if cfg.Dir == "" {
		cfg.Dir = "audit"
	}

	log := logging.Component("audit")
	tracker, err := NewChainTracker(cfg.Dir)
	if err != nil {
		return nil, err
	}
	files, err := newFileLog(cfg.Dir)
	if err != nil {
		return nil, err
	}

	e := &chainEmitter{tracker: tracker, files: files, log: log}
	if cfg.Endpoint != "" {
		e.poster = newPoster(cfg.Endpoint, cfg.Timeout, log)
		log.Info("audit events posted", "endpoint", cfg.Endpoint, "dir", cfg.Dir)
	} else {
		log.Info("audit events written to files", "dir", cfg.Dir)
	}
	return e, nil
}

type chainEmitter struct {
	mu      sync.Mutex
	tracker *ChainTracker
	files   *fileLog
	poster  *poster
	log     *slog.Logger
}

// Emit links evt to its chain, writes it and, when an endpoint is
// configured, posts it. The chain head only advances after the event has
// been delivered.
func (e *chainEmitter) Emit(ctx context.Context, evt *Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := evt.ChainKey()
	evt.Version = EventVersion
	evt.EventType = EventType
	evt.EventID = "evt_" + uuid.New().String()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.SetChainHashes(e.tracker.Head(key))

	path, err := e.files.Save(evt)
	if err != nil {
		if e.poster == nil {
			return err
		}
		e.log.Warn("audit file backup failed", "error", err)
	}

	if e.poster != nil {
		if err := e.poster.postWithRetry(ctx, evt); err != nil {
			return fmt.Errorf("audit emit failed: %w", err)
		}
	}

	if err := e.tracker.SetHead(key, evt.Chain.EventHash); err != nil {
		return fmt.Errorf("update chain head: %w", err)
	}
	e.log.Debug("audit event emitted",
		"chain", key,
		"start", evt.Batch.Start,
		"end", evt.Batch.End,
		"event_hash", evt.Chain.EventHash,
		"prev_event_hash", evt.Chain.PrevEventHash,
		"path", path)
	return nil
}

func (e *chainEmitter) Close() error {
	return nil
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *Event) error { return nil }
func (noopEmitter) Close() error                       { return nil }
