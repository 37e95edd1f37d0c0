package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"github.com/juju/clock"
)

const (
	defaultFlushInterval = 2 * time.Second
	maxPendingRecords    = 256
)

// -----------------------------------------------------------------------------

// NewJournal opens the journal selected by the storage configuration. It
// returns nil for db_type "none".
func NewJournal(cfg *models.MConfig, log *logger.Logger) (interfaces.IJournal, error) {
	var (
		journal interfaces.IJournal
		err     error
	)

	switch cfg.Storage.DBType {
	case "none":
		return nil, nil
	case "postgres":
		journal, err = NewPostgresDB(cfg, log)
	case "sqlite", "":
		journal, err = NewAsyncSQLiteDB(cfg, log)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Storage.DBType)
	}
	if err != nil {
		return nil, err
	}

	if err := journal.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s journal: %w", cfg.Storage.DBType, err)
	}
	return journal, nil
}

// -----------------------------------------------------------------------------
// JournalWriter batches transition records and writes them from one goroutine,
// so that recording never blocks a subscription.
// -----------------------------------------------------------------------------

type JournalWriter struct {
	Journal       interfaces.IJournal
	Clock         clock.Clock
	FlushInterval time.Duration
	Logger        *logger.Logger

	mu      sync.Mutex
	pending []models.MTransitionRecord
	dropped int
	wake    chan struct{}
}

// -----------------------------------------------------------------------------

func NewJournalWriter(journal interfaces.IJournal, log *logger.Logger) *JournalWriter {
	return &JournalWriter{
		Journal:       journal,
		Clock:         clock.WallClock,
		FlushInterval: defaultFlushInterval,
		Logger:        log,
		wake:          make(chan struct{}, 1),
	}
}

// -----------------------------------------------------------------------------

// Record queues one transition. A nil writer or journal discards it.
func (w *JournalWriter) Record(rec models.MTransitionRecord) {
	if w == nil || w.Journal == nil {
		return
	}

	w.mu.Lock()
	if len(w.pending) >= maxPendingRecords {
		w.dropped++
		w.mu.Unlock()
		return
	}
	w.pending = append(w.pending, rec)
	full := len(w.pending) >= maxPendingRecords/2
	w.mu.Unlock()

	if full {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// -----------------------------------------------------------------------------

// Run flushes periodically until ctx is done, then flushes once more.
func (w *JournalWriter) Run(ctx context.Context) {
	if w.Journal == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			w.Flush()
			return
		case <-w.wake:
			w.Flush()
		case <-w.Clock.After(w.FlushInterval):
			w.Flush()
		}
	}
}

// -----------------------------------------------------------------------------

// Flush writes everything queued so far.
func (w *JournalWriter) Flush() {
	w.mu.Lock()
	batch := w.pending
	dropped := w.dropped
	w.pending = nil
	w.dropped = 0
	w.mu.Unlock()

	if dropped > 0 {
		w.Logger.Warning("Journal backlog full, %d transitions dropped", dropped)
	}
	if len(batch) == 0 {
		return
	}
	if err := w.Journal.SaveTransitions(batch); err != nil {
		w.Logger.Error("Failed to save %d transitions: %v", len(batch), err)
	}
}
