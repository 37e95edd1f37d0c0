package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryJournal struct {
	mu      sync.Mutex
	batches [][]models.MTransitionRecord
}

func (m *memoryJournal) Initialize() error { return nil }
func (m *memoryJournal) Close() error      { return nil }
func (m *memoryJournal) CleanupOldData() error {
	return nil
}

func (m *memoryJournal) SaveTransitions(records []models.MTransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, records)
	return nil
}

func (m *memoryJournal) RecentTransitions(string, int) ([]models.MTransitionRecord, error) {
	return nil, nil
}

func (m *memoryJournal) saved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestJournalWriterFlushesOnInterval(t *testing.T) {
	journal := &memoryJournal{}
	w := NewJournalWriter(journal, logger.NewLogger(nil, "JournalTest"))
	clk := testclock.NewClock(time.Now())
	w.Clock = clk

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Record(transition("treasury", "IDLE", "CONNECTING", time.Now()))
	w.Record(transition("treasury", "CONNECTING", "OPEN", time.Now()))
	assert.Equal(t, 0, journal.saved())

	require.NoError(t, clk.WaitAdvance(defaultFlushInterval, time.Second, 1))
	require.Eventually(t, func() bool { return journal.saved() == 2 }, time.Second, time.Millisecond)

	w.Record(transition("treasury", "OPEN", "CLOSED", time.Now()))
	cancel()
	<-done
	assert.Equal(t, 3, journal.saved())
}

func TestJournalWriterDropsWhenFull(t *testing.T) {
	journal := &memoryJournal{}
	w := NewJournalWriter(journal, logger.NewLogger(nil, "JournalTest"))

	for i := 0; i < maxPendingRecords+10; i++ {
		w.Record(transition("treasury", "OPEN", "ERROR_RECOVERY", time.Now()))
	}
	w.Flush()
	assert.Equal(t, maxPendingRecords, journal.saved())
}

func TestNilJournalWriterIgnoresRecords(t *testing.T) {
	var w *JournalWriter
	w.Record(transition("treasury", "IDLE", "CONNECTING", time.Now()))

	w = NewJournalWriter(nil, logger.NewLogger(nil, "JournalTest"))
	w.Record(transition("treasury", "IDLE", "CONNECTING", time.Now()))
	w.Run(context.Background())
}

func TestNewJournalNone(t *testing.T) {
	journal, err := NewJournal(&models.MConfig{Storage: models.MStorageConfig{DBType: "none"}}, logger.NewLogger(nil, "JournalTest"))
	require.NoError(t, err)
	assert.Nil(t, journal)
}
