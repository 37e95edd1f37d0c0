package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/utils"
)

// MultiSourceManager owns the watches of a process and fans their events
// into one channel.
type MultiSourceManager struct {
	Sources    map[string]interfaces.IDataSource
	Book       *utils.RequestBook
	Logger     *logger.Logger
	mu         sync.RWMutex
	outputChan chan<- models.MWatchEvent // Send-only, managed by parent
	ctx        context.Context           // Lifecycle context (derived)
	cancelFunc context.CancelFunc        // To stop all sources
	wg         *sync.WaitGroup           // Shared WaitGroup (ptr)
}

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.IDataSource, book *utils.RequestBook, log *logger.Logger) *MultiSourceManager {
	m := &MultiSourceManager{
		Sources: make(map[string]interfaces.IDataSource),
		Book:    book,
		Logger:  log,
	}

	for _, s := range sources {
		m.Sources[s.Name()] = s
	}

	return m
}

// -----------------------------------------------------------------------------

// AddSource adds a new source and starts it if the manager is running
func (m *MultiSourceManager) AddSource(source interfaces.IDataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.Sources[name]; exists {
		return fmt.Errorf("source %s already exists", name)
	}

	m.Sources[name] = source
	m.Logger.Info("Added source: %s", name)

	if m.ctx != nil {
		if err := source.Start(m.ctx, m.outputChan, m.wg); err != nil {
			return fmt.Errorf("failed to start source %s: %v", name, err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// RemoveSource stops a source and forgets its requests
func (m *MultiSourceManager) RemoveSource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, exists := m.Sources[name]
	if !exists {
		return fmt.Errorf("source %s not found", name)
	}

	if source.IsRunning() {
		if err := source.Stop(); err != nil {
			m.Logger.Error("Error stopping source %s: %v", name, err)
		}
	}

	delete(m.Sources, name)
	if m.Book != nil {
		m.Book.Remove(name)
	}
	m.Logger.Info("Removed source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// GetSource retrieves a source by name
func (m *MultiSourceManager) GetSource(name string) (interfaces.IDataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, exists := m.Sources[name]
	if !exists {
		return nil, fmt.Errorf("source %s not found", name)
	}
	return source, nil
}

// -----------------------------------------------------------------------------

// GetAllSources returns all sources ordered by name
func (m *MultiSourceManager) GetAllSources() []interfaces.IDataSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]interfaces.IDataSource, 0, len(m.Sources))
	for _, s := range m.Sources {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// -----------------------------------------------------------------------------

// Start starts all sources
func (m *MultiSourceManager) Start(parentCtx context.Context, outputChan chan<- models.MWatchEvent, wg *sync.WaitGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("MultiSourceManager is already running")
	}

	// Derive a context so we can stop the manager independently if needed
	ctx, cancel := context.WithCancel(parentCtx)
	m.ctx = ctx
	m.cancelFunc = cancel
	m.outputChan = outputChan
	m.wg = wg

	for _, src := range m.Sources {
		if err := src.Start(m.ctx, m.outputChan, m.wg); err != nil {
			m.Logger.Error("Failed to start source %s: %v", src.Name(), err)
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop stops all sources gracefully by cancelling the internal context
func (m *MultiSourceManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil // Already stopped
	}

	m.Logger.Info("Stopping MultiSourceManager...")
	m.cancelFunc()
	m.cancelFunc = nil
	m.ctx = nil

	m.Logger.Info("MultiSourceManager Stopped.")
	return nil
}

// -----------------------------------------------------------------------------

// StartSource starts a specific source by name
func (m *MultiSourceManager) StartSource(name string) error {
	m.mu.RLock()
	source, exists := m.Sources[name]
	ctx := m.ctx
	outChan := m.outputChan
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("source %s not found", name)
	}
	if ctx == nil {
		return fmt.Errorf("MultiSourceManager is not running")
	}

	return source.Start(ctx, outChan, m.wg)
}

// -----------------------------------------------------------------------------

// StopSource stops a specific source by name
func (m *MultiSourceManager) StopSource(name string) error {
	source, err := m.GetSource(name)
	if err != nil {
		return err
	}
	return source.Stop()
}

// -----------------------------------------------------------------------------

// UpdateAccounts swaps the accounts of one source
func (m *MultiSourceManager) UpdateAccounts(name string, accounts []string) error {
	source, err := m.GetSource(name)
	if err != nil {
		return err
	}
	return source.UpdateAccounts(accounts)
}

// -----------------------------------------------------------------------------

// FetchInitialData fans out to all sources and collects their snapshots
func (m *MultiSourceManager) FetchInitialData(ctx context.Context) map[string][]models.MSignatureRequest {
	results := make(map[string][]models.MSignatureRequest)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, src := range m.GetAllSources() {
		wg.Add(1)
		go func(s interfaces.IDataSource) {
			defer wg.Done()
			data, err := s.FetchInitialData(ctx)
			if err != nil {
				m.Logger.Error("Initial fetch for %s failed: %v", s.Name(), err)
				return // Continue with other sources
			}
			mu.Lock()
			results[s.Name()] = data
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return results
}

// -----------------------------------------------------------------------------

// State describes one watch as served to clients
func (m *MultiSourceManager) State(name string) (models.MWatchState, error) {
	source, err := m.GetSource(name)
	if err != nil {
		return models.MWatchState{}, err
	}
	return m.stateOf(source), nil
}

// -----------------------------------------------------------------------------

// States describes every watch, ordered by name
func (m *MultiSourceManager) States() []models.MWatchState {
	sources := m.GetAllSources()
	states := make([]models.MWatchState, 0, len(sources))
	for _, s := range sources {
		states = append(states, m.stateOf(s))
	}
	return states
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) stateOf(s interfaces.IDataSource) models.MWatchState {
	requests := []models.MSignatureRequest{}
	if m.Book != nil {
		requests = m.Book.Requests(s.Name())
	}
	return models.MWatchState{
		Watch:       s.Name(),
		ServiceURL:  s.ServiceURL(),
		StreamState: s.StreamState(),
		Requests:    requests,
	}
}
