package multisig

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"multisig-observer/src/helpers"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/storage"
	"multisig-observer/src/stream"
	"multisig-observer/src/utils"

	"github.com/juju/clock"
)

// DefaultRetryInterval is the pause after a failed lookup or subscribe.
const DefaultRetryInterval = 30 * time.Second

// Dependencies are shared by every source of a process.
type Dependencies struct {
	Resolver  interfaces.IResolver
	Snapshots interfaces.ISnapshotFetcher
	Stream    stream.Options
	Book      *utils.RequestBook
	Journal   *storage.JournalWriter
}

// -----------------------------------------------------------------------------
// MultisigSource follows the signature requests of one watch: it locates the
// coordinator, loads the current snapshot and then applies stream events.
// -----------------------------------------------------------------------------

type MultisigSource struct {
	Config        *models.MConfig
	Resolver      interfaces.IResolver
	Snapshots     interfaces.ISnapshotFetcher
	Book          *utils.RequestBook
	Journal       *storage.JournalWriter
	Logger        *logger.Logger
	Clock         clock.Clock
	RetryInterval time.Duration

	subscriber *stream.Subscriber
	watch      atomic.Value // models.MWatchConfig
	serviceURL atomic.Value // string
	state      atomic.Value // string
	hadOutage  atomic.Bool
	errors     *helpers.ErrorHandler
	restart    chan struct{}
	resync     chan struct{}
	cancelFunc context.CancelFunc
	ctx        context.Context
	outputChan chan<- models.MWatchEvent
	isRunning  atomic.Bool
	mu         sync.Mutex
}

// -----------------------------------------------------------------------------

func NewMultisigSource(cfg *models.MConfig, watch models.MWatchConfig, deps Dependencies) *MultisigSource {
	log := logger.NewLogger(nil, "MultisigSource-"+watch.Name)

	clk := deps.Stream.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	s := &MultisigSource{
		Config:        cfg,
		Resolver:      deps.Resolver,
		Snapshots:     deps.Snapshots,
		Book:          deps.Book,
		Journal:       deps.Journal,
		Logger:        log,
		Clock:         clk,
		RetryInterval: DefaultRetryInterval,
		errors:        helpers.NewErrorHandler(log, clk, time.Duration(cfg.Stream.ErrorLogIntervalSeconds)*time.Second),
		restart:       make(chan struct{}, 1),
		resync:        make(chan struct{}, 1),
	}
	if s.Book == nil {
		s.Book = utils.NewRequestBook(0)
	}

	opts := deps.Stream
	opts.Clock = clk
	if opts.Logger == nil {
		opts.Logger = log
	}
	opts.Observer = s.observe
	s.subscriber = stream.NewSubscriber(opts)

	s.watch.Store(copyWatch(watch))
	s.serviceURL.Store(watch.ServiceURL)
	s.state.Store(stream.StateIdle.String())
	return s
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) Name() string {
	return s.Watch().Name
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) Watch() models.MWatchConfig {
	return copyWatch(s.watch.Load().(models.MWatchConfig))
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) ServiceURL() string {
	return s.serviceURL.Load().(string)
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) StreamState() string {
	return s.state.Load().(string)
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) IsRunning() bool {
	return s.isRunning.Load()
}

// -----------------------------------------------------------------------------

// FetchInitialData locates the coordinator and replaces the watch's requests
// with its current snapshot.
func (s *MultisigSource) FetchInitialData(ctx context.Context) ([]models.MSignatureRequest, error) {
	serviceURL, err := s.locate(ctx)
	if err != nil {
		return nil, err
	}
	return s.fetchSnapshot(ctx, serviceURL)
}

// -----------------------------------------------------------------------------

// UpdateAccounts swaps the watched accounts. A running source re-subscribes.
func (s *MultisigSource) UpdateAccounts(accounts []string) error {
	w := s.Watch()
	w.Accounts = utils.Dedupe(accounts)
	s.watch.Store(w)
	s.Logger.Info("Updated account list. New count: %d", len(w.Accounts))

	if s.isRunning.Load() {
		select {
		case s.restart <- struct{}{}:
		default:
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Start begins following the watch
func (s *MultisigSource) Start(parentCtx context.Context, outputChan chan<- models.MWatchEvent, wg *sync.WaitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning.Load() {
		return fmt.Errorf("source %s is already running", s.Name())
	}

	// Derive a context so we can stop just this source via Stop()
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancelFunc = cancel
	s.ctx = ctx
	s.outputChan = outputChan
	s.isRunning.Store(true)

	wg.Add(1)
	go s.runLoop(ctx, wg)
	s.Logger.Info("Started MultisigSource: %s", s.Name())
	return nil
}

// -----------------------------------------------------------------------------

// Stop signals the run loop to exit
func (s *MultisigSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning.Load() {
		return fmt.Errorf("source %s is not running", s.Name())
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning.Store(false)
	s.Logger.Info("Stopped MultisigSource: %s", s.Name())
	return nil
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) runLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		s.mu.Lock()
		if s.ctx == ctx {
			s.isRunning.Store(false)
		}
		s.mu.Unlock()
	}()

	for s.session(ctx) {
	}
}

// -----------------------------------------------------------------------------

// session runs one locate, snapshot and subscribe cycle. It returns false
// once ctx is done and true when the watch must be set up again.
func (s *MultisigSource) session(ctx context.Context) bool {
	serviceURL, err := s.locate(ctx)
	if err != nil {
		s.errors.Handle(err, "locating coordinator for "+s.Name())
		return s.pause(ctx)
	}

	s.syncSnapshot(ctx, serviceURL)

	sub, err := s.subscriber.Subscribe(ctx, serviceURL, s.Watch().Accounts)
	if err != nil {
		s.errors.Handle(err, "subscribing "+s.Name())
		return s.pause(ctx)
	}
	defer sub.Unsubscribe()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return false

		case <-s.restart:
			s.Logger.Info("Watch %s changed, re-subscribing", s.Name())
			return true

		case <-s.resync:
			s.syncSnapshot(ctx, serviceURL)

		case ev, ok := <-events:
			if !ok {
				// Closed without accounts; wait for an update.
				s.Logger.Debug("Watch %s idle: %v", s.Name(), sub.Err())
				events = nil
				continue
			}
			if s.Book.Apply(s.Name(), ev) {
				s.push(ctx, models.MWatchEvent{Watch: s.Name(), Event: ev})
			}
		}
	}
}

// -----------------------------------------------------------------------------

// pause waits RetryInterval, returning early on an account update.
func (s *MultisigSource) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.restart:
		return true
	case <-s.Clock.After(s.RetryInterval):
		return true
	}
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) locate(ctx context.Context) (string, error) {
	w := s.Watch()
	if w.ServiceURL != "" {
		s.serviceURL.Store(w.ServiceURL)
		return w.ServiceURL, nil
	}
	if s.Resolver == nil {
		return "", fmt.Errorf("watch %s has no service_url and no resolver", w.Name)
	}

	serviceURL, err := s.Resolver.Resolve(ctx, w.Domain)
	if err != nil {
		return "", err
	}
	s.serviceURL.Store(serviceURL)
	return serviceURL, nil
}

// -----------------------------------------------------------------------------

func (s *MultisigSource) fetchSnapshot(ctx context.Context, serviceURL string) ([]models.MSignatureRequest, error) {
	accounts := s.Watch().Accounts
	if len(accounts) == 0 {
		s.Book.ReplaceSnapshot(s.Name(), nil)
		return []models.MSignatureRequest{}, nil
	}

	requests, err := s.Snapshots.FetchSnapshot(ctx, serviceURL, accounts)
	if err != nil {
		return nil, err
	}
	s.Book.ReplaceSnapshot(s.Name(), requests)
	s.Logger.Info("Loaded %d signature requests for %s", len(requests), s.Name())
	return requests, nil
}

// -----------------------------------------------------------------------------

// syncSnapshot reloads the snapshot and announces it. A failure keeps the
// requests already known.
func (s *MultisigSource) syncSnapshot(ctx context.Context, serviceURL string) {
	if _, err := s.fetchSnapshot(ctx, serviceURL); err != nil {
		s.errors.Handle(err, "loading snapshot for "+s.Name())
		return
	}
	s.push(ctx, models.MWatchEvent{Watch: s.Name(), Full: true, Snapshot: s.Book.Requests(s.Name())})
}

// -----------------------------------------------------------------------------

// push sends data to the manager's channel safely
func (s *MultisigSource) push(ctx context.Context, ev models.MWatchEvent) {
	if s.outputChan == nil {
		return
	}
	select {
	case s.outputChan <- ev:
	case <-ctx.Done():
	}
}

// -----------------------------------------------------------------------------

// observe runs on the subscription goroutine and must not block.
func (s *MultisigSource) observe(from, to stream.State, reason string) {
	s.state.Store(to.String())
	s.Journal.Record(models.MTransitionRecord{
		Watch:     s.Name(),
		FromState: from.String(),
		ToState:   to.String(),
		Reason:    reason,
		At:        s.Clock.Now().UTC(),
	})

	switch to {
	case stream.StateReconnectScheduled, stream.StateWaitingForOnline:
		s.hadOutage.Store(true)
		s.Logger.Warning("Stream for %s interrupted (%s), now %s", s.Name(), reason, to)

	case stream.StateOpen:
		// Events sent while we were away are only in the snapshot.
		if s.hadOutage.Swap(false) {
			s.Logger.Info("Stream for %s restored", s.Name())
			select {
			case s.resync <- struct{}{}:
			default:
			}
		}
	}
}

// -----------------------------------------------------------------------------

func copyWatch(w models.MWatchConfig) models.MWatchConfig {
	w.Accounts = append([]string(nil), w.Accounts...)
	return w
}
