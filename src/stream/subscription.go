package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"multisig-observer/src/coordinator"
	"multisig-observer/src/helpers"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/utils"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
)

const (
	defaultErrorLogInterval = 10 * time.Second
	defaultEventBuffer      = 64
)

// TransitionObserver is told about every state change.
type TransitionObserver func(from, to State, reason string)

// Options configures a Subscriber. Transport and Connectivity are required.
type Options struct {
	Transport        interfaces.IStreamTransport
	Connectivity     interfaces.IConnectivity
	Clock            clock.Clock
	Policy           ReconnectPolicy
	ErrorLogInterval time.Duration
	EventBuffer      int
	Logger           *logger.Logger
	Observer         TransitionObserver
}

// Subscriber opens subscriptions sharing one set of options.
type Subscriber struct {
	opts Options
}

func NewSubscriber(opts Options) *Subscriber {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Policy == nil {
		opts.Policy = FixedDelay(DefaultReconnectDelay)
	}
	if opts.ErrorLogInterval <= 0 {
		opts.ErrorLogInterval = defaultErrorLogInterval
	}
	if opts.EventBuffer < 0 {
		opts.EventBuffer = 0
	} else if opts.EventBuffer == 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger(nil, "Stream")
	}
	return &Subscriber{opts: opts}
}

// -----------------------------------------------------------------------------

// Subscription is one live feed for a coordinator and an account set.
type Subscription struct {
	id       string
	url      string
	accounts []string
	opts     Options
	errs     *helpers.ErrorHandler

	events   chan models.MSignatureRequestEvent
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	state    atomic.Int32
	closedBy atomic.Value // string
	parent   <-chan struct{}

	// Owned by the run goroutine.
	ctx          context.Context
	cancel       context.CancelFunc
	conn         interfaces.IStreamConnection
	connOpened   <-chan struct{}
	connMessages <-chan models.MStreamMessage
	connErrors   <-chan models.MStreamError
	opened       bool
	timer        clock.Timer
	timerC       <-chan time.Time
	onlineC      chan struct{}
	cancelOnline func()
	attempt      int
}

// Subscribe starts a subscription for the accounts at serviceURL. With no
// accounts the subscription is closed before it returns and nothing is
// dialled. Cancelling ctx has the same effect as Unsubscribe.
func (s *Subscriber) Subscribe(ctx context.Context, serviceURL string, accountIDs []string) (*Subscription, error) {
	accounts := utils.Dedupe(accountIDs)

	url := ""
	if len(accounts) > 0 {
		var err error
		if url, err = coordinator.StreamURL(serviceURL, accounts); err != nil {
			return nil, errors.Annotatef(err, "invalid service url %q", serviceURL)
		}
	}

	sub := &Subscription{
		id:       uuid.NewString(),
		url:      url,
		accounts: accounts,
		opts:     s.opts,
		errs:     helpers.NewErrorHandler(s.opts.Logger, s.opts.Clock, s.opts.ErrorLogInterval),
		events:   make(chan models.MSignatureRequestEvent, s.opts.EventBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	sub.parent = ctx.Done()
	sub.ctx, sub.cancel = context.WithCancel(context.WithoutCancel(ctx))

	sub.apply(Input{Kind: InputSubscribe, HasAccounts: len(accounts) > 0}, "subscribe")
	if sub.State() == StateClosed {
		close(sub.done)
		return sub, nil
	}

	go sub.run()
	return sub, nil
}

// -----------------------------------------------------------------------------

// ID identifies the subscription in logs and journals.
func (s *Subscription) ID() string { return s.id }

// URL is the stream endpoint, empty for a subscription without accounts.
func (s *Subscription) URL() string { return s.url }

// Accounts returns the de-duplicated account set.
func (s *Subscription) Accounts() []string { return append([]string(nil), s.accounts...) }

// Events is closed once the subscription reaches StateClosed.
func (s *Subscription) Events() <-chan models.MSignatureRequestEvent { return s.events }

// Done is closed once the subscription has released all its resources.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Err is nil while the subscription is live. Once closed it matches
// helpers.ErrStreamClosed and names what closed it.
func (s *Subscription) Err() error {
	if s.State() != StateClosed {
		return nil
	}
	reason, _ := s.closedBy.Load().(string)
	return fmt.Errorf("%w: %s", helpers.ErrStreamClosed, reason)
}

// Unsubscribe closes the subscription and waits for its teardown. Safe to
// call any number of times, from any goroutine.
func (s *Subscription) Unsubscribe() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// -----------------------------------------------------------------------------

func (s *Subscription) run() {
	defer close(s.done)

	for s.State() != StateClosed {
		select {
		case <-s.stop:
			s.apply(Input{Kind: InputUnsubscribe}, "unsubscribe")

		case <-s.parent:
			s.apply(Input{Kind: InputUnsubscribe}, "context done")

		case <-s.connOpened:
			s.connOpened = nil
			s.markOpened()

		case msg, ok := <-s.connMessages:
			if !ok {
				s.connMessages = nil
				continue
			}
			s.markOpened()
			s.deliver(msg)

		case e := <-s.connErrors:
			s.apply(Input{Kind: InputTransportError, Err: e.Err, Closed: e.Closed}, "transport error")
			online := s.opts.Connectivity.IsOnline()
			s.apply(Input{
				Kind:   InputAssessed,
				Online: online,
				Closed: e.Closed,
				Opened: s.opened,
			}, assessReason(online, e.Closed))

		case <-s.timerC:
			s.timerC = nil
			s.apply(Input{Kind: InputReconnectDue}, "reconnect timer")

		case <-s.onlineC:
			s.apply(Input{Kind: InputBackOnline}, "back online")
		}
	}
}

func assessReason(online, closed bool) string {
	switch {
	case !online:
		return "offline"
	case closed:
		return "closed by transport"
	default:
		return "transient"
	}
}

// -----------------------------------------------------------------------------

func (s *Subscription) markOpened() {
	if s.opened {
		return
	}
	s.opened = true
	s.apply(Input{Kind: InputOpened}, "opened")
}

// -----------------------------------------------------------------------------

// deliver normalizes one message and hands its events to the consumer in
// order. It gives up when the subscription is being stopped.
func (s *Subscription) deliver(msg models.MStreamMessage) {
	events, err := Normalize(msg.Event, msg.Data)
	if err != nil {
		s.opts.Logger.Warning("Dropping %s message from %s: %v", msg.Event, s.url, err)
		return
	}

	for _, ev := range events {
		select {
		case s.events <- ev:
		case <-s.stop:
			return
		case <-s.parent:
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Subscription) apply(in Input, reason string) {
	from := s.State()
	to, actions := Transition(from, in)
	if to != from {
		if to == StateClosed {
			s.closedBy.Store(reason)
		}
		s.state.Store(int32(to))
		s.opts.Logger.Debug("Subscription %s: %s -> %s (%s)", s.id, from, to, reason)
		if s.opts.Observer != nil {
			s.opts.Observer(from, to, reason)
		}
	}

	for _, action := range actions {
		s.execute(action, in)
	}
}

// -----------------------------------------------------------------------------

func (s *Subscription) execute(action Action, in Input) {
	switch action {
	case ActionOpenConnection:
		s.closeConnection()
		s.conn = s.opts.Transport.Connect(s.ctx, s.url)
		s.connOpened = s.conn.Opened()
		s.connMessages = s.conn.Messages()
		s.connErrors = s.conn.Errors()
		s.opened = false

	case ActionCloseConnection:
		s.closeConnection()

	case ActionDetachErrors:
		s.connErrors = nil

	case ActionReportError:
		s.errs.Handle(helpers.NewStreamTransientError(s.url, in.Closed, in.Err), "multisig stream "+s.url)

	case ActionScheduleReconnect:
		s.stopTimer()
		delay := s.opts.Policy.Delay(s.attempt)
		s.attempt++
		s.timer = s.opts.Clock.NewTimer(delay)
		s.timerC = s.timer.Chan()
		s.opts.Logger.Debug("Reconnecting to %s in %v", s.url, delay)

	case ActionCancelReconnect:
		s.stopTimer()

	case ActionAwaitOnline:
		s.dropOnlineListener()
		ch := make(chan struct{}, 1)
		s.onlineC = ch
		s.cancelOnline = s.opts.Connectivity.WhenOnline(func() {
			select {
			case ch <- struct{}{}:
			default:
			}
		})

	case ActionCancelAwaitOnline:
		s.dropOnlineListener()

	case ActionResetBackoff:
		s.attempt = 0

	case ActionCloseEvents:
		s.cancel()
		close(s.events)
	}
}

// -----------------------------------------------------------------------------

func (s *Subscription) closeConnection() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.opts.Logger.Debug("Closing stream %s: %v", s.url, err)
	}
	s.conn = nil
	s.connOpened = nil
	s.connMessages = nil
	s.connErrors = nil
}

func (s *Subscription) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerC = nil
}

func (s *Subscription) dropOnlineListener() {
	if s.cancelOnline != nil {
		s.cancelOnline()
		s.cancelOnline = nil
	}
	s.onlineC = nil
}
