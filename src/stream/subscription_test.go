package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"multisig-observer/src/helpers"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/network"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceURL = "https://coordinator.example.com"

// -----------------------------------------------------------------------------

type fakeConn struct {
	opened    chan struct{}
	messages  chan models.MStreamMessage
	errs      chan models.MStreamError
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		opened:   make(chan struct{}),
		messages: make(chan models.MStreamMessage),
		errs:     make(chan models.MStreamError, 1),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Opened() <-chan struct{}                { return c.opened }
func (c *fakeConn) Messages() <-chan models.MStreamMessage { return c.messages }
func (c *fakeConn) Errors() <-chan models.MStreamError     { return c.errs }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------

type fakeTransport struct {
	mu    sync.Mutex
	urls  []string
	conns chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Connect(_ context.Context, url string) interfaces.IStreamConnection {
	conn := newFakeConn()
	t.mu.Lock()
	t.urls = append(t.urls, url)
	t.mu.Unlock()
	t.conns <- conn
	return conn
}

func (t *fakeTransport) connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

func (t *fakeTransport) next(tb testing.TB) *fakeConn {
	tb.Helper()
	select {
	case conn := <-t.conns:
		return conn
	case <-time.After(time.Second):
		tb.Fatal("no connection was opened")
		return nil
	}
}

// -----------------------------------------------------------------------------

type recorder struct {
	mu          sync.Mutex
	transitions []string
}

func (r *recorder) observe(from, to State, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from.String()+">"+to.String())
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...)
}

// -----------------------------------------------------------------------------

type harness struct {
	transport *fakeTransport
	monitor   *network.ConnectivityMonitor
	clock     *testclock.Clock
	recorder  *recorder
	sub       *Subscriber
}

func newHarness() *harness {
	log := logger.NewLogger(nil, "StreamTest")
	h := &harness{
		transport: newFakeTransport(),
		monitor:   network.NewConnectivityMonitor("", 0, log),
		clock:     testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		recorder:  &recorder{},
	}
	h.sub = NewSubscriber(Options{
		Transport:    h.transport,
		Connectivity: h.monitor,
		Clock:        h.clock,
		Logger:       log,
		Observer:     h.recorder.observe,
	})
	return h
}

func waitForState(t *testing.T, sub *Subscription, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return sub.State() == want }, time.Second, time.Millisecond,
		"state is %s, want %s", sub.State(), want)
}

func receive(t *testing.T, sub *Subscription) models.MSignatureRequestEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return models.MSignatureRequestEvent{}
	}
}

func requireEventsClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("events were not closed")
		}
	}
}

func message(event, payload string) models.MStreamMessage {
	return models.MStreamMessage{Event: event, Data: []byte(payload)}
}

// -----------------------------------------------------------------------------

func TestSubscribeWithoutAccounts(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, nil)
	require.NoError(t, err)

	assert.Equal(t, StateClosed, sub.State())
	assert.Empty(t, sub.URL())
	requireEventsClosed(t, sub)
	assert.Equal(t, 0, h.transport.connects())
	assert.True(t, errors.Is(sub.Err(), helpers.ErrStreamClosed))
	assert.Contains(t, sub.Err().Error(), "subscribe")

	sub.Unsubscribe()
	sub.Unsubscribe()
}

func TestSubscribeDedupesAccounts(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA", "GB", "GA"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	h.transport.next(t)
	assert.NoError(t, sub.Err())
	assert.Equal(t, serviceURL+"/stream/GA,GB", sub.URL())
	assert.Equal(t, []string{"GA", "GB"}, sub.Accounts())
	assert.NotEmpty(t, sub.ID())
}

func TestEventsAreDeliveredInOrder(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	conn := h.transport.next(t)
	close(conn.opened)
	waitForState(t, sub, StateOpen)

	conn.messages <- message(EventNameUpdated, `[{"hash":"a"},{"hash":"b"},{"hash":"c"}]`)
	for _, hash := range []string{"a", "b", "c"} {
		ev := receive(t, sub)
		assert.Equal(t, hash, ev.SignatureRequest.Hash)
		assert.Equal(t, models.EventSignatureRequestUpdate, ev.Kind)
	}
}

func TestMessageBeforeOpenCountsAsOpened(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	conn := h.transport.next(t)
	conn.messages <- message(EventNameNew, `{"hash":"a"}`)

	assert.Equal(t, "a", receive(t, sub).SignatureRequest.Hash)
	waitForState(t, sub, StateOpen)
}

func TestInvalidMessageIsDropped(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	conn := h.transport.next(t)
	close(conn.opened)
	conn.messages <- message(EventNameNew, `[{"hash":"a"},"garbage"]`)
	conn.messages <- message(EventNameSubmitted, `{"hash":"b"}`)

	ev := receive(t, sub)
	assert.Equal(t, "b", ev.SignatureRequest.Hash)
	assert.Equal(t, StateOpen, sub.State())
}

func TestClosedStreamReconnectsAfterDelay(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := h.transport.next(t)
	close(first.opened)
	waitForState(t, sub, StateOpen)

	first.errs <- models.MStreamError{Err: errors.New("connection reset"), Closed: true}
	waitForState(t, sub, StateReconnectScheduled)
	assert.True(t, first.isClosed())
	assert.Equal(t, 1, h.transport.connects())

	require.NoError(t, h.clock.WaitAdvance(499*time.Millisecond, time.Second, 1))
	assert.Equal(t, StateReconnectScheduled, sub.State())
	h.clock.Advance(time.Millisecond)

	second := h.transport.next(t)
	waitForState(t, sub, StateConnecting)
	close(second.opened)
	waitForState(t, sub, StateOpen)

	second.messages <- message(EventNameNew, `{"hash":"after-reconnect"}`)
	assert.Equal(t, "after-reconnect", receive(t, sub).SignatureRequest.Hash)

	assert.Equal(t, []string{
		"IDLE>CONNECTING",
		"CONNECTING>OPEN",
		"OPEN>ERROR_RECOVERY",
		"ERROR_RECOVERY>RECONNECT_SCHEDULED",
		"RECONNECT_SCHEDULED>CONNECTING",
		"CONNECTING>OPEN",
	}, h.recorder.seen())
}

func TestTransientErrorKeepsConnection(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	conn := h.transport.next(t)
	close(conn.opened)
	waitForState(t, sub, StateOpen)

	conn.errs <- models.MStreamError{Err: errors.New("hiccup")}
	require.Eventually(t, func() bool { return len(h.recorder.seen()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, StateOpen, sub.State())
	assert.False(t, conn.isClosed())
	assert.Equal(t, 1, h.transport.connects())

	conn.messages <- message(EventNameNew, `{"hash":"still-here"}`)
	assert.Equal(t, "still-here", receive(t, sub).SignatureRequest.Hash)
}

func TestOfflineWaitsForNetwork(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := h.transport.next(t)
	close(first.opened)
	waitForState(t, sub, StateOpen)

	h.monitor.SetOnline(false)
	first.errs <- models.MStreamError{Err: errors.New("network down"), Closed: true}
	waitForState(t, sub, StateWaitingForOnline)
	assert.True(t, first.isClosed())
	assert.Equal(t, 1, h.monitor.PendingListeners())

	h.clock.Advance(time.Minute)
	assert.Equal(t, StateWaitingForOnline, sub.State())
	assert.Equal(t, 1, h.transport.connects())

	h.monitor.SetOnline(true)
	h.transport.next(t)
	waitForState(t, sub, StateConnecting)
	assert.Equal(t, 0, h.monitor.PendingListeners())
}

func TestUnsubscribeWhileWaitingForNetwork(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)

	conn := h.transport.next(t)
	h.monitor.SetOnline(false)
	conn.errs <- models.MStreamError{Err: errors.New("network down")}
	waitForState(t, sub, StateWaitingForOnline)

	sub.Unsubscribe()
	assert.Equal(t, StateClosed, sub.State())
	assert.ErrorIs(t, sub.Err(), helpers.ErrStreamClosed)
	assert.Contains(t, sub.Err().Error(), "unsubscribe")
	assert.Equal(t, 0, h.monitor.PendingListeners())
	requireEventsClosed(t, sub)

	h.monitor.SetOnline(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.transport.connects())
	assert.Equal(t, StateClosed, sub.State())
}

func TestUnsubscribeCancelsPendingReconnect(t *testing.T) {
	h := newHarness()

	sub, err := h.sub.Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)

	conn := h.transport.next(t)
	conn.errs <- models.MStreamError{Err: errors.New("refused"), Closed: true}
	waitForState(t, sub, StateReconnectScheduled)

	sub.Unsubscribe()
	h.clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.transport.connects())
	requireEventsClosed(t, sub)
}

func TestContextCancelClosesSubscription(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := h.sub.Subscribe(ctx, serviceURL, []string{"GA"})
	require.NoError(t, err)

	conn := h.transport.next(t)
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
	assert.Equal(t, StateClosed, sub.State())
	assert.True(t, conn.isClosed())
	requireEventsClosed(t, sub)
}

func TestUnsubscribeWhileConsumerIsSlow(t *testing.T) {
	log := logger.NewLogger(nil, "StreamTest")
	transport := newFakeTransport()
	sub, err := NewSubscriber(Options{
		Transport:    transport,
		Connectivity: network.NewConnectivityMonitor("", 0, log),
		EventBuffer:  -1,
		Logger:       log,
	}).Subscribe(context.Background(), serviceURL, []string{"GA"})
	require.NoError(t, err)

	conn := transport.next(t)
	conn.messages <- message(EventNameNew, `{"hash":"never-read"}`)

	done := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe blocked on an unread event")
	}
	assert.Equal(t, StateClosed, sub.State())
}
