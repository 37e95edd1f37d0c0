package network

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"multisig-observer/src/helpers"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"github.com/gin-contrib/sse"
	"github.com/juju/errors"
)

const (
	maxEventLineBytes = 4 << 20
	maxErrorBodyBytes = 4 << 10
	errStreamEnded    = errors.ConstError("event stream ended")
	eventStreamAccept = "text/event-stream"
)

// -----------------------------------------------------------------------------
// EventSourceTransport opens server-sent-event streams. Unlike a browser
// EventSource it never reconnects on its own: every failure is terminal and
// reported with Closed set, leaving the retry policy to the caller.
// -----------------------------------------------------------------------------

type EventSourceTransport struct {
	Client    *http.Client
	UserAgent string
	Logger    *logger.Logger
}

// -----------------------------------------------------------------------------

func NewEventSourceTransport(client *http.Client, userAgent string, log *logger.Logger) *EventSourceTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &EventSourceTransport{
		Client:    client,
		UserAgent: userAgent,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

func (t *EventSourceTransport) Connect(ctx context.Context, url string) interfaces.IStreamConnection {
	ctx, cancel := context.WithCancel(ctx)
	c := &eventSourceConn{
		url:      url,
		opened:   make(chan struct{}),
		messages: make(chan models.MStreamMessage),
		errs:     make(chan models.MStreamError, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx, t)
	return c
}

// -----------------------------------------------------------------------------

type eventSourceConn struct {
	url       string
	opened    chan struct{}
	messages  chan models.MStreamMessage
	errs      chan models.MStreamError
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (c *eventSourceConn) Opened() <-chan struct{}                { return c.opened }
func (c *eventSourceConn) Messages() <-chan models.MStreamMessage { return c.messages }
func (c *eventSourceConn) Errors() <-chan models.MStreamError     { return c.errs }

// -----------------------------------------------------------------------------

// Close stops the reader goroutine and waits for it to exit.
func (c *eventSourceConn) Close() error {
	c.closeOnce.Do(c.cancel)
	<-c.done
	return nil
}

// -----------------------------------------------------------------------------

func (c *eventSourceConn) run(ctx context.Context, t *EventSourceTransport) {
	defer close(c.done)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.fail(ctx, errors.Annotatef(err, "building stream request for %s", c.url))
		return
	}
	req.Header.Set("Accept", eventStreamAccept)
	req.Header.Set("Cache-Control", "no-cache")
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		c.fail(ctx, helpers.NewRequestFailedError(c.url, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.fail(ctx, helpers.NewResponseError(c.url, resp.StatusCode, string(body)))
		return
	}

	close(c.opened)
	if t.Logger != nil {
		t.Logger.Debug("Event stream open: %s", c.url)
	}

	if err := c.read(ctx, resp.Body); err != nil {
		c.fail(ctx, err)
	}
}

// -----------------------------------------------------------------------------

// read splits the body into blank-line separated frames and decodes each.
func (c *eventSourceConn) read(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)

	var frame bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 {
			frame.Write(line)
			frame.WriteByte('\n')
			continue
		}
		if frame.Len() == 0 {
			continue
		}
		frame.WriteByte('\n')
		if err := c.dispatch(ctx, frame.Bytes()); err != nil {
			return err
		}
		frame.Reset()
	}

	if err := scanner.Err(); err != nil {
		return errors.Annotatef(err, "reading event stream %s", c.url)
	}
	return errStreamEnded
}

// -----------------------------------------------------------------------------

func (c *eventSourceConn) dispatch(ctx context.Context, frame []byte) error {
	events, err := sse.Decode(bytes.NewReader(frame))
	if err != nil {
		return errors.Annotate(err, "decoding event frame")
	}

	for _, ev := range events {
		data, _ := ev.Data.(string)
		msg := models.MStreamMessage{Event: ev.Event, ID: ev.Id, Data: []byte(data)}
		select {
		case c.messages <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// fail reports a terminal error unless the connection is already being closed.
func (c *eventSourceConn) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	select {
	case c.errs <- models.MStreamError{Err: err, Closed: true}:
	case <-ctx.Done():
	}
}
