// Package coordinatorstub is an in-process multisig coordinator. It serves
// the discovery document, request snapshots and server-sent event streams,
// and lets callers publish request changes to every matching stream.
package coordinatorstub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/stream"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const streamBuffer = 64

// -----------------------------------------------------------------------------
// Coordinator
// -----------------------------------------------------------------------------

type Coordinator struct {
	Logger *logger.Logger

	engine      *gin.Engine
	mu          sync.Mutex
	baseURL     string
	requests    map[string]models.MSignatureRequest
	order       []string
	streams     map[*listener]struct{}
	unavailable bool
}

type listener struct {
	accounts []string
	events   chan sse.Event
	closed   chan struct{}
}

// -----------------------------------------------------------------------------

func New(log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewLogger(nil, "CoordinatorStub")
	}
	c := &Coordinator{
		Logger:   log,
		engine:   gin.New(),
		requests: make(map[string]models.MSignatureRequest),
		streams:  make(map[*listener]struct{}),
	}
	c.engine.Use(gin.Recovery())
	c.engine.GET("/.well-known/stellar.toml", c.getDiscovery)
	c.engine.GET("/requests/:accounts", c.getRequests)
	c.engine.GET("/stream/:accounts", c.getStream)
	return c
}

func (c *Coordinator) Handler() http.Handler { return c.engine }

// SetBaseURL sets the MULTISIG_ENDPOINT advertised by the discovery document.
func (c *Coordinator) SetBaseURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = url
}

// SetUnavailable makes every endpoint answer 503 and ends the open streams.
func (c *Coordinator) SetUnavailable(unavailable bool) {
	c.mu.Lock()
	c.unavailable = unavailable
	c.mu.Unlock()
	if unavailable {
		c.DropStreams()
	}
}

// DropStreams ends every open stream, as a coordinator restart would.
func (c *Coordinator) DropStreams() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for l := range c.streams {
		close(l.closed)
		delete(c.streams, l)
	}
}

// StreamCount is the number of open streams.
func (c *Coordinator) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

// Publish stores req and sends it as eventName to every stream following
// one of its accounts. It returns the number of streams reached.
func (c *Coordinator) Publish(eventName string, req models.MSignatureRequest) (int, error) {
	if req.Hash == "" {
		return 0, fmt.Errorf("request without hash")
	}
	if eventName == stream.EventNameSubmitted && req.Status == "" {
		req.Status = models.StatusSubmitted
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	// Coordinators send batches of JSON-encoded strings.
	data, err := json.Marshal([]string{string(encoded)})
	if err != nil {
		return 0, err
	}
	event := sse.Event{Event: eventName, Data: string(data)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.requests[req.Hash]; !ok {
		c.order = append(c.order, req.Hash)
	}
	c.requests[req.Hash] = req

	reached := 0
	for l := range c.streams {
		if !matches(req, l.accounts) {
			continue
		}
		select {
		case l.events <- event:
			reached++
		default:
			c.Logger.Warning("Stream buffer full, dropping %s for %s", eventName, req.Hash)
		}
	}
	return reached, nil
}

// Requests returns the stored requests involving any of accounts, in the
// order they were first published.
func (c *Coordinator) Requests(accounts []string) []models.MSignatureRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := []models.MSignatureRequest{}
	for _, hash := range c.order {
		if req := c.requests[hash]; matches(req, accounts) {
			out = append(out, req)
		}
	}
	return out
}

// matches reports whether req involves one of accounts. Requests that name
// no account at all reach everyone.
func matches(req models.MSignatureRequest, accounts []string) bool {
	involved := append([]string{}, req.SourceAccountIDs...)
	for _, s := range req.Signers {
		involved = append(involved, s.AccountID)
	}
	if len(involved) == 0 {
		return true
	}
	for _, a := range involved {
		for _, b := range accounts {
			if a == b {
				return true
			}
		}
	}
	return false
}

func splitAccounts(raw string) []string {
	var out []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (c *Coordinator) available(ctx *gin.Context) bool {
	c.mu.Lock()
	unavailable := c.unavailable
	c.mu.Unlock()
	if unavailable {
		ctx.String(http.StatusServiceUnavailable, "coordinator unavailable")
		return false
	}
	return true
}

func (c *Coordinator) getDiscovery(ctx *gin.Context) {
	c.mu.Lock()
	base := c.baseURL
	c.mu.Unlock()

	ctx.Data(http.StatusOK, "text/plain; charset=utf-8",
		[]byte(fmt.Sprintf("NETWORK_PASSPHRASE = \"Test SDF Network ; September 2015\"\nMULTISIG_ENDPOINT = %q\n", base)))
}

func (c *Coordinator) getRequests(ctx *gin.Context) {
	if !c.available(ctx) {
		return
	}
	ctx.JSON(http.StatusOK, c.Requests(splitAccounts(ctx.Param("accounts"))))
}

func (c *Coordinator) getStream(ctx *gin.Context) {
	if !c.available(ctx) {
		return
	}

	l := &listener{
		accounts: splitAccounts(ctx.Param("accounts")),
		events:   make(chan sse.Event, streamBuffer),
		closed:   make(chan struct{}),
	}
	c.mu.Lock()
	c.streams[l] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.streams, l)
		c.mu.Unlock()
	}()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.WriteHeader(http.StatusOK)
	ctx.Writer.Flush()

	for {
		select {
		case <-ctx.Request.Context().Done():
			return
		case <-l.closed:
			return
		case ev := <-l.events:
			ctx.SSEvent(ev.Event, ev.Data)
			ctx.Writer.Flush()
		}
	}
}
