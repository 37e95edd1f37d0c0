package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
)

const defaultTransitionLimit = 50

// -----------------------------------------------------------------------------
// RelayServer serves the observed signature requests to local wallet
// front-ends over REST and a websocket feed.
// -----------------------------------------------------------------------------

type RelayServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Journal interfaces.IJournal // optional, serves stream transitions
	engine  *gin.Engine
	server  *http.Server

	// WebSocket clients, owned by the hub loop
	clients     map[*Client]struct{}
	connections atomic.Int32
	broadcast   chan *models.MRelayMessage
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	done        chan struct{}
	hubOnce     sync.Once
	stopOnce    sync.Once

	// Served state per watch
	watches    map[string]models.MWatchState
	lastUpdate atomic.Int64
	stateMutex sync.RWMutex
}

type subscription struct {
	client  *Client
	watches []string
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewRelayServer(cfg *models.MConfig, journal interfaces.IJournal, log *logger.Logger) *RelayServer {
	if cfg.LogLevel != "DEBUG" && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewLogger(cfg, "RelayServer")
	}

	s := &RelayServer{
		Config:  cfg,
		Logger:  log,
		Journal: journal,
		engine:  gin.Default(),
		clients: make(map[*Client]struct{}),
		// Buffered so that sources never wait on slow websocket clients
		broadcast:  make(chan *models.MRelayMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		done:       make(chan struct{}),
		watches:    make(map[string]models.MWatchState),
	}

	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *RelayServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/watches", s.getWatches)
	api.GET("/watches/:watch/transitions", s.getTransitions)
	api.GET("/requests", s.getRequests)
	api.GET("/requests/:watch", s.getWatchRequests)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the routes, mostly for tests.
func (s *RelayServer) Handler() http.Handler { return s.engine }

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start listens on the configured host and port and blocks until Stop.
func (s *RelayServer) Start() error {
	addr := net.JoinHostPort(s.Config.Host, strconv.Itoa(s.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "listening on %s", addr)
	}
	return s.Serve(ln)
}

// Serve runs the hub and serves HTTP on ln until Stop.
func (s *RelayServer) Serve(ln net.Listener) error {
	s.Logger.Info("Starting relay server on %s", ln.Addr())
	s.hubOnce.Do(func() { go s.handleWebsockets() })

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Trace(err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down and disconnects every websocket client.
func (s *RelayServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
		close(s.done)
	})
	return errors.Trace(err)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *RelayServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	watches := len(s.watches)
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"connections":   s.connections.Load(),
		"watches":       watches,
		"latest_update": s.lastUpdate.Load(),
	})
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getWatches(c *gin.Context) {
	s.stateMutex.RLock()
	states := sortedStates(s.watches, nil)
	s.stateMutex.RUnlock()

	out := make([]gin.H, 0, len(states))
	for _, st := range states {
		out = append(out, gin.H{
			"watch":        st.Watch,
			"service_url":  st.ServiceURL,
			"stream_state": st.StreamState,
			"requests":     len(st.Requests),
		})
	}
	c.JSON(http.StatusOK, out)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getRequests(c *gin.Context) {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	out := make(map[string][]models.MSignatureRequest, len(s.watches))
	for _, st := range sortedStates(s.watches, nil) {
		out[st.Watch] = st.Requests
	}
	c.JSON(http.StatusOK, out)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getWatchRequests(c *gin.Context) {
	name := c.Param("watch")

	s.stateMutex.RLock()
	st, ok := s.watches[name]
	s.stateMutex.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown watch %q", name)})
		return
	}
	if st.Requests == nil {
		st.Requests = []models.MSignatureRequest{}
	}
	c.JSON(http.StatusOK, st.Requests)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getTransitions(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}

	limit := defaultTransitionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := s.Journal.RecentTransitions(c.Param("watch"), limit)
	if err != nil {
		s.Logger.Error("Reading transitions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	c.JSON(http.StatusOK, records)
}
