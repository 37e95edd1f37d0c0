package server

import (
	"encoding/json"
	"net/http"
	"time"

	"multisig-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop. It alone touches clients and their
// watch filters.
func (s *RelayServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.connections.Store(int32(len(s.clients)))
			s.deliver(client, s.initialMessage(client.watches))

		case client := <-s.unregister:
			s.drop(client)

		case sub := <-s.subscribe:
			if _, ok := s.clients[sub.client]; !ok {
				continue
			}
			sub.client.watches = sub.watches
			s.deliver(sub.client, s.initialMessage(sub.watches))

		case message := <-s.broadcast:
			for client := range s.clients {
				if message.Event != nil && !client.wants(message.Event.Watch) {
					continue
				}
				s.deliver(client, message)
			}

		case <-s.done:
			for client := range s.clients {
				s.drop(client)
			}
			return
		}
	}
}

// deliver queues a message for a client, pruning it when its buffer is full
// so that one slow consumer never blocks the hub.
func (s *RelayServer) deliver(client *Client, message *models.MRelayMessage) {
	select {
	case client.send <- message:
	default:
		s.Logger.Warning("Dropping slow websocket client")
		s.drop(client)
	}
}

func (s *RelayServer) drop(client *Client) {
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
		s.connections.Store(int32(len(s.clients)))
	}
}

func (s *RelayServer) initialMessage(watches []string) *models.MRelayMessage {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return &models.MRelayMessage{
		Type:    "INITIAL",
		Watches: sortedStates(s.watches, watches),
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// UpdateWatchState replaces what is served for one watch.
func (s *RelayServer) UpdateWatchState(state models.MWatchState) {
	requests := make([]models.MSignatureRequest, len(state.Requests))
	copy(requests, state.Requests)
	state.Requests = requests

	s.stateMutex.Lock()
	s.watches[state.Watch] = state
	s.stateMutex.Unlock()
	s.lastUpdate.Store(time.Now().UnixMilli())
}

// -----------------------------------------------------------------------------

func (s *RelayServer) RemoveWatch(name string) {
	s.stateMutex.Lock()
	delete(s.watches, name)
	s.stateMutex.Unlock()
}

// -----------------------------------------------------------------------------

// Broadcast queues an event for every client subscribed to its watch.
// Snapshot notices go out as SNAPSHOT messages.
func (s *RelayServer) Broadcast(event models.MWatchEvent) {
	msgType := "EVENT"
	if event.IsSnapshot() {
		msgType = "SNAPSHOT"
	}
	message := &models.MRelayMessage{Type: msgType, Event: &event}

	select {
	case s.broadcast <- message:
	case <-s.done:
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *RelayServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		send: make(chan *models.MRelayMessage, sendBuffer),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe command. An empty watch list
// subscribes to every watch.
func (s *RelayServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	var watches []string
	if len(cmd.Watches) > 0 {
		watches = append([]string{}, cmd.Watches...)
	}

	select {
	case s.subscribe <- subscription{client: client, watches: watches}:
	case <-s.done:
	}
}
