package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"multisig-observer/src/models"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJournal struct {
	records []models.MTransitionRecord
	err     error
	watch   string
	limit   int
}

func (j *stubJournal) Initialize() error                                        { return nil }
func (j *stubJournal) SaveTransitions(records []models.MTransitionRecord) error { return nil }
func (j *stubJournal) CleanupOldData() error                                    { return nil }
func (j *stubJournal) Close() error                                             { return nil }

func (j *stubJournal) RecentTransitions(watch string, limit int) ([]models.MTransitionRecord, error) {
	j.watch, j.limit = watch, limit
	return j.records, j.err
}

func newTestRelay(journal *stubJournal) *RelayServer {
	cfg := &models.MConfig{Host: "127.0.0.1", Port: 0}
	if journal == nil {
		return NewRelayServer(cfg, nil, nil)
	}
	return NewRelayServer(cfg, journal, nil)
}

func get(t *testing.T, s *RelayServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func request(hash string, status models.SignatureRequestStatus) models.MSignatureRequest {
	return models.MSignatureRequest{Hash: hash, Status: status}
}

// -----------------------------------------------------------------------------

func TestRequestRoutes(t *testing.T) {
	s := newTestRelay(nil)
	s.UpdateWatchState(models.MWatchState{
		Watch:       "treasury",
		ServiceURL:  "https://c.example.com",
		StreamState: "OPEN",
		Requests:    []models.MSignatureRequest{request("a", models.StatusPending)},
	})
	s.UpdateWatchState(models.MWatchState{Watch: "ops", StreamState: "CONNECTING"})

	rec := get(t, s, "/api/requests")
	require.Equal(t, http.StatusOK, rec.Code)
	var all map[string][]models.MSignatureRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all["treasury"], 1)
	assert.NotNil(t, all["ops"])
	assert.Empty(t, all["ops"])

	rec = get(t, s, "/api/requests/treasury")
	require.Equal(t, http.StatusOK, rec.Code)
	var one []models.MSignatureRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Len(t, one, 1)
	assert.Equal(t, "a", one[0].Hash)

	rec = get(t, s, "/api/requests/ops")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, s, "/api/requests/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchesAndHealth(t *testing.T) {
	s := newTestRelay(nil)
	s.UpdateWatchState(models.MWatchState{Watch: "b", StreamState: "OPEN", Requests: []models.MSignatureRequest{request("x", models.StatusReady)}})
	s.UpdateWatchState(models.MWatchState{Watch: "a", StreamState: "WAITING_FOR_ONLINE"})

	rec := get(t, s, "/api/watches")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"watch":"a","service_url":"","stream_state":"WAITING_FOR_ONLINE","requests":0},
		{"watch":"b","service_url":"","stream_state":"OPEN","requests":1}
	]`, rec.Body.String())

	s.RemoveWatch("b")
	rec = get(t, s, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["watches"])
	assert.EqualValues(t, 0, health["connections"])
	assert.NotZero(t, health["latest_update"])
}

func TestUpdateWatchStateCopiesRequests(t *testing.T) {
	s := newTestRelay(nil)
	requests := []models.MSignatureRequest{request("a", models.StatusPending)}
	s.UpdateWatchState(models.MWatchState{Watch: "w", Requests: requests})
	requests[0].Hash = "changed"

	rec := get(t, s, "/api/requests/w")
	assert.Contains(t, rec.Body.String(), `"hash":"a"`)
}

func TestTransitions(t *testing.T) {
	rec := get(t, newTestRelay(nil), "/api/watches/w/transitions")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	journal := &stubJournal{records: []models.MTransitionRecord{{Watch: "w", FromState: "CONNECTING", ToState: "OPEN"}}}
	s := newTestRelay(journal)

	rec = get(t, s, "/api/watches/w/transitions?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "w", journal.watch)
	assert.Equal(t, 5, journal.limit)
	assert.Contains(t, rec.Body.String(), `"to_state":"OPEN"`)

	get(t, s, "/api/watches/w/transitions")
	assert.Equal(t, defaultTransitionLimit, journal.limit)

	rec = get(t, s, "/api/watches/w/transitions?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	journal.err = errors.New("disk gone")
	rec = get(t, s, "/api/watches/w/transitions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestRelay(nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/requests", nil)
	req.Header.Set("Origin", "http://127.0.0.1:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://127.0.0.1:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

// -----------------------------------------------------------------------------
// Websocket feed
// -----------------------------------------------------------------------------

func serveRelay(t *testing.T, s *RelayServer) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	return "ws://" + ln.Addr().String() + "/ws", func() {
		require.NoError(t, s.Stop())
		require.NoError(t, <-served)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) models.MRelayMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg models.MRelayMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketFeed(t *testing.T) {
	s := newTestRelay(nil)
	s.UpdateWatchState(models.MWatchState{Watch: "a", StreamState: "OPEN"})
	s.UpdateWatchState(models.MWatchState{Watch: "b", StreamState: "OPEN", Requests: []models.MSignatureRequest{request("x", models.StatusPending)}})

	url, stop := serveRelay(t, s)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readMessage(t, conn)
	assert.Equal(t, "INITIAL", initial.Type)
	require.Len(t, initial.Watches, 2)
	assert.Equal(t, "a", initial.Watches[0].Watch)

	require.NoError(t, conn.WriteJSON(models.MSubscribeCommand{Command: "subscribe", Watches: []string{"b"}}))
	filtered := readMessage(t, conn)
	assert.Equal(t, "INITIAL", filtered.Type)
	require.Len(t, filtered.Watches, 1)
	assert.Equal(t, "b", filtered.Watches[0].Watch)
	assert.Equal(t, "x", filtered.Watches[0].Requests[0].Hash)

	s.Broadcast(models.MWatchEvent{Watch: "a", Event: models.MSignatureRequestEvent{
		Kind: models.EventNewSignatureRequest, SignatureRequest: request("ignored", models.StatusPending)}})
	s.Broadcast(models.MWatchEvent{Watch: "b", Event: models.MSignatureRequestEvent{
		Kind: models.EventSignatureRequestUpdate, SignatureRequest: request("x", models.StatusReady)}})
	s.Broadcast(models.MWatchEvent{Watch: "b", Full: true, Snapshot: []models.MSignatureRequest{}})

	event := readMessage(t, conn)
	assert.Equal(t, "EVENT", event.Type)
	require.NotNil(t, event.Event)
	assert.Equal(t, "b", event.Event.Watch)
	assert.Equal(t, models.StatusReady, event.Event.Event.SignatureRequest.Status)

	snapshot := readMessage(t, conn)
	assert.Equal(t, "SNAPSHOT", snapshot.Type)
	require.NotNil(t, snapshot.Event)
	assert.True(t, snapshot.Event.IsSnapshot())
	assert.Empty(t, snapshot.Event.Snapshot)

	stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebsocketBadCommandDisconnects(t *testing.T) {
	s := newTestRelay(nil)
	url, stop := serveRelay(t, s)
	defer stop()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "INITIAL", readMessage(t, conn).Type)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	assert.Eventually(t, func() bool { return s.connections.Load() == 0 }, 5*time.Second, 10*time.Millisecond)
}
