package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"multisig-observer/src/helpers"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport() *EventSourceTransport {
	return NewEventSourceTransport(nil, "observer-test", logger.NewLogger(nil, "EventSourceTest"))
}

func nextMessage(t *testing.T, conn interface {
	Messages() <-chan models.MStreamMessage
}) models.MStreamMessage {
	t.Helper()
	select {
	case msg := <-conn.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return models.MStreamMessage{}
	}
}

func TestEventSourceDeliversNamedEvents(t *testing.T) {
	router := gin.New()
	router.GET("/stream/:accounts", func(c *gin.Context) {
		assert.Equal(t, "text/event-stream", c.GetHeader("Accept"))
		c.SSEvent("signature-request", `{"hash":"a"}`)
		c.SSEvent("signature-request:submitted", `[{"hash":"b"}]`)
		c.Writer.Flush()
	})
	server := httptest.NewServer(router)
	defer server.Close()

	conn := newTestTransport().Connect(context.Background(), server.URL+"/stream/GA")
	defer conn.Close()

	select {
	case <-conn.Opened():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not open")
	}

	msg := nextMessage(t, conn)
	assert.Equal(t, "signature-request", msg.Event)
	assert.JSONEq(t, `{"hash":"a"}`, string(msg.Data))

	msg = nextMessage(t, conn)
	assert.Equal(t, "signature-request:submitted", msg.Event)
	assert.JSONEq(t, `[{"hash":"b"}]`, string(msg.Data))

	// The handler returned, ending the stream.
	select {
	case e := <-conn.Errors():
		assert.True(t, e.Closed)
		assert.Error(t, e.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("end of stream not reported")
	}
}

func TestEventSourceReportsErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown account", http.StatusBadRequest)
	}))
	defer server.Close()

	conn := newTestTransport().Connect(context.Background(), server.URL)
	defer conn.Close()

	select {
	case e := <-conn.Errors():
		assert.True(t, e.Closed)
		assert.True(t, errors.Is(e.Err, helpers.ErrResponse))
	case <-time.After(2 * time.Second):
		t.Fatal("error not reported")
	}

	select {
	case <-conn.Opened():
		t.Fatal("a failed stream must not report open")
	default:
	}
}

func TestEventSourceCloseIsQuiet(t *testing.T) {
	router := gin.New()
	router.GET("/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Status(http.StatusOK)
		c.Writer.Flush()
		<-c.Request.Context().Done()
	})
	server := httptest.NewServer(router)
	defer server.Close()

	conn := newTestTransport().Connect(context.Background(), server.URL+"/stream")
	select {
	case <-conn.Opened():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not open")
	}

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	select {
	case e := <-conn.Errors():
		t.Fatalf("unexpected error after close: %v", e.Err)
	default:
	}
}
