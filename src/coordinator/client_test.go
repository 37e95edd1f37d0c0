package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"multisig-observer/src/helpers"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/network"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	cfg := &models.MConfig{Network: models.MNetworkConfig{RequestTimeout: 5}}
	return NewClient(network.NewAsyncNetworkManager(cfg, logger.NewLogger(cfg, "CoordinatorTest")))
}

func TestURLs(t *testing.T) {
	u, err := RequestsURL("https://c.example.com/api/", []string{"GA", "GB", "GA"})
	require.NoError(t, err)
	assert.Equal(t, "https://c.example.com/api/requests/GA,GB", u)

	u, err = StreamURL("https://c.example.com", []string{"GB"})
	require.NoError(t, err)
	assert.Equal(t, "https://c.example.com/stream/GB", u)
}

func TestFetchSnapshot(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"hash":"a","status":"pending","signed_by":["GA"]},{"hash":"b","status":"ready"}]`))
	}))
	defer server.Close()

	requests, err := newTestClient().FetchSnapshot(context.Background(), server.URL, []string{"GA", "GB", "GA"})
	require.NoError(t, err)
	assert.Equal(t, "/requests/GA,GB", path)
	require.Len(t, requests, 2)
	assert.Equal(t, "a", requests[0].Hash)
	assert.Equal(t, []string{"GA"}, requests[0].SignedBy)
	assert.Equal(t, models.StatusReady, requests[1].Status)
}

func TestFetchSnapshotEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer server.Close()

	requests, err := newTestClient().FetchSnapshot(context.Background(), server.URL, []string{"GA"})
	require.NoError(t, err)
	assert.NotNil(t, requests)
	assert.Empty(t, requests)
}

func TestFetchSnapshotFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance window"))
	}))
	defer server.Close()

	_, err := newTestClient().FetchSnapshot(context.Background(), server.URL, []string{"GA"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, helpers.ErrFetchFailed))
	assert.Equal(t, 1, calls)

	var fetchErr *helpers.FetchFailedError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "maintenance window", fetchErr.Body)
	assert.Equal(t, server.URL, fetchErr.ServiceURL)
	assert.Contains(t, err.Error(), "Fetching signature requests failed: maintenance window\nService: "+server.URL)
}

func TestFetchSnapshotUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient().FetchSnapshot(context.Background(), url, []string{"GA"})
	assert.True(t, errors.Is(err, helpers.ErrRequestFailed))
	assert.False(t, errors.Is(err, helpers.ErrFetchFailed))
}
