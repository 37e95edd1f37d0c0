package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"multisig-observer/src/helpers"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/network"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stellarToml = `
NETWORK_PASSPHRASE = "Public Global Stellar Network ; September 2015"
MULTISIG_ENDPOINT = " https://multisig.example.com "

[DOCUMENTATION]
ORG_NAME = "Example"
`

func TestParseDiscoveryDocument(t *testing.T) {
	doc, err := ParseDiscoveryDocument([]byte(stellarToml))
	require.NoError(t, err)
	assert.Equal(t, "https://multisig.example.com", doc.MultisigEndpoint)
	assert.Equal(t, "Public Global Stellar Network ; September 2015", doc.NetworkPassphrase)

	doc, err = ParseDiscoveryDocument([]byte(`ORG = "x"`))
	require.NoError(t, err)
	assert.Empty(t, doc.MultisigEndpoint)

	_, err = ParseDiscoveryDocument([]byte(`MULTISIG_ENDPOINT = `))
	assert.Error(t, err)
}

func TestDocumentURL(t *testing.T) {
	f := NewTomlFetcher(nil, "")
	assert.Equal(t, "https://example.com/.well-known/stellar.toml", f.DocumentURL(" example.com/ "))
}

func TestTomlFetcherThroughResolver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/stellar.toml", r.URL.Path)
		w.Write([]byte(stellarToml))
	}))
	defer server.Close()

	cfg := &models.MConfig{Network: models.MNetworkConfig{RequestTimeout: 5}}
	nm := network.NewAsyncNetworkManager(cfg, logger.NewLogger(cfg, "Network"))
	fetcher := NewTomlFetcher(nm, "http")

	domain := strings.TrimPrefix(server.URL, "http://")
	endpoint, err := NewResolver(fetcher, logger.NewLogger(nil, "Resolver")).Resolve(context.Background(), domain)
	require.NoError(t, err)
	assert.Equal(t, "https://multisig.example.com", endpoint)
}

func TestResolveKeepsResponseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no toml here", http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &models.MConfig{Network: models.MNetworkConfig{RequestTimeout: 5}}
	nm := network.NewAsyncNetworkManager(cfg, logger.NewLogger(cfg, "Network"))
	resolver := NewResolver(NewTomlFetcher(nm, "http"), logger.NewLogger(nil, "Resolver"))

	_, err := resolver.Resolve(context.Background(), strings.TrimPrefix(server.URL, "http://"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, helpers.ErrResponse))
	assert.False(t, errors.Is(err, helpers.ErrRequestFailed))

	var respErr *helpers.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusNotFound, respErr.StatusCode)
	assert.Contains(t, respErr.Body, "no toml here")
}
