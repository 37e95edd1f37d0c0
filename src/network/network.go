package network

import (
	"context"
	"io"
	"multisig-observer/src/helpers"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

// maxBodyBytes caps how much of a response is read into memory.
const maxBodyBytes = 8 << 20

type AsyncNetworkManager struct {
	Config       *models.MConfig
	ProxyManager interfaces.IProxyManager
	Logger       *logger.Logger
	Clock        clock.Clock
	client       *http.Client
	mu           sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	var proxies []string
	if cfg.Network.Enabled {
		proxies = cfg.Network.Proxies
	}

	nm := &AsyncNetworkManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(proxies, cfg.Network.UserAgent),
		Logger:       log,
		Clock:        clock.WallClock,
	}
	nm.client = nm.createClient(time.Duration(cfg.Network.RequestTimeout) * time.Second)
	return nm
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if nm.ProxyManager.HasProxies() {
		proxyStr, err := nm.ProxyManager.GetCurrentProxy()
		if err == nil && proxyStr != "" {
			proxyURL, err := url.Parse(proxyStr)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// -----------------------------------------------------------------------------

// StreamClient returns a client without an overall timeout, sharing the proxy
// settings, for long-lived event streams.
func (nm *AsyncNetworkManager) StreamClient() *http.Client {
	return nm.createClient(0)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) currentClient() *http.Client {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.client
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) rotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}

	nm.ProxyManager.RotateProxy()
	client := nm.createClient(time.Duration(nm.Config.Network.RequestTimeout) * time.Second)

	nm.mu.Lock()
	nm.client = client
	nm.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Get performs one GET request. A request that got no response fails with
// helpers.RequestFailedError, a non-2xx response with helpers.ResponseError.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "building request for %s", urlStr)
	}
	req.Header.Set("User-Agent", nm.ProxyManager.GetUserAgent())

	resp, err := nm.currentClient().Do(req)
	if err != nil {
		return nil, helpers.NewRequestFailedError(urlStr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, helpers.NewRequestFailedError(urlStr, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, helpers.NewResponseError(urlStr, resp.StatusCode, string(body))
	}

	return body, nil
}

// -----------------------------------------------------------------------------

// GetWithRetry performs Get, retrying requests that got no response with a
// doubling delay and proxy rotation. Error responses are returned at once.
func (nm *AsyncNetworkManager) GetWithRetry(ctx context.Context, urlStr string) ([]byte, error) {
	attempts := nm.Config.Network.MaxRetries + 1
	var body []byte

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			b, err := nm.Get(ctx, urlStr)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil || !errors.Is(err, helpers.ErrRequestFailed)
		},
		NotifyFunc: func(lastError error, attempt int) {
			nm.Logger.Info("Request failed (attempt %d/%d): %v", attempt, attempts, lastError)
			if attempt < attempts {
				nm.rotateProxy()
			}
		},
		Attempts:    attempts,
		Delay:       time.Second,
		BackoffFunc: retry.DoubleDelay,
		Clock:       nm.Clock,
		Stop:        ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		return nil, retry.LastError(err)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
