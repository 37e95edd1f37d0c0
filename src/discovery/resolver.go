// Package discovery maps home domains to the multi-signature coordinator
// they publish in their stellar.toml.
//
// Successful resolutions are cached for the lifetime of the Resolver.
// Failures are never cached: a domain whose document is missing the
// endpoint is looked up again on the next call. Concurrent lookups of one
// domain share a single fetch.
package discovery

import (
	"context"
	"sync"

	"multisig-observer/src/helpers"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"

	"github.com/juju/errors"
	"golang.org/x/sync/singleflight"
)

// Resolver resolves and caches coordinator endpoints per domain.
type Resolver struct {
	fetcher interfaces.IDiscoveryFetcher
	logger  *logger.Logger
	pending singleflight.Group
	cache   map[string]string
	mu      sync.RWMutex
}

// NewResolver creates a Resolver with an empty cache.
func NewResolver(fetcher interfaces.IDiscoveryFetcher, log *logger.Logger) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		logger:  log,
		cache:   make(map[string]string),
	}
	return r
}

// Resolve returns the coordinator base URL for domain. It fails with a
// helpers.NotLocatableError when the domain publishes no endpoint, or with
// the fetch error. Cancelling ctx abandons the wait; the shared fetch keeps
// going for the other callers.
func (r *Resolver) Resolve(ctx context.Context, domain string) (string, error) {
	if endpoint, ok := r.cached(domain); ok {
		return endpoint, nil
	}

	flight := r.pending.DoChan(domain, func() (interface{}, error) {
		// A flight that finished between the cache check and DoChan has
		// already cached its result.
		if endpoint, ok := r.cached(domain); ok {
			return endpoint, nil
		}
		return r.resolve(context.WithoutCancel(ctx), domain)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Annotatef(ctx.Err(), "resolving %s", domain)
	}
}

// Cached reports the cached endpoint for domain without any lookup.
func (r *Resolver) Cached(domain string) (string, bool) {
	return r.cached(domain)
}

func (r *Resolver) resolve(ctx context.Context, domain string) (string, error) {
	doc, err := r.fetcher.FetchDiscoveryDocument(ctx, domain)
	if err != nil {
		r.logger.Warning("Discovery document fetch for %s failed: %v", domain, err)
		return "", err
	}

	var endpoint string
	if doc != nil {
		endpoint = doc.MultisigEndpoint
	}
	if endpoint == "" {
		return "", helpers.NewNotLocatableError(domain)
	}

	r.mu.Lock()
	r.cache[domain] = endpoint
	r.mu.Unlock()

	r.logger.Info("Resolved multisig coordinator for %s: %s", domain, endpoint)
	return endpoint, nil
}

func (r *Resolver) cached(domain string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, ok := r.cache[domain]
	return endpoint, ok
}
