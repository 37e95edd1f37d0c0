package utils

import (
	"sync"

	"multisig-observer/src/logger"
	"multisig-observer/src/models"
)

// -----------------------------------------------------------------------------
// RequestBook keeps the latest known version of every signature request per
// watch. Events are applied by hash, so re-delivered events are harmless.
// -----------------------------------------------------------------------------

type RequestBook struct {
	watches     map[string]*watchRequests
	MaxRequests int
	Logger      *logger.Logger
	mu          sync.RWMutex
}

type watchRequests struct {
	byHash map[string]models.MSignatureRequest
	order  []string // hashes in first-seen order
}

// -----------------------------------------------------------------------------

func NewRequestBook(maxRequests int) *RequestBook {
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	return &RequestBook{
		watches:     make(map[string]*watchRequests),
		MaxRequests: maxRequests,
		Logger:      logger.NewLogger(nil, "RequestBook"),
	}
}

// -----------------------------------------------------------------------------

// ReplaceSnapshot swaps the requests of a watch for a fresh snapshot.
func (rb *RequestBook) ReplaceSnapshot(watch string, requests []models.MSignatureRequest) {
	wr := &watchRequests{byHash: make(map[string]models.MSignatureRequest)}
	for _, req := range requests {
		wr.put(req)
	}

	rb.mu.Lock()
	rb.watches[watch] = wr
	rb.evict(watch, wr)
	rb.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Apply folds one event into the book. It returns false when the event
// carried nothing new.
func (rb *RequestBook) Apply(watch string, event models.MSignatureRequestEvent) bool {
	req := event.SignatureRequest
	if req.Hash == "" {
		return false
	}
	if event.Kind == models.EventSignatureRequestSubmitted && req.Status == "" {
		req.Status = models.StatusSubmitted
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	wr, ok := rb.watches[watch]
	if !ok {
		wr = &watchRequests{byHash: make(map[string]models.MSignatureRequest)}
		rb.watches[watch] = wr
	}

	if existing, ok := wr.byHash[req.Hash]; ok && sameRequest(existing, req) {
		return false
	}
	wr.put(req)
	rb.evict(watch, wr)
	return true
}

// -----------------------------------------------------------------------------

// Requests returns the requests of one watch in first-seen order.
func (rb *RequestBook) Requests(watch string) []models.MSignatureRequest {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	wr, ok := rb.watches[watch]
	if !ok {
		return []models.MSignatureRequest{}
	}
	result := make([]models.MSignatureRequest, 0, len(wr.order))
	for _, hash := range wr.order {
		result = append(result, wr.byHash[hash])
	}
	return result
}

// -----------------------------------------------------------------------------

// Get returns one request by hash.
func (rb *RequestBook) Get(watch, hash string) (models.MSignatureRequest, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	wr, ok := rb.watches[watch]
	if !ok {
		return models.MSignatureRequest{}, false
	}
	req, ok := wr.byHash[hash]
	return req, ok
}

// -----------------------------------------------------------------------------

// Remove drops everything known for a watch.
func (rb *RequestBook) Remove(watch string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	delete(rb.watches, watch)
}

// -----------------------------------------------------------------------------

// WatchCount returns number of watches with data
func (rb *RequestBook) WatchCount() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.watches)
}

// -----------------------------------------------------------------------------

func (wr *watchRequests) put(req models.MSignatureRequest) {
	if _, ok := wr.byHash[req.Hash]; !ok {
		wr.order = append(wr.order, req.Hash)
	}
	wr.byHash[req.Hash] = req
}

// -----------------------------------------------------------------------------

// evict drops the oldest submitted or failed requests, then the oldest of
// any status, until the watch fits MaxRequests. Caller holds the lock.
func (rb *RequestBook) evict(watch string, wr *watchRequests) {
	if len(wr.order) <= rb.MaxRequests {
		return
	}

	excess := len(wr.order) - rb.MaxRequests
	kept := wr.order[:0]
	for _, hash := range wr.order {
		status := wr.byHash[hash].Status
		if excess > 0 && (status == models.StatusSubmitted || status == models.StatusFailed) {
			delete(wr.byHash, hash)
			excess--
			continue
		}
		kept = append(kept, hash)
	}
	if excess > 0 {
		for _, hash := range kept[:excess] {
			delete(wr.byHash, hash)
		}
		kept = kept[excess:]
	}
	wr.order = kept

	rb.Logger.Debug("Evicted requests for watch %s, %d remain", watch, len(wr.order))
}

// -----------------------------------------------------------------------------

func sameRequest(a, b models.MSignatureRequest) bool {
	if a.Status != b.Status || a.UpdatedAt != b.UpdatedAt || a.Req != b.Req {
		return false
	}
	if len(a.SignedBy) != len(b.SignedBy) {
		return false
	}
	for i := range a.SignedBy {
		if a.SignedBy[i] != b.SignedBy[i] {
			return false
		}
	}
	return true
}
