package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for HTTP requests with potential proxy/retry logic.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a single GET request and returns the body of a 2xx response.
	Get(ctx context.Context, url string) ([]byte, error)

	// -----------------------------------------------------------------------------

	// GetWithRetry is Get, retried on transport failures.
	GetWithRetry(ctx context.Context, url string) ([]byte, error)
}
