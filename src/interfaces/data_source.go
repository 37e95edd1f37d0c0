package interfaces

import (
	"context"
	"multisig-observer/src/models"
	"sync"
)

// -----------------------------------------------------------------------------
// IDataSource watches one account set on one coordinator.
// -----------------------------------------------------------------------------

type IDataSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Watch returns the watch configuration the source currently runs with.
	Watch() models.MWatchConfig

	// -----------------------------------------------------------------------------

	// FetchInitialData retrieves the current snapshot of signature requests.
	FetchInitialData(ctx context.Context) ([]models.MSignatureRequest, error)

	// -----------------------------------------------------------------------------

	// UpdateAccounts replaces the watched accounts, re-subscribing if running.
	UpdateAccounts(accounts []string) error

	// -----------------------------------------------------------------------------

	// Start begins streaming
	// ctx: controls the lifecycle (cancellation stops the source)
	// outputChan: channel to push events to
	// wg: WaitGroup to signal when the source has fully stopped
	Start(ctx context.Context, outputChan chan<- models.MWatchEvent, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates streaming.
	Stop() error

	// -----------------------------------------------------------------------------

	// IsRunning reports whether Start was called without a matching Stop.
	IsRunning() bool

	// -----------------------------------------------------------------------------

	// StreamState returns the current subscription state name.
	StreamState() string

	// -----------------------------------------------------------------------------

	// ServiceURL returns the coordinator in use, empty until resolved.
	ServiceURL() string
}
