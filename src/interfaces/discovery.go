package interfaces

import (
	"context"
	"multisig-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDiscoveryFetcher loads a domain's well-known discovery document.
// -----------------------------------------------------------------------------

type IDiscoveryFetcher interface {
	FetchDiscoveryDocument(ctx context.Context, domain string) (*models.MDiscoveryDocument, error)
}

// -----------------------------------------------------------------------------
// IResolver maps a domain to its coordinator base URL.
// -----------------------------------------------------------------------------

type IResolver interface {
	Resolve(ctx context.Context, domain string) (string, error)
}

// -----------------------------------------------------------------------------
// ISnapshotFetcher reads the pending signature requests for a set of accounts.
// -----------------------------------------------------------------------------

type ISnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, serviceURL string, accountIDs []string) ([]models.MSignatureRequest, error)
}
