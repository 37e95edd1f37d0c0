package discovery

import (
	"context"
	"fmt"
	"strings"

	"multisig-observer/src/interfaces"
	"multisig-observer/src/models"

	"github.com/juju/errors"
	"github.com/pelletier/go-toml/v2"
)

const wellKnownPath = "/.well-known/stellar.toml"

// TomlFetcher loads stellar.toml documents through the network manager.
type TomlFetcher struct {
	Network interfaces.INetworkManager
	Scheme  string
}

// NewTomlFetcher returns a fetcher for scheme ("https" outside of tests).
func NewTomlFetcher(netMgr interfaces.INetworkManager, scheme string) *TomlFetcher {
	if scheme == "" {
		scheme = "https"
	}
	return &TomlFetcher{Network: netMgr, Scheme: scheme}
}

// DocumentURL is where the discovery document of domain lives.
func (f *TomlFetcher) DocumentURL(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), "/")
	return fmt.Sprintf("%s://%s%s", f.Scheme, domain, wellKnownPath)
}

func (f *TomlFetcher) FetchDiscoveryDocument(ctx context.Context, domain string) (*models.MDiscoveryDocument, error) {
	body, err := f.Network.GetWithRetry(ctx, f.DocumentURL(domain))
	if err != nil {
		return nil, err
	}
	return ParseDiscoveryDocument(body)
}

// ParseDiscoveryDocument reads the fields of a stellar.toml this module uses.
// Unknown keys are ignored.
func ParseDiscoveryDocument(data []byte) (*models.MDiscoveryDocument, error) {
	var doc models.MDiscoveryDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Annotate(err, "parsing stellar.toml")
	}
	doc.MultisigEndpoint = strings.TrimSpace(doc.MultisigEndpoint)
	return &doc, nil
}
