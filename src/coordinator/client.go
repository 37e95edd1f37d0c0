package coordinator

import (
	"context"
	"encoding/json"
	"net/url"

	"multisig-observer/src/helpers"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/models"
	"multisig-observer/src/utils"

	"github.com/juju/errors"
)

// -----------------------------------------------------------------------------
// Client talks to one kind of service: a multi-signature coordinator.
// -----------------------------------------------------------------------------

type Client struct {
	Network interfaces.INetworkManager
}

// -----------------------------------------------------------------------------

func NewClient(netMgr interfaces.INetworkManager) *Client {
	return &Client{Network: netMgr}
}

// -----------------------------------------------------------------------------

// RequestsURL is the snapshot endpoint for an account set.
func RequestsURL(serviceURL string, accountIDs []string) (string, error) {
	return url.JoinPath(serviceURL, "requests", utils.AccountKey(accountIDs))
}

// -----------------------------------------------------------------------------

// StreamURL is the event stream endpoint for an account set.
func StreamURL(serviceURL string, accountIDs []string) (string, error) {
	return url.JoinPath(serviceURL, "stream", utils.AccountKey(accountIDs))
}

// -----------------------------------------------------------------------------

// FetchSnapshot returns the signature requests currently pending for the
// accounts. It makes exactly one request; a non-2xx answer fails with
// helpers.FetchFailedError carrying the response text.
func (c *Client) FetchSnapshot(ctx context.Context, serviceURL string, accountIDs []string) ([]models.MSignatureRequest, error) {
	reqURL, err := RequestsURL(serviceURL, accountIDs)
	if err != nil {
		return nil, errors.Annotatef(err, "invalid service url %q", serviceURL)
	}

	body, err := c.Network.Get(ctx, reqURL)
	if err != nil {
		if errors.Is(err, helpers.ErrResponse) {
			return nil, helpers.NewFetchFailedError(serviceURL, err)
		}
		return nil, err
	}

	var requests []models.MSignatureRequest
	if err := json.Unmarshal(body, &requests); err != nil {
		return nil, errors.Annotatef(err, "decoding signature requests from %s", serviceURL)
	}
	if requests == nil {
		requests = []models.MSignatureRequest{}
	}
	return requests, nil
}
