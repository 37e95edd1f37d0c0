package stream

import (
	"bytes"
	"encoding/json"

	"multisig-observer/src/models"

	"github.com/juju/errors"
)

// Named events sent by coordinators.
const (
	EventNameNew       = "signature-request"
	EventNameUpdated   = "signature-request:updated"
	EventNameSubmitted = "signature-request:submitted"
)

var eventKinds = map[string]models.SignatureRequestEventKind{
	EventNameNew:       models.EventNewSignatureRequest,
	EventNameUpdated:   models.EventSignatureRequestUpdate,
	EventNameSubmitted: models.EventSignatureRequestSubmitted,
}

// EventNames lists the stream events a subscription handles.
func EventNames() []string {
	return []string{EventNameNew, EventNameUpdated, EventNameSubmitted}
}

// Normalize turns one stream message into events. The payload is a single
// item or a JSON array of items, where an item is a JSON string holding the
// encoded request (a bare request object is accepted too). Batch order is
// kept. A message with any undecodable item yields no events.
func Normalize(eventName string, payload []byte) ([]models.MSignatureRequestEvent, error) {
	kind, ok := eventKinds[eventName]
	if !ok {
		return nil, errors.NotValidf("stream event %q", eventName)
	}

	items, err := splitItems(payload)
	if err != nil {
		return nil, errors.Annotatef(err, "%s payload", eventName)
	}

	events := make([]models.MSignatureRequestEvent, 0, len(items))
	for i, item := range items {
		req, err := decodeItem(item)
		if err != nil {
			return nil, errors.Annotatef(err, "%s item %d", eventName, i)
		}
		events = append(events, models.MSignatureRequestEvent{Kind: kind, SignatureRequest: req})
	}
	return events, nil
}

func splitItems(payload []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.NotValidf("empty payload")
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, errors.Trace(err)
	}
	return items, nil
}

func decodeItem(item json.RawMessage) (models.MSignatureRequest, error) {
	var req models.MSignatureRequest

	item = bytes.TrimSpace(item)
	if len(item) > 0 && item[0] == '"' {
		var encoded string
		if err := json.Unmarshal(item, &encoded); err != nil {
			return req, errors.Trace(err)
		}
		item = []byte(encoded)
	}

	if err := json.Unmarshal(item, &req); err != nil {
		return req, errors.Trace(err)
	}
	if req.Hash == "" {
		return req, errors.NotValidf("signature request without hash")
	}
	return req, nil
}
