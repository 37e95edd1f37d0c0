package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"multisig-observer/src/coordinatorstub"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/stream"

	"github.com/google/uuid"
)

// publisher plays coordinator activity: every tick one request moves one
// step through created, signed and submitted.
type publisher struct {
	stub     *coordinatorstub.Coordinator
	accounts []string
	logger   *logger.Logger
	open     []models.MSignatureRequest
	next     int
}

func (p *publisher) run(ctx context.Context, interval, outageEvery time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var outage <-chan time.Time
	if outageEvery > 0 {
		t := time.NewTicker(outageEvery)
		defer t.Stop()
		outage = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-outage:
			p.logger.Info("Coordinator dropping %d streams", p.stub.StreamCount())
			p.stub.DropStreams()
		case <-ticker.C:
			p.step()
		}
	}
}

func (p *publisher) step() {
	if len(p.accounts) == 0 {
		return
	}

	// Advance the oldest open request, or create a new one.
	if len(p.open) > 0 && p.next%2 == 1 {
		req := p.open[0]
		switch req.Status {
		case models.StatusPending:
			req.Status = models.StatusReady
			req.SignedBy = append(req.SignedBy, req.Signers[0].AccountID)
			req.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
			p.open[0] = req
			p.publish(stream.EventNameUpdated, req)
		default:
			req.Status = models.StatusSubmitted
			p.open = p.open[1:]
			p.publish(stream.EventNameSubmitted, req)
		}
		p.next++
		return
	}

	account := p.accounts[p.next%len(p.accounts)]
	sum := sha256.Sum256([]byte(uuid.NewString()))
	now := time.Now().UTC().Format(time.RFC3339)
	req := models.MSignatureRequest{
		Hash:             hex.EncodeToString(sum[:]),
		Req:              "web+stellar:tx?xdr=AAAA",
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		Signers:          []models.MSigner{{AccountID: account, KeyWeight: 1}},
		SignedBy:         []string{},
		SourceAccountIDs: []string{account},
		Threshold:        1,
	}
	p.open = append(p.open, req)
	p.next++
	p.publish(stream.EventNameNew, req)
}

func (p *publisher) publish(eventName string, req models.MSignatureRequest) {
	reached, err := p.stub.Publish(eventName, req)
	if err != nil {
		p.logger.Error("Publish failed: %v", err)
		return
	}
	p.logger.Debug("Published %s %s to %d streams", eventName, req.Hash[:8], reached)
}
