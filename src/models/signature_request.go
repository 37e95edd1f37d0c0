package models

// -----------------------------------------------------------------------------
// Signature requests as served by a multi-signature coordinator.
// -----------------------------------------------------------------------------

type SignatureRequestStatus string

const (
	StatusPending   SignatureRequestStatus = "pending"
	StatusReady     SignatureRequestStatus = "ready"
	StatusSubmitted SignatureRequestStatus = "submitted"
	StatusFailed    SignatureRequestStatus = "failed"
)

// MSigner is one key allowed to sign for the request's source accounts.
type MSigner struct {
	AccountID string `json:"account_id"`
	KeyWeight int    `json:"key_weight"`
}

// MSignatureRequest is a transaction waiting for more signatures.
// Req is the web+stellar:tx URI carrying the transaction envelope.
type MSignatureRequest struct {
	Hash             string                 `json:"hash"`
	Req              string                 `json:"req"`
	Status           SignatureRequestStatus `json:"status"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at"`
	Signers          []MSigner              `json:"signers"`
	SignedBy         []string               `json:"signed_by"`
	SourceAccountIDs []string               `json:"source_account_ids,omitempty"`
	Threshold        int                    `json:"threshold,omitempty"`
}

// -----------------------------------------------------------------------------

type SignatureRequestEventKind string

const (
	EventNewSignatureRequest       SignatureRequestEventKind = "NewSignatureRequest"
	EventSignatureRequestUpdate    SignatureRequestEventKind = "SignatureRequestUpdate"
	EventSignatureRequestSubmitted SignatureRequestEventKind = "SignatureRequestSubmitted"
)

// MSignatureRequestEvent is one lifecycle event for a request.
type MSignatureRequestEvent struct {
	Kind             SignatureRequestEventKind `json:"type"`
	SignatureRequest MSignatureRequest         `json:"signatureRequest"`
}

// MWatchEvent tags an event with the watch that produced it. A snapshot
// notice sets Full and carries the whole request list in Snapshot instead
// of an Event. An empty Snapshot on a full notice clears the watch.
type MWatchEvent struct {
	Watch    string                 `json:"watch"`
	Event    MSignatureRequestEvent `json:"event"`
	Full     bool                   `json:"full"`
	Snapshot []MSignatureRequest    `json:"snapshot"`
}

func (e MWatchEvent) IsSnapshot() bool { return e.Full }
