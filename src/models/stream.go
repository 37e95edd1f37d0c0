package models

import "time"

// MStreamMessage is one server-sent event as read off the wire.
type MStreamMessage struct {
	Event string
	ID    string
	Data  []byte
}

// MStreamError is reported by a transport connection. Closed is set when the
// connection is gone for good and will deliver nothing more.
type MStreamError struct {
	Err    error
	Closed bool
}

// MTransitionRecord is one state change of a stream subscription.
type MTransitionRecord struct {
	Watch     string    `json:"watch"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// MDiscoveryDocument holds the fields read from a domain's stellar.toml.
type MDiscoveryDocument struct {
	MultisigEndpoint  string `toml:"MULTISIG_ENDPOINT"`
	NetworkPassphrase string `toml:"NETWORK_PASSPHRASE"`
}
