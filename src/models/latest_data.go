package models

// -----------------------------------------------------------------------------
// Relay server state
// -----------------------------------------------------------------------------

// MWatchState is what the relay serves for one watch.
type MWatchState struct {
	Watch       string              `json:"watch"`
	ServiceURL  string              `json:"service_url"`
	StreamState string              `json:"stream_state"`
	Requests    []MSignatureRequest `json:"requests"`
}

// MRelayMessage is pushed to websocket clients. Type is "INITIAL",
// "SNAPSHOT" or "EVENT".
type MRelayMessage struct {
	Type    string        `json:"type"`
	Watches []MWatchState `json:"watches,omitempty"`
	Event   *MWatchEvent  `json:"event,omitempty"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command string   `json:"command"`
	Watches []string `json:"watches"`
}
