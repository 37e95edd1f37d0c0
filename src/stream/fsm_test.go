package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTransition walks every rule of the state machine.
func TestTransition(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		from    State
		in      Input
		to      State
		actions []Action
	}{
		{
			name:    "subscribe with accounts connects",
			from:    StateIdle,
			in:      Input{Kind: InputSubscribe, HasAccounts: true},
			to:      StateConnecting,
			actions: []Action{ActionOpenConnection},
		},
		{
			name:    "subscribe without accounts closes",
			from:    StateIdle,
			in:      Input{Kind: InputSubscribe},
			to:      StateClosed,
			actions: []Action{ActionCloseEvents},
		},
		{
			name:    "opened",
			from:    StateConnecting,
			in:      Input{Kind: InputOpened},
			to:      StateOpen,
			actions: []Action{ActionResetBackoff},
		},
		{
			name:    "error while connecting",
			from:    StateConnecting,
			in:      Input{Kind: InputTransportError, Err: boom},
			to:      StateErrorRecovery,
			actions: []Action{ActionReportError},
		},
		{
			name:    "error while open",
			from:    StateOpen,
			in:      Input{Kind: InputTransportError, Err: boom},
			to:      StateErrorRecovery,
			actions: []Action{ActionReportError},
		},
		{
			name:    "offline wins over closed",
			from:    StateErrorRecovery,
			in:      Input{Kind: InputAssessed, Online: false, Closed: true},
			to:      StateWaitingForOnline,
			actions: []Action{ActionDetachErrors, ActionCloseConnection, ActionAwaitOnline},
		},
		{
			name:    "closed while online schedules reconnect",
			from:    StateErrorRecovery,
			in:      Input{Kind: InputAssessed, Online: true, Closed: true},
			to:      StateReconnectScheduled,
			actions: []Action{ActionDetachErrors, ActionCloseConnection, ActionScheduleReconnect},
		},
		{
			name: "transient error on an open connection",
			from: StateErrorRecovery,
			in:   Input{Kind: InputAssessed, Online: true, Opened: true},
			to:   StateOpen,
		},
		{
			name: "transient error before opening",
			from: StateErrorRecovery,
			in:   Input{Kind: InputAssessed, Online: true},
			to:   StateConnecting,
		},
		{
			name:    "reconnect timer fires",
			from:    StateReconnectScheduled,
			in:      Input{Kind: InputReconnectDue},
			to:      StateConnecting,
			actions: []Action{ActionCancelReconnect, ActionOpenConnection},
		},
		{
			name:    "network comes back",
			from:    StateWaitingForOnline,
			in:      Input{Kind: InputBackOnline},
			to:      StateConnecting,
			actions: []Action{ActionCancelAwaitOnline, ActionOpenConnection},
		},
		{
			name:    "unsubscribe while waiting for network",
			from:    StateWaitingForOnline,
			in:      Input{Kind: InputUnsubscribe},
			to:      StateClosed,
			actions: teardown,
		},
		{
			name:    "unsubscribe while idle",
			from:    StateIdle,
			in:      Input{Kind: InputUnsubscribe},
			to:      StateClosed,
			actions: teardown,
		},
		{
			name: "closed ignores everything",
			from: StateClosed,
			in:   Input{Kind: InputUnsubscribe},
			to:   StateClosed,
		},
		{
			name: "stale timer after going back online",
			from: StateConnecting,
			in:   Input{Kind: InputReconnectDue},
			to:   StateConnecting,
		},
		{
			name: "online notice while scheduled",
			from: StateReconnectScheduled,
			in:   Input{Kind: InputBackOnline},
			to:   StateReconnectScheduled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, actions := Transition(tt.from, tt.in)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.actions, actions)
		})
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "WAITING_FOR_ONLINE", StateWaitingForOnline.String())
	assert.Equal(t, "RECONNECT_SCHEDULED", StateReconnectScheduled.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "await-online", ActionAwaitOnline.String())
}
