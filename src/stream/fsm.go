package stream

import "fmt"

// State of a Subscription.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateErrorRecovery
	StateReconnectScheduled
	StateWaitingForOnline
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:               "IDLE",
	StateConnecting:         "CONNECTING",
	StateOpen:               "OPEN",
	StateErrorRecovery:      "ERROR_RECOVERY",
	StateReconnectScheduled: "RECONNECT_SCHEDULED",
	StateWaitingForOnline:   "WAITING_FOR_ONLINE",
	StateClosed:             "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// InputKind names what happened to a Subscription.
type InputKind int

const (
	InputSubscribe InputKind = iota
	InputOpened
	InputTransportError
	InputAssessed
	InputReconnectDue
	InputBackOnline
	InputUnsubscribe
)

// Input is one event fed to Transition.
type Input struct {
	Kind InputKind

	// InputSubscribe
	HasAccounts bool

	// InputTransportError
	Err error

	// InputAssessed: what was observed about the failed connection.
	Online bool
	Closed bool
	Opened bool
}

// Action is a side effect the Subscription carries out after a transition.
type Action int

const (
	ActionOpenConnection Action = iota
	ActionCloseConnection
	ActionDetachErrors
	ActionReportError
	ActionScheduleReconnect
	ActionCancelReconnect
	ActionAwaitOnline
	ActionCancelAwaitOnline
	ActionResetBackoff
	ActionCloseEvents
)

var actionNames = map[Action]string{
	ActionOpenConnection:    "open-connection",
	ActionCloseConnection:   "close-connection",
	ActionDetachErrors:      "detach-errors",
	ActionReportError:       "report-error",
	ActionScheduleReconnect: "schedule-reconnect",
	ActionCancelReconnect:   "cancel-reconnect",
	ActionAwaitOnline:       "await-online",
	ActionCancelAwaitOnline: "cancel-await-online",
	ActionResetBackoff:      "reset-backoff",
	ActionCloseEvents:       "close-events",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// teardown releases everything a subscription may hold. Each action is a
// no-op when there is nothing to release.
var teardown = []Action{
	ActionCancelReconnect,
	ActionCancelAwaitOnline,
	ActionCloseConnection,
	ActionCloseEvents,
}

// Transition returns the next state and the actions to run. Inputs that do
// not apply to the current state leave it unchanged with no actions.
func Transition(state State, in Input) (State, []Action) {
	if state == StateClosed {
		return StateClosed, nil
	}
	if in.Kind == InputUnsubscribe {
		return StateClosed, teardown
	}

	switch state {
	case StateIdle:
		if in.Kind == InputSubscribe {
			if !in.HasAccounts {
				return StateClosed, []Action{ActionCloseEvents}
			}
			return StateConnecting, []Action{ActionOpenConnection}
		}

	case StateConnecting:
		switch in.Kind {
		case InputOpened:
			return StateOpen, []Action{ActionResetBackoff}
		case InputTransportError:
			return StateErrorRecovery, []Action{ActionReportError}
		}

	case StateOpen:
		if in.Kind == InputTransportError {
			return StateErrorRecovery, []Action{ActionReportError}
		}

	case StateErrorRecovery:
		if in.Kind == InputAssessed {
			switch {
			case !in.Online:
				return StateWaitingForOnline, []Action{ActionDetachErrors, ActionCloseConnection, ActionAwaitOnline}
			case in.Closed:
				return StateReconnectScheduled, []Action{ActionDetachErrors, ActionCloseConnection, ActionScheduleReconnect}
			case in.Opened:
				return StateOpen, nil
			default:
				return StateConnecting, nil
			}
		}

	case StateReconnectScheduled:
		if in.Kind == InputReconnectDue {
			return StateConnecting, []Action{ActionCancelReconnect, ActionOpenConnection}
		}

	case StateWaitingForOnline:
		if in.Kind == InputBackOnline {
			return StateConnecting, []Action{ActionCancelAwaitOnline, ActionOpenConnection}
		}
	}

	return state, nil
}
