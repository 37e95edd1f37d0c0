// Package stream keeps a live feed of signature-request events from a
// multi-signature coordinator.
//
// A Subscription owns at most one transport connection at a time and moves
// through an explicit state machine:
//
//	IDLE ──▶ CONNECTING ──opened──▶ OPEN
//	              │                  │
//	              └──── error ───────┴──▶ ERROR_RECOVERY
//	                                         ├─ offline ──▶ WAITING_FOR_ONLINE ── online ──▶ CONNECTING
//	                                         ├─ closed ───▶ RECONNECT_SCHEDULED ── timer ──▶ CONNECTING
//	                                         └─ otherwise ▶ back to OPEN or CONNECTING
//
// Any state goes to CLOSED on unsubscribe, which closes the connection, stops
// the reconnect timer and drops the online listener. CLOSED is terminal and
// closes the events channel.
//
// Transition is a pure function so the policy can be tested without any
// transport; Subscription executes the actions it returns from a single
// goroutine.
//
// Events are delivered in server order within one connection. Nothing is
// guaranteed across reconnects: a request may be announced again as new, so
// consumers should apply events by request hash.
package stream
