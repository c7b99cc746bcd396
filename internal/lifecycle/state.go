// Package lifecycle owns the transport connection state machine.
//
// The transition logic is a pure reducer (state x event -> state x effects)
// so it can be tested without a live transport; the Manager applies the
// effects (reconnect timers, credential persistence, dispatch triggers).
package lifecycle

import (
	"github.com/RenanMaestrya/disparador-outbound/internal/transport"
)

type State int

const (
	StateDisconnected State = iota
	// StateAwaitingCredential means a QR/credential challenge is
	// outstanding and the operator has to complete pairing.
	StateAwaitingCredential
	StateConnected
	// StateLoggedOut is terminal: the session was invalidated remotely
	// and no reconnect attempt can help until re-authentication.
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingCredential:
		return "awaiting-credential"
	case StateConnected:
		return "connected"
	case StateLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// Effects are the side effects a transition requests. The reducer never
// performs them.
type Effects struct {
	// PersistCredentials fires on a successful credential exchange.
	PersistCredentials bool
	// ScheduleReconnect fires on a non-terminal disconnect.
	ScheduleReconnect bool
	// ResetBackoff fires on any successful connect.
	ResetBackoff bool
	// TriggerDispatch fires on entering Connected; whether a run actually
	// starts is the Manager's policy (daily trigger, run guard).
	TriggerDispatch bool
	// Terminal marks the logged-out absorbing state.
	Terminal bool
}

// Reduce is total: every (state, event) pair yields a defined next state.
// StateLoggedOut absorbs everything.
func Reduce(s State, ev transport.Event) (State, Effects) {
	if s == StateLoggedOut {
		return StateLoggedOut, Effects{Terminal: true}
	}

	switch ev.Kind {
	case transport.EventCredentialChallenge:
		return StateAwaitingCredential, Effects{}

	case transport.EventOpen:
		eff := Effects{ResetBackoff: true, TriggerDispatch: true}
		if s == StateAwaitingCredential {
			eff.PersistCredentials = true
		}
		return StateConnected, eff

	case transport.EventClosed:
		if ev.Cause == transport.CauseLoggedOut {
			return StateLoggedOut, Effects{Terminal: true}
		}
		return StateDisconnected, Effects{ScheduleReconnect: true}

	default:
		return s, Effects{}
	}
}
