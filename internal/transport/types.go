// Package transport defines the contract between the dispatcher and the
// underlying messaging client.
//
// The wire protocol is out of scope here: a concrete WhatsApp client plugs
// in behind Transport. The dispatcher only needs point sends, an existence
// probe, and the connectivity event stream that drives the connection
// lifecycle.
package transport

import (
	"context"
	"errors"
)

type EventKind string

const (
	// EventOpen signals an established session.
	EventOpen EventKind = "open"
	// EventClosed signals a dropped session; Cause distinguishes a
	// transient drop from a terminal logout.
	EventClosed EventKind = "closed"
	// EventCredentialChallenge signals that the transport is waiting for
	// the operator to complete a pairing step (QR scan).
	EventCredentialChallenge EventKind = "credential-challenge"
)

type CloseCause string

const (
	CauseUnknown   CloseCause = ""
	CauseLoggedOut CloseCause = "logged-out"
)

type Event struct {
	Kind  EventKind
	Cause CloseCause
	// QR carries the pairing payload for credential-challenge events.
	// Rendering it is the operator surface's problem, not ours.
	QR string
}

var (
	// ErrDisconnected marks a transient connectivity loss. It aborts the
	// current dispatch run; remaining contacts stay eligible for the next.
	ErrDisconnected = errors.New("transport: disconnected")
	// ErrRecipientRejected and ErrContentRejected are permanent for the
	// affected recipient only; the run continues.
	ErrRecipientRejected = errors.New("transport: recipient rejected")
	ErrContentRejected   = errors.New("transport: content rejected")
)

// IsTransient reports whether err should abort the dispatch loop rather
// than just fail the current recipient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrDisconnected)
}

// Transport is the capability-bearing messaging collaborator.
//
// Connect is asynchronous: it starts the session and reports progress via
// Events. Send errors are either transient (ErrDisconnected) or scoped to
// the recipient.
type Transport interface {
	Connect(ctx context.Context) error
	Events() <-chan Event

	SendText(ctx context.Context, recipient, text string) error

	// CheckRecipient probes whether recipient is addressable, returning
	// the resolved address (which may differ from the input when the
	// transport rewrites it) and whether it exists.
	CheckRecipient(ctx context.Context, recipient string) (resolved string, exists bool, err error)

	Close() error
}
