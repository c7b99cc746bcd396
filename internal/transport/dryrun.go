package transport

import (
	"context"
	"sync"
	"time"

	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// DryRun is a loopback Transport: every send succeeds instantly and is only
// logged. It lets operators rehearse a campaign (pacing, dedup, reporting)
// without a live messaging session.
type DryRun struct {
	log logx.Logger

	mu     sync.Mutex
	events chan Event
	closed bool

	// SendDelay simulates per-send transport latency.
	SendDelay time.Duration
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log, events: make(chan Event, 8)}
}

func (d *DryRun) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDisconnected
	}
	select {
	case d.events <- Event{Kind: EventOpen}:
	default:
	}
	return nil
}

func (d *DryRun) Events() <-chan Event { return d.events }

func (d *DryRun) SendText(ctx context.Context, recipient, text string) error {
	if d.SendDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.SendDelay):
		}
	}
	d.log.Info("dry-run send",
		logx.String("recipient", recipient),
		logx.Int("chars", len(text)))
	return nil
}

func (d *DryRun) CheckRecipient(ctx context.Context, recipient string) (string, bool, error) {
	return recipient, true, nil
}

func (d *DryRun) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	return nil
}
