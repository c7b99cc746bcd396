package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RenanMaestrya/disparador-outbound/internal/transport"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// defaultBackoff is the reconnect ladder: escalates across consecutive
// failures, then holds at the last step. Reset on any successful connect.
var defaultBackoff = []time.Duration{10 * time.Second, 30 * time.Second, 2 * time.Minute}

// Manager drives the lifecycle reducer against a live transport: it
// consumes connectivity events, schedules reconnects with backoff, and
// requests dispatch runs.
type Manager struct {
	tr  transport.Transport
	log logx.Logger

	// trigger requests a dispatch run; it must not block (the app wraps
	// the engine in a goroutine and relies on the run guard for overlap).
	trigger func(reason string)
	// takeMissed reports (and consumes) a daily trigger that fired while
	// disconnected. Nil when no daily time is configured.
	takeMissed func() bool
	// persistCreds is invoked on a successful credential exchange.
	persistCreds func() error
	// dailyConfigured suppresses the dispatch-on-connect trigger; the
	// daily alarm owns run starts instead.
	dailyConfigured bool

	backoff []time.Duration

	mu       sync.Mutex
	state    State
	attempts int

	reconnecting atomic.Bool

	done chan struct{}
}

type Option func(*Manager)

// WithTrigger installs the dispatch trigger callback.
func WithTrigger(fn func(reason string)) Option {
	return func(m *Manager) { m.trigger = fn }
}

// WithDailyTrigger marks that a daily-time trigger owns run starts, and
// installs its missed-fire check.
func WithDailyTrigger(takeMissed func() bool) Option {
	return func(m *Manager) {
		m.dailyConfigured = true
		m.takeMissed = takeMissed
	}
}

// WithCredentialPersist installs the credential persistence hook.
func WithCredentialPersist(fn func() error) Option {
	return func(m *Manager) { m.persistCreds = fn }
}

// WithBackoff overrides the reconnect ladder (tests).
func WithBackoff(steps ...time.Duration) Option {
	return func(m *Manager) { m.backoff = steps }
}

func NewManager(tr transport.Transport, log logx.Logger, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		tr:      tr,
		log:     log,
		state:   StateDisconnected,
		backoff: defaultBackoff,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected is the cheap check the daily trigger uses before starting a run.
func (m *Manager) Connected() bool { return m.State() == StateConnected }

// Run consumes transport events until ctx is canceled or the event channel
// closes. It is the only goroutine that mutates the state.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	events := m.tr.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, ev)
		}
	}
}

// Done is closed when Run returns.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) handle(ctx context.Context, ev transport.Event) {
	m.mu.Lock()
	prev := m.state
	next, eff := Reduce(prev, ev)
	m.state = next
	if eff.ResetBackoff {
		m.attempts = 0
	}
	m.mu.Unlock()

	if prev != next {
		m.log.Info("connection state changed",
			logx.String("from", prev.String()),
			logx.String("to", next.String()),
			logx.String("event", string(ev.Kind)))
	}

	if ev.Kind == transport.EventCredentialChallenge && ev.QR != "" {
		// Rendering is the operator surface's job; we only announce it.
		m.log.Info("credential challenge pending: scan the QR code to pair")
	}

	if eff.Terminal {
		m.log.Error("session logged out; re-authentication required, no reconnect will be attempted")
		return
	}

	if eff.PersistCredentials && m.persistCreds != nil {
		if err := m.persistCreds(); err != nil {
			m.log.Warn("failed to persist credentials", logx.Err(err))
		}
	}

	if eff.TriggerDispatch {
		m.onConnected()
	}

	if eff.ScheduleReconnect {
		m.scheduleReconnect(ctx)
	}
}

func (m *Manager) onConnected() {
	if m.trigger == nil {
		return
	}
	if !m.dailyConfigured {
		// Immediate mode: every (re)connect requests a run; the engine's
		// run guard makes a flapping connection a no-op.
		m.trigger("connect")
		return
	}
	if m.takeMissed != nil && m.takeMissed() {
		m.trigger("daily-missed")
	}
}

// scheduleReconnect arms a single reconnect attempt after the current
// backoff step. A second disconnect while one attempt is pending is
// ignored; the pending attempt covers it.
func (m *Manager) scheduleReconnect(ctx context.Context) {
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	step := m.attempts
	if step >= len(m.backoff) {
		step = len(m.backoff) - 1
	}
	delay := m.backoff[step]
	m.attempts++
	m.mu.Unlock()

	m.log.Info("reconnect scheduled",
		logx.Duration("delay", delay),
		logx.Int("attempt", step+1))

	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			m.reconnecting.Store(false)
			return
		case <-t.C:
		}

		if m.State() == StateLoggedOut {
			m.reconnecting.Store(false)
			return
		}

		err := m.tr.Connect(ctx)
		// Release the guard before a possible retry; scheduleReconnect
		// re-acquires it.
		m.reconnecting.Store(false)
		if err != nil {
			m.log.Warn("reconnect attempt failed", logx.Err(err))
			m.scheduleReconnect(ctx)
		}
	}()
}
