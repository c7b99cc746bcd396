// Package dispatch drives the outbound send loop: it consumes a contact
// queue in order, consults the tracking store, paces sends, and survives
// per-recipient failures while aborting cleanly on connectivity loss.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/RenanMaestrya/disparador-outbound/internal/pacing"
	"github.com/RenanMaestrya/disparador-outbound/internal/phone"
	"github.com/RenanMaestrya/disparador-outbound/internal/roster"
	"github.com/RenanMaestrya/disparador-outbound/internal/tracking"
	"github.com/RenanMaestrya/disparador-outbound/internal/transport"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// ErrRunInProgress is returned when a trigger fires while a run is active.
// The trigger is a no-op; at most one run executes at a time.
var ErrRunInProgress = errors.New("dispatch: run already in progress")

// DefaultMessage is used when the workbook has no message pool.
const DefaultMessage = "Olá! Esta é uma mensagem de teste do disparador automático."

type ProbeConfig struct {
	// Enabled turns on the pre-send existence probe.
	Enabled bool
	// FailOpen sends to the unverified original address when the probe
	// itself errors. Default is fail-closed: the contact is counted as
	// failed instead of messaging an address that was never validated.
	FailOpen bool
}

type Config struct {
	Pacing pacing.Config
	// Window is the dedup span consulted in the tracking store.
	Window time.Duration
	// DefaultMessage overrides DefaultMessage when the pool is empty.
	DefaultMessage string
	// MaxPerMinute is a hard ceiling on send rate, independent of the
	// jittered pacing. 0 disables it.
	MaxPerMinute int
	Probe        ProbeConfig
}

// Engine executes dispatch runs. Safe for concurrent triggers: the run
// guard rejects overlap.
type Engine struct {
	cfg   Config
	tr    transport.Transport
	store tracking.Store
	norm  *phone.Normalizer
	log   logx.Logger
	rnd   *rand.Rand

	limiter *rate.Limiter

	runCh chan struct{} // 1-slot run guard

	// sleep is the pacing wait; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, tr transport.Transport, store tracking.Store, norm *phone.Normalizer, log logx.Logger, rnd *rand.Rand) (*Engine, error) {
	if err := cfg.Pacing.Validate(); err != nil {
		return nil, err
	}
	if cfg.Window <= 0 {
		cfg.Window = tracking.DefaultWindow
	}
	if cfg.DefaultMessage == "" {
		cfg.DefaultMessage = DefaultMessage
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		cfg:   cfg,
		tr:    tr,
		store: store,
		norm:  norm,
		log:   log,
		rnd:   rnd,
		runCh: make(chan struct{}, 1),
		sleep: sleepCtx,
	}
	e.runCh <- struct{}{}
	if cfg.MaxPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxPerMinute)/60.0), 1)
	}
	return e, nil
}

// Report is produced by every run, completed or aborted.
type Report struct {
	RunID            string
	Sent             int
	SkippedDuplicate int
	SkippedInvalid   int
	Failed           int
	Aborted          bool
	Reason           string

	StartedAt  time.Time
	FinishedAt time.Time
}

const (
	ReasonCompleted = "completed"
	ReasonTransient = "transient-disconnect"
	ReasonCanceled  = "canceled"
)

// Run consumes queue strictly in order. A concurrent call while another run
// is active returns ErrRunInProgress without side effects.
//
// Failure policy: a transient transport failure aborts the loop, leaving
// the remaining queue unsent and eligible for the next run; per-recipient
// failures are logged and the loop continues.
func (e *Engine) Run(ctx context.Context, queue []roster.Contact, messages []string) (Report, error) {
	select {
	case <-e.runCh:
	default:
		return Report{}, ErrRunInProgress
	}
	defer func() { e.runCh <- struct{}{} }()

	rep := Report{RunID: newRunID(), StartedAt: time.Now(), Reason: ReasonCompleted}
	log := e.log.With(logx.String("run", rep.RunID))

	sched, err := pacing.New(e.cfg.Pacing, e.rnd)
	if err != nil {
		// Config was validated in New; a failure here means it was
		// mutated out from under us.
		return rep, err
	}
	threshold := sched.ChooseBurstThreshold()

	log.Info("dispatch run started",
		logx.Int("queued", len(queue)),
		logx.Int("messages", len(messages)),
		logx.Int("burst_threshold", threshold))

loop:
	for i, contact := range queue {
		recipient, err := e.norm.Normalize(contact.Phone)
		if err != nil {
			rep.SkippedInvalid++
			log.Warn("skipping contact: invalid phone",
				logx.String("name", contact.Name), logx.Err(err))
			continue
		}

		dup, err := e.store.HasSentWithin(ctx, recipient, e.cfg.Window)
		if err != nil {
			// Fail open: a broken store must not block delivery.
			log.Warn("dedup check failed; assuming not sent",
				logx.String("recipient", recipient), logx.Err(err))
		}
		if dup {
			rep.SkippedDuplicate++
			log.Debug("skipping contact: already sent within window",
				logx.String("name", contact.Name),
				logx.String("recipient", recipient))
			continue
		}

		if e.cfg.Probe.Enabled {
			resolved, ok, err := e.probe(ctx, recipient, log)
			if err != nil {
				if transport.IsTransient(err) {
					rep.Failed++
					rep.Aborted = true
					rep.Reason = ReasonTransient
					log.Warn("run aborted: transport disconnected during probe", logx.Err(err))
					break loop
				}
				rep.Failed++
				continue
			}
			if !ok {
				rep.Failed++
				log.Warn("skipping contact: recipient does not exist",
					logx.String("name", contact.Name),
					logx.String("recipient", recipient))
				continue
			}
			recipient = resolved
		}

		msg := e.pickMessage(messages)

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				rep.Aborted = true
				rep.Reason = ReasonCanceled
				break loop
			}
		}

		if err := e.tr.SendText(ctx, recipient, msg); err != nil {
			rep.Failed++
			if transport.IsTransient(err) {
				rep.Aborted = true
				rep.Reason = ReasonTransient
				log.Warn("run aborted: transport disconnected",
					logx.Int("remaining", len(queue)-i-1), logx.Err(err))
				break loop
			}
			log.Warn("send failed",
				logx.String("name", contact.Name),
				logx.String("recipient", recipient), logx.Err(err))
			continue
		}

		rep.Sent++
		log.Info("sent",
			logx.String("name", contact.Name),
			logx.String("recipient", recipient),
			logx.Int("sent", rep.Sent))

		// A write failure never un-sends; the next run may re-contact
		// this recipient, which is the lesser harm.
		if err := e.store.MarkSent(ctx, recipient, contact.Name, msg); err != nil {
			log.Warn("failed to record send", logx.String("recipient", recipient), logx.Err(err))
		}

		var pause time.Duration
		switch {
		case rep.Sent%threshold == 0:
			pause = sched.BurstPause()
			log.Info("burst pause", logx.Duration("pause", pause), logx.Int("sent", rep.Sent))
		case i < len(queue)-1:
			pause = sched.NormalDelay()
			log.Debug("pacing delay", logx.Duration("delay", pause))
		}
		if pause > 0 {
			if err := e.sleep(ctx, pause); err != nil {
				rep.Aborted = true
				rep.Reason = ReasonCanceled
				break loop
			}
		}
	}

	if err := ctx.Err(); err != nil && !rep.Aborted {
		rep.Aborted = true
		rep.Reason = ReasonCanceled
	}

	rep.FinishedAt = time.Now()
	log.Info("dispatch run finished",
		logx.String("reason", rep.Reason),
		logx.Int("sent", rep.Sent),
		logx.Int("skipped_duplicate", rep.SkippedDuplicate),
		logx.Int("skipped_invalid", rep.SkippedInvalid),
		logx.Int("failed", rep.Failed),
		logx.Bool("aborted", rep.Aborted))
	return rep, nil
}

// probe resolves the deliverable address for recipient, trying ninth-digit
// variants when the canonical form does not exist.
func (e *Engine) probe(ctx context.Context, recipient string, log logx.Logger) (string, bool, error) {
	resolved, exists, err := e.tr.CheckRecipient(ctx, recipient)
	if err != nil {
		if transport.IsTransient(err) {
			return "", false, err
		}
		if e.cfg.Probe.FailOpen {
			log.Warn("probe failed; sending to unverified address",
				logx.String("recipient", recipient), logx.Err(err))
			return recipient, true, nil
		}
		log.Warn("probe failed; contact skipped (fail-closed)",
			logx.String("recipient", recipient), logx.Err(err))
		return "", false, err
	}
	if exists {
		return orDefault(resolved, recipient), true, nil
	}

	for _, variant := range e.norm.Variants(recipient) {
		resolved, exists, err = e.tr.CheckRecipient(ctx, variant)
		if err != nil {
			if transport.IsTransient(err) {
				return "", false, err
			}
			continue
		}
		if exists {
			log.Info("probe resolved ninth-digit variant",
				logx.String("original", recipient),
				logx.String("variant", variant))
			return orDefault(resolved, variant), true, nil
		}
	}
	return "", false, nil
}

func (e *Engine) pickMessage(pool []string) string {
	if len(pool) == 0 {
		return e.cfg.DefaultMessage
	}
	if e.rnd != nil {
		return pool[e.rnd.Intn(len(pool))]
	}
	return pool[rand.Intn(len(pool))]
}

func newRunID() string {
	return fmt.Sprintf("run-%s", uuid.NewString()[:8])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
