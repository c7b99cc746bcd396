// Package app wires the configuration, storage, transport, dispatch engine
// and connection lifecycle into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/RenanMaestrya/disparador-outbound/internal/auth"
	"github.com/RenanMaestrya/disparador-outbound/internal/config"
	"github.com/RenanMaestrya/disparador-outbound/internal/daily"
	"github.com/RenanMaestrya/disparador-outbound/internal/dispatch"
	"github.com/RenanMaestrya/disparador-outbound/internal/lifecycle"
	"github.com/RenanMaestrya/disparador-outbound/internal/phone"
	"github.com/RenanMaestrya/disparador-outbound/internal/roster"
	"github.com/RenanMaestrya/disparador-outbound/internal/tracking"
	"github.com/RenanMaestrya/disparador-outbound/internal/transport"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// ErrRosterCreated means no workbook existed, so an example one was written
// for the operator to fill in. The process should exit instead of messaging
// the example contacts.
var ErrRosterCreated = errors.New("app: example roster created; fill it in and restart")

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	creds  *auth.Store
	store  tracking.Store
	norm   *phone.Normalizer
	tr     transport.Transport
	engine *dispatch.Engine
	conn   *lifecycle.Manager
	alarm  *daily.Trigger

	// runCtx is the context Start hands to background work, including
	// dispatch runs: Stop cancels it, which aborts an in-flight run's
	// pacing sleep instead of waiting it out.
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*options)

type options struct {
	tr transport.Transport
}

// WithTransport overrides the transport. The default is the dry-run
// loopback, which logs sends instead of delivering them.
func WithTransport(tr transport.Transport) Option {
	return func(o *options) { o.tr = tr }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfgm.SetLogger(logx.NewConsole("INFO").With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.ToLogx())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: log, logs: logSvc}
	if err := a.build(cfg, o); err != nil {
		a.closeOnInitError()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, o options) error {
	var err error
	a.creds, err = auth.NewStore(cfg.Auth.Dir, a.log.With(logx.String("comp", "auth")))
	if err != nil {
		return err
	}

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	a.store, err = tracking.Open(tracking.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, a.log.With(logx.String("comp", "tracking")))
	if err != nil {
		return err
	}

	a.norm = newNormalizer(cfg.Phone)

	data, err := a.ensureRoster(cfg)
	if err != nil {
		return err
	}

	a.tr = o.tr
	if a.tr == nil {
		a.tr = transport.NewDryRun(a.log.With(logx.String("comp", "transport")))
	}

	pcfg, err := cfg.Dispatch.Pacing()
	if err != nil {
		return err
	}
	window, err := cfg.Dispatch.DedupWindow()
	if err != nil {
		return err
	}
	a.engine, err = dispatch.New(dispatch.Config{
		Pacing:         pcfg,
		Window:         window,
		DefaultMessage: cfg.Dispatch.DefaultMessage,
		MaxPerMinute:   cfg.Dispatch.MaxPerMinute,
		Probe: dispatch.ProbeConfig{
			Enabled:  cfg.Dispatch.Probe.Enabled,
			FailOpen: cfg.Dispatch.Probe.FailOpen,
		},
	}, a.tr, a.store, a.norm, a.log.With(logx.String("comp", "dispatch")), nil)
	if err != nil {
		return err
	}

	// The config daily time wins; the workbook's Configurações sheet is
	// the fallback.
	dcfg := cfg.Daily.ToDaily()
	if dcfg.Time == "" && data.DailyStart != "" {
		dcfg.Time = data.DailyStart
	}

	connOpts := []lifecycle.Option{
		lifecycle.WithTrigger(a.TriggerRun),
		lifecycle.WithCredentialPersist(func() error {
			return a.creds.Put(auth.CredsFile, map[string]any{"paired": true})
		}),
	}
	if dcfg.Enabled() {
		a.alarm, err = daily.New(dcfg, a.TriggerRun,
			func() bool { return a.conn.Connected() },
			a.log.With(logx.String("comp", "daily")))
		if err != nil {
			return err
		}
		connOpts = append(connOpts, lifecycle.WithDailyTrigger(a.alarm.TakeMissed))
	}
	a.conn = lifecycle.NewManager(a.tr, a.log.With(logx.String("comp", "conn")), connOpts...)
	return nil
}

// ensureRoster loads the workbook, writing the example one first when the
// file does not exist yet.
func (a *App) ensureRoster(cfg *config.Config) (*roster.Data, error) {
	path := cfg.Roster.Path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if !cfg.Roster.CreateExampleEnabled() {
			return nil, fmt.Errorf("roster workbook %s not found", path)
		}
		if err := roster.CreateExample(path); err != nil {
			return nil, fmt.Errorf("create example roster: %w", err)
		}
		a.log.Info("example roster created", logx.String("path", path))
		return nil, ErrRosterCreated
	}
	return roster.Load(path)
}

func newNormalizer(pc *config.PhoneConfig) *phone.Normalizer {
	if pc == nil {
		return phone.New()
	}
	var opts []phone.Option
	if pc.Suffix != "" {
		opts = append(opts, phone.WithSuffix(pc.Suffix))
	}
	if len(pc.ValidDDDs) > 0 {
		opts = append(opts, phone.WithValidDDDs(pc.ValidDDDs...))
	}
	if len(pc.NinthDigitDDDs) > 0 {
		opts = append(opts, phone.WithNinthDigitDDDs(pc.NinthDigitDDDs...))
	}
	return phone.New(opts...)
}

// Start brings the background loops up and asks the transport for its first
// connection. It does not block; use Done to wait for the lifecycle loop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCtx = runCtx
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.conn.Run(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	if a.alarm != nil {
		if err := a.alarm.Start(); err != nil {
			cancel()
			return err
		}
	}

	if a.creds.HasCredentials() {
		a.log.Info("stored session found; resuming", logx.String("dir", a.creds.Dir()))
	} else {
		a.log.Info("no stored session; pairing will be required on connect",
			logx.String("dir", a.creds.Dir()))
	}

	if err := a.tr.Connect(runCtx); err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}
	return nil
}

// applyReload applies the hot-reloadable subset of the config: the logging
// setup. Pacing, storage and daily changes take effect on restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(cfg.Logging.ToLogx())
	a.log.Info("logging config applied",
		logx.String("level", cfg.Logging.Level),
		logx.Bool("console", cfg.Logging.Console))
}

// TriggerRun starts a dispatch run in the background. Overlapping triggers
// are absorbed by the engine's run guard; Stop cancels the run's context.
func (a *App) TriggerRun(reason string) {
	ctx := a.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runOnce(ctx, reason)
	}()
}

// runOnce re-reads the workbook so edits between runs apply, then hands the
// queue to the engine.
func (a *App) runOnce(ctx context.Context, reason string) {
	log := a.log.With(logx.String("trigger", reason))

	cfg := a.cfgm.Get()
	data, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		log.Error("dispatch skipped: roster unreadable",
			logx.String("path", cfg.Roster.Path), logx.Err(err))
		return
	}

	valid, invalid := roster.FilterValid(a.norm, data.Contacts, log)
	if len(invalid) > 0 {
		log.Warn("contacts with invalid numbers ignored", logx.Int("count", len(invalid)))
	}
	if len(valid) == 0 {
		log.Warn("dispatch skipped: no valid contacts in roster")
		return
	}

	rep, err := a.engine.Run(ctx, valid, data.Messages)
	if errors.Is(err, dispatch.ErrRunInProgress) {
		log.Debug("dispatch trigger ignored: run already in progress")
		return
	}
	if err != nil {
		log.Error("dispatch run failed", logx.Err(err))
		return
	}
	log.Info("dispatch run report",
		logx.String("run", rep.RunID),
		logx.String("reason", rep.Reason),
		logx.Int("sent", rep.Sent),
		logx.Int("skipped_duplicate", rep.SkippedDuplicate),
		logx.Int("skipped_invalid", rep.SkippedInvalid),
		logx.Int("failed", rep.Failed))
}

// Connection returns the lifecycle manager, mainly for the CLI status
// surface.
func (a *App) Connection() *lifecycle.Manager { return a.conn }

// Credentials exposes the auth store for the CLI maintenance flags.
func (a *App) Credentials() *auth.Store { return a.creds }

// History exposes the tracking store for the CLI maintenance flags.
func (a *App) History() tracking.Store { return a.store }

// Done is closed when the lifecycle event loop exits.
func (a *App) Done() <-chan struct{} { return a.conn.Done() }

// Stop tears everything down in reverse order of Start.
func (a *App) Stop() {
	if a.alarm != nil {
		a.alarm.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.tr != nil {
		_ = a.tr.Close()
	}
	a.wg.Wait()
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		a.logs.Close()
	}
}

func (a *App) closeOnInitError() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		a.logs.Close()
	}
}
