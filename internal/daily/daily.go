// Package daily arms a once-a-day dispatch alarm at a configured wall-clock
// time. When the alarm fires while the transport is offline, the fire is
// recorded and recovered on the next connect.
package daily

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// DefaultTimezone is the location daily times are interpreted in unless
// the config overrides it.
const DefaultTimezone = "America/Sao_Paulo"

var reHHMM = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// ParseHHMM validates a 24h wall-clock time and returns its components.
func ParseHHMM(s string) (hour, minute int, err error) {
	m := reHHMM.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid daily time %q (use HH:MM, 24h clock)", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

type Config struct {
	// Time is the daily fire time as HH:MM. Empty disables the alarm.
	Time string
	// Timezone names the location Time is interpreted in.
	Timezone string
}

func (c Config) Validate() error {
	if c.Time == "" {
		return nil
	}
	_, _, err := ParseHHMM(c.Time)
	return err
}

// Enabled reports whether a daily time is configured.
func (c Config) Enabled() bool { return c.Time != "" }

// Trigger owns the daily alarm. Fires are delivered through the fire
// callback only while connected() reports true; otherwise the fire is
// latched and TakeMissed hands it to the connection manager later.
type Trigger struct {
	cfg       Config
	log       logx.Logger
	fire      func(reason string)
	connected func() bool

	loc *time.Location

	mu sync.Mutex
	c  *cron.Cron

	missed atomic.Bool
}

func New(cfg Config, fire func(reason string), connected func() bool, log logx.Logger) (*Trigger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Trigger{
		cfg:       cfg,
		log:       log,
		fire:      fire,
		connected: connected,
		loc:       loc,
	}, nil
}

// Start arms the alarm. A trigger with no configured time is a no-op.
func (t *Trigger) Start() error {
	if !t.cfg.Enabled() {
		t.log.Debug("no daily time configured; alarm disarmed")
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return nil
	}

	hour, minute, err := ParseHHMM(t.cfg.Time)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(t.loc))
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := c.AddFunc(spec, t.onFire); err != nil {
		return fmt.Errorf("arm daily alarm: %w", err)
	}
	c.Start()
	t.c = c

	t.log.Info("daily alarm armed",
		logx.String("at", t.cfg.Time),
		logx.String("tz", t.loc.String()),
		logx.Time("next", t.NextRun(time.Now())))
	return nil
}

// Stop disarms the alarm and waits for a fire in flight to finish.
func (t *Trigger) Stop() {
	t.mu.Lock()
	c := t.c
	t.c = nil
	t.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// NextRun returns the next fire instant after now, or the zero time when
// no daily time is configured.
func (t *Trigger) NextRun(now time.Time) time.Time {
	if !t.cfg.Enabled() {
		return time.Time{}
	}
	hour, minute, err := ParseHHMM(t.cfg.Time)
	if err != nil {
		return time.Time{}
	}
	local := now.In(t.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, t.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TakeMissed reports and consumes a fire that happened while disconnected.
func (t *Trigger) TakeMissed() bool {
	return t.missed.Swap(false)
}

func (t *Trigger) onFire() {
	if t.connected == nil || t.connected() {
		t.log.Info("daily alarm fired", logx.String("at", t.cfg.Time))
		t.fire("daily")
		return
	}
	t.missed.Store(true)
	t.log.Warn("daily alarm fired while disconnected; run deferred to next connect")
}
