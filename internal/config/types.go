package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/RenanMaestrya/disparador-outbound/internal/daily"
	"github.com/RenanMaestrya/disparador-outbound/internal/pacing"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// Config is the full on-disk configuration. All durations are Go duration
// strings (e.g. "30s", "2m"); empty means "use the default".
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Auth     AuthConfig     `json:"auth"`
	Storage  StorageConfig  `json:"storage"`
	Roster   RosterConfig   `json:"roster"`
	Dispatch DispatchConfig `json:"dispatch"`
	Daily    DailyConfig    `json:"daily"`
	Phone    *PhoneConfig   `json:"phone,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

func (c LoggingConfig) ToLogx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

// AuthConfig locates the persisted session credentials.
type AuthConfig struct {
	Dir string `json:"dir"`
}

// StorageConfig locates the send-history database.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RosterConfig locates the contact workbook.
//
// CreateExample is a pointer so "omitted" (default true) is distinguishable
// from an explicit false.
type RosterConfig struct {
	Path          string `json:"path"`
	CreateExample *bool  `json:"create_example,omitempty"`
}

func (c RosterConfig) CreateExampleEnabled() bool {
	return c.CreateExample == nil || *c.CreateExample
}

type DispatchConfig struct {
	MinDelay      string `json:"min_delay,omitempty"`
	MaxDelay      string `json:"max_delay,omitempty"`
	MinBurstPause string `json:"min_burst_pause,omitempty"`
	MaxBurstPause string `json:"max_burst_pause,omitempty"`
	BurstSizeMin  int    `json:"burst_size_min,omitempty"`
	BurstSizeMax  int    `json:"burst_size_max,omitempty"`

	// MaxPerMinute caps the overall send rate on top of the jittered
	// pacing. 0 disables the cap.
	MaxPerMinute int `json:"max_per_minute,omitempty"`

	// Window is the dedup span: recipients messaged within it are skipped.
	Window string `json:"window,omitempty"`

	DefaultMessage string `json:"default_message,omitempty"`

	Probe ProbeConfig `json:"probe"`
}

type ProbeConfig struct {
	Enabled  bool `json:"enabled"`
	FailOpen bool `json:"fail_open,omitempty"`
}

// Pacing resolves the duration strings against the production defaults.
func (c DispatchConfig) Pacing() (pacing.Config, error) {
	def := pacing.Default()
	p := pacing.Config{BurstSizeMin: c.BurstSizeMin, BurstSizeMax: c.BurstSizeMax}
	if p.BurstSizeMin == 0 {
		p.BurstSizeMin = def.BurstSizeMin
	}
	if p.BurstSizeMax == 0 {
		p.BurstSizeMax = def.BurstSizeMax
	}

	var err error
	if p.MinDelay, err = ParseDurationOrDefault("dispatch.min_delay", c.MinDelay, def.MinDelay); err != nil {
		return pacing.Config{}, err
	}
	if p.MaxDelay, err = ParseDurationOrDefault("dispatch.max_delay", c.MaxDelay, def.MaxDelay); err != nil {
		return pacing.Config{}, err
	}
	if p.MinBurstPause, err = ParseDurationOrDefault("dispatch.min_burst_pause", c.MinBurstPause, def.MinBurstPause); err != nil {
		return pacing.Config{}, err
	}
	if p.MaxBurstPause, err = ParseDurationOrDefault("dispatch.max_burst_pause", c.MaxBurstPause, def.MaxBurstPause); err != nil {
		return pacing.Config{}, err
	}
	if err := p.Validate(); err != nil {
		return pacing.Config{}, err
	}
	return p, nil
}

// DedupWindow resolves the window string; 0 means the store default.
func (c DispatchConfig) DedupWindow() (time.Duration, error) {
	return ParseDurationField("dispatch.window", c.Window)
}

type DailyConfig struct {
	// Time is the daily run start as HH:MM. Empty means "run on connect".
	Time     string `json:"time,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

func (c DailyConfig) ToDaily() daily.Config {
	return daily.Config{Time: c.Time, Timezone: c.Timezone}
}

// PhoneConfig overrides the number normalization tables. Omit the whole
// section to use the built-in Brazilian defaults.
type PhoneConfig struct {
	Suffix         string   `json:"suffix,omitempty"`
	ValidDDDs      []string `json:"valid_ddds,omitempty"`
	NinthDigitDDDs []string `json:"ninth_digit_ddds,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Roster.Path == "" {
		return errors.New("roster.path is required")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if c.Auth.Dir == "" {
		return errors.New("auth.dir is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := c.Dispatch.Pacing(); err != nil {
		return err
	}
	if _, err := c.Dispatch.DedupWindow(); err != nil {
		return err
	}
	if c.Dispatch.MaxPerMinute < 0 {
		return errors.New("dispatch.max_per_minute must be >= 0")
	}
	if err := c.Daily.ToDaily().Validate(); err != nil {
		return err
	}
	if c.Daily.Timezone != "" {
		if _, err := time.LoadLocation(c.Daily.Timezone); err != nil {
			return fmt.Errorf("daily.timezone: %w", err)
		}
	}
	return nil
}
