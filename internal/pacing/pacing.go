// Package pacing computes the human-plausible delays between outbound
// sends: a short jittered delay after every message plus a longer "burst"
// pause after a randomized number of consecutive sends.
//
// A fixed cadence is trivially detectable; randomizing both the per-send
// delay and the burst threshold (once per run) approximates organic usage.
package pacing

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config holds the pacing bounds for one dispatch run. It is immutable for
// the lifetime of the run.
type Config struct {
	MinDelay      time.Duration
	MaxDelay      time.Duration
	MinBurstPause time.Duration
	MaxBurstPause time.Duration
	BurstSizeMin  int
	BurstSizeMax  int
}

// Default mirrors the original production cadence: 30s-2min between sends,
// 5-10min pause every 10-14 sends.
func Default() Config {
	return Config{
		MinDelay:      30 * time.Second,
		MaxDelay:      2 * time.Minute,
		MinBurstPause: 5 * time.Minute,
		MaxBurstPause: 10 * time.Minute,
		BurstSizeMin:  10,
		BurstSizeMax:  14,
	}
}

func (c Config) Validate() error {
	if c.MinDelay < 0 || c.MinBurstPause < 0 {
		return errors.New("pacing: delays must be >= 0")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("pacing: min_delay %v > max_delay %v", c.MinDelay, c.MaxDelay)
	}
	if c.MinBurstPause > c.MaxBurstPause {
		return fmt.Errorf("pacing: min_burst_pause %v > max_burst_pause %v", c.MinBurstPause, c.MaxBurstPause)
	}
	if c.BurstSizeMin < 1 {
		return errors.New("pacing: burst_size_min must be >= 1")
	}
	if c.BurstSizeMin > c.BurstSizeMax {
		return fmt.Errorf("pacing: burst_size_min %d > burst_size_max %d", c.BurstSizeMin, c.BurstSizeMax)
	}
	return nil
}

// Scheduler draws delays from a validated Config. It is stateless: the
// burst threshold is drawn by the caller once per run, not stored here.
type Scheduler struct {
	cfg Config
	rnd *rand.Rand
}

// New builds a Scheduler. rnd may be nil, in which case a time-seeded
// source is used; tests inject a fixed seed.
func New(cfg Config, rnd *rand.Rand) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{cfg: cfg, rnd: rnd}, nil
}

func (s *Scheduler) Config() Config { return s.cfg }

// NormalDelay returns the jittered delay applied between consecutive sends.
func (s *Scheduler) NormalDelay() time.Duration {
	return s.between(s.cfg.MinDelay, s.cfg.MaxDelay)
}

// BurstPause returns the longer pause inserted after a burst completes.
func (s *Scheduler) BurstPause() time.Duration {
	return s.between(s.cfg.MinBurstPause, s.cfg.MaxBurstPause)
}

// ChooseBurstThreshold draws the number of successful sends after which a
// burst pause is inserted. Drawn once per dispatch run; the same threshold
// repeats for the remainder of the run.
func (s *Scheduler) ChooseBurstThreshold() int {
	lo, hi := s.cfg.BurstSizeMin, s.cfg.BurstSizeMax
	if lo >= hi {
		return lo
	}
	return lo + s.rnd.Intn(hi-lo+1)
}

// between returns a uniform duration in [lo, hi], millisecond granularity.
func (s *Scheduler) between(lo, hi time.Duration) time.Duration {
	if lo >= hi {
		return lo
	}
	span := (hi - lo).Milliseconds()
	return lo + time.Duration(s.rnd.Int63n(span+1))*time.Millisecond
}
