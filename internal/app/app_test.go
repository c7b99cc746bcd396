package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RenanMaestrya/disparador-outbound/internal/lifecycle"
	"github.com/RenanMaestrya/disparador-outbound/internal/roster"
	"github.com/RenanMaestrya/disparador-outbound/internal/tracking"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := `
logging:
  level: error
  console: false
  file: {enabled: false, path: ""}
auth: {dir: "` + filepath.Join(dir, "auth") + `"}
storage: {path: "` + filepath.Join(dir, "history.db") + `"}
roster: {path: "` + filepath.Join(dir, "contatos.xlsx") + `"}
dispatch:
  min_delay: 1ms
  max_delay: 2ms
  min_burst_pause: 1ms
  max_burst_pause: 2ms
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewCreatesExampleRosterAndStops(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	_, err := New(cfgPath)
	if !errors.Is(err, ErrRosterCreated) {
		t.Fatalf("New without workbook = %v, want ErrRosterCreated", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "contatos.xlsx")); err != nil {
		t.Fatalf("example workbook was not written: %v", err)
	}
}

func TestDispatchRunsOnConnect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	if err := roster.CreateExample(filepath.Join(dir, "contatos.xlsx")); err != nil {
		t.Fatalf("CreateExample: %v", err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The example workbook carries a daily start time; force the
	// immediate-on-connect path so the test does not wait for 09:00.
	a.alarm = nil
	a.conn = lifecycle.NewManager(a.tr, logx.Nop(), lifecycle.WithTrigger(a.TriggerRun))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	// The dry-run transport connects instantly; the example roster has 3
	// valid contacts, all of which should be recorded.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := a.History().Stats(ctx, tracking.DefaultWindow)
		if err == nil && stats.CountWithinWindow == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	stats, _ := a.History().Stats(ctx, tracking.DefaultWindow)
	t.Fatalf("sends recorded = %d, want 3", stats.CountWithinWindow)
}

func TestStopInterruptsInFlightRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := `
logging:
  level: error
  console: false
  file: {enabled: false, path: ""}
auth: {dir: "` + filepath.Join(dir, "auth") + `"}
storage: {path: "` + filepath.Join(dir, "history.db") + `"}
roster: {path: "` + filepath.Join(dir, "contatos.xlsx") + `"}
dispatch:
  min_delay: 1h
  max_delay: 1h
  min_burst_pause: 2h
  max_burst_pause: 2h
`
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := roster.CreateExample(filepath.Join(dir, "contatos.xlsx")); err != nil {
		t.Fatalf("CreateExample: %v", err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.alarm = nil
	a.conn = lifecycle.NewManager(a.tr, logx.Nop(), lifecycle.WithTrigger(a.TriggerRun))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for the run to send its first message and enter the hour-long
	// pacing sleep.
	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, err := a.History().Stats(context.Background(), tracking.DefaultWindow)
		if err == nil && stats.CountWithinWindow >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run never sent its first message")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked behind the in-flight run's pacing sleep")
	}
}

func TestSecondRunSkipsDuplicates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	if err := roster.CreateExample(filepath.Join(dir, "contatos.xlsx")); err != nil {
		t.Fatalf("CreateExample: %v", err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop()

	ctx := context.Background()
	a.runOnce(ctx, "test")
	stats, err := a.History().Stats(ctx, tracking.DefaultWindow)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CountWithinWindow != 3 {
		t.Fatalf("first run recorded %d sends, want 3", stats.CountWithinWindow)
	}
	first := stats.LastSentAt

	a.runOnce(ctx, "test")
	stats, err = a.History().Stats(ctx, tracking.DefaultWindow)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CountWithinWindow != 3 {
		t.Fatalf("second run changed record count to %d", stats.CountWithinWindow)
	}
	if stats.LastSentAt.After(first) {
		t.Fatal("second run re-sent inside the dedup window")
	}
}
