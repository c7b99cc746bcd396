package daily

import (
	"testing"
	"time"

	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	valid := map[string][2]int{
		"00:00": {0, 0},
		"09:30": {9, 30},
		"9:05":  {9, 5},
		"23:59": {23, 59},
	}
	for in, want := range valid {
		h, m, err := ParseHHMM(in)
		if err != nil {
			t.Errorf("ParseHHMM(%q) error: %v", in, err)
			continue
		}
		if h != want[0] || m != want[1] {
			t.Errorf("ParseHHMM(%q) = %d:%d, want %d:%d", in, h, m, want[0], want[1])
		}
	}

	for _, in := range []string{"", "24:00", "12:60", "12", "12:5", "1230", "ab:cd", "12:30:00", "-1:30"} {
		if _, _, err := ParseHHMM(in); err == nil {
			t.Errorf("ParseHHMM(%q) accepted, want error", in)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("empty time should be valid (disabled): %v", err)
	}
	if err := (Config{Time: "09:00"}).Validate(); err != nil {
		t.Fatalf("Validate(09:00) = %v", err)
	}
	if err := (Config{Time: "25:00"}).Validate(); err == nil {
		t.Fatal("Validate(25:00) accepted, want error")
	}
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	tr, err := New(Config{Time: "09:00", Timezone: "America/Sao_Paulo"}, func(string) {}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	loc, _ := time.LoadLocation("America/Sao_Paulo")

	// Before the daily time: fires today.
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)
	next := tr.NextRun(now)
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("NextRun(%v) = %v, want %v", now, next, want)
	}

	// After the daily time: rolls to tomorrow.
	now = time.Date(2026, 3, 10, 9, 0, 1, 0, loc)
	next = tr.NextRun(now)
	want = time.Date(2026, 3, 11, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("NextRun(%v) = %v, want %v", now, next, want)
	}
}

func TestNextRunDisabled(t *testing.T) {
	t.Parallel()

	tr, err := New(Config{}, func(string) {}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tr.NextRun(time.Now()); !got.IsZero() {
		t.Fatalf("NextRun with no daily time = %v, want zero", got)
	}
}

func TestFireWhileConnected(t *testing.T) {
	t.Parallel()

	fired := 0
	tr, err := New(Config{Time: "09:00"}, func(reason string) {
		fired++
		if reason != "daily" {
			t.Errorf("fire reason = %q, want %q", reason, "daily")
		}
	}, func() bool { return true }, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr.onFire()
	if fired != 1 {
		t.Fatalf("fire count = %d, want 1", fired)
	}
	if tr.TakeMissed() {
		t.Fatal("connected fire must not latch as missed")
	}
}

func TestFireWhileDisconnectedLatchesOnce(t *testing.T) {
	t.Parallel()

	fired := 0
	tr, err := New(Config{Time: "09:00"}, func(string) { fired++ }, func() bool { return false }, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr.onFire()
	tr.onFire()
	if fired != 0 {
		t.Fatalf("fire count = %d, want 0 while disconnected", fired)
	}
	if !tr.TakeMissed() {
		t.Fatal("missed fire was not latched")
	}
	if tr.TakeMissed() {
		t.Fatal("TakeMissed must consume the latch")
	}
}

func TestStartRejectsUnknownTimezone(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Time: "09:00", Timezone: "Mars/Olympus"}, func(string) {}, nil, logx.Nop()); err == nil {
		t.Fatal("New accepted an unknown timezone")
	}
}

func TestStartStopDisabled(t *testing.T) {
	t.Parallel()

	tr, err := New(Config{}, func(string) {}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Start with no daily time: %v", err)
	}
	tr.Stop()
}
