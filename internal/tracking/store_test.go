package tracking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

func openTestStore(t *testing.T, now *time.Time) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "envios.db")
	st, err := Open(Config{Path: path}, logx.Nop(), WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestHasSentWithinWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st := openTestStore(t, &now)
	ctx := context.Background()

	const r = "5511999887766@c.us"

	sent, err := st.HasSentWithin(ctx, r, DefaultWindow)
	if err != nil {
		t.Fatalf("HasSentWithin: %v", err)
	}
	if sent {
		t.Fatal("fresh store reports recipient as sent")
	}

	if err := st.MarkSent(ctx, r, "Joao", "ola"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if sent, _ := st.HasSentWithin(ctx, r, DefaultWindow); !sent {
		t.Fatal("recipient not reported as sent right after MarkSent")
	}

	// Inside the window.
	now = now.Add(23 * time.Hour)
	if sent, _ := st.HasSentWithin(ctx, r, DefaultWindow); !sent {
		t.Fatal("record expired before 24h elapsed")
	}

	// Past the window.
	now = now.Add(2 * time.Hour)
	if sent, _ := st.HasSentWithin(ctx, r, DefaultWindow); sent {
		t.Fatal("record still reported after the window elapsed")
	}
}

func TestMarkSentUpserts(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st := openTestStore(t, &now)
	ctx := context.Background()

	const r = "5521988776655@c.us"

	if err := st.MarkSent(ctx, r, "Maria", "first message"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	now = now.Add(time.Hour)
	if err := st.MarkSent(ctx, r, "Maria", "second message"); err != nil {
		t.Fatalf("MarkSent (second): %v", err)
	}

	stats, err := st.Stats(ctx, DefaultWindow)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CountWithinWindow != 1 {
		t.Fatalf("CountWithinWindow = %d, want 1 (upsert, not append)", stats.CountWithinWindow)
	}
	if !stats.LastSentAt.Equal(now) {
		t.Fatalf("LastSentAt = %v, want %v", stats.LastSentAt, now)
	}
}

func TestPruneOnlyRemovesExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st := openTestStore(t, &now)
	ctx := context.Background()

	if err := st.MarkSent(ctx, "5511999887766@c.us", "old", "m"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	now = now.Add(30 * time.Hour)
	if err := st.MarkSent(ctx, "5521988776655@c.us", "fresh", "m"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	removed, err := st.PruneOlderThan(ctx, DefaultWindow)
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	stats, err := st.Stats(ctx, DefaultWindow)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CountWithinWindow != 1 {
		t.Fatalf("CountWithinWindow = %d, want 1 after prune", stats.CountWithinWindow)
	}
}

func TestExcerptTruncation(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	_ = openTestStore(t, &now)

	long := make([]rune, 0, 150)
	for i := 0; i < 150; i++ {
		long = append(long, 'ã')
	}
	got := truncateExcerpt(string(long))
	if n := len([]rune(got)); n != excerptLimit {
		t.Fatalf("excerpt length = %d runes, want %d", n, excerptLimit)
	}

	short := "mensagem curta"
	if truncateExcerpt(short) != short {
		t.Fatal("short message should not be modified")
	}
}

func TestClearAll(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st := openTestStore(t, &now)
	ctx := context.Background()

	for _, r := range []string{"5511999887766@c.us", "5521988776655@c.us"} {
		if err := st.MarkSent(ctx, r, "n", "m"); err != nil {
			t.Fatalf("MarkSent: %v", err)
		}
	}
	if err := st.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	stats, err := st.Stats(ctx, DefaultWindow)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CountWithinWindow != 0 {
		t.Fatalf("CountWithinWindow = %d, want 0 after ClearAll", stats.CountWithinWindow)
	}
	if !stats.LastSentAt.IsZero() {
		t.Fatalf("LastSentAt = %v, want zero after ClearAll", stats.LastSentAt)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st := openTestStore(t, &now)
	ctx := context.Background()

	for i, r := range []string{"5511999887766@c.us", "5521988776655@c.us", "554599887766@c.us"} {
		now = now.Add(time.Duration(i) * time.Minute)
		if err := st.MarkSent(ctx, r, "Contato", "ola"); err != nil {
			t.Fatalf("MarkSent: %v", err)
		}
	}

	recs, err := st.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("record count = %d, want 3", len(recs))
	}
	if recs[0].Recipient != "554599887766@c.us" {
		t.Fatalf("newest record = %q, want the last marked", recs[0].Recipient)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].SentAt.After(recs[i-1].SentAt) {
			t.Fatal("records not ordered newest first")
		}
	}

	limited, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited record count = %d, want 2", len(limited))
	}
}
