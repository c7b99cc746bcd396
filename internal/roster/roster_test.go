package roster

import (
	"path/filepath"
	"testing"

	"github.com/RenanMaestrya/disparador-outbound/internal/phone"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

func TestExampleRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "contatos.xlsx")

	if err := CreateExample(path); err != nil {
		t.Fatalf("CreateExample: %v", err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(d.Contacts) != 3 {
		t.Fatalf("contacts = %d, want 3", len(d.Contacts))
	}
	if d.Contacts[0].Name != "João Silva" || d.Contacts[0].Phone != "11999887766" {
		t.Fatalf("unexpected first contact: %+v", d.Contacts[0])
	}
	if len(d.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(d.Messages))
	}
	if d.DailyStart != "09:00" {
		t.Fatalf("DailyStart = %q, want 09:00", d.DailyStart)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Fatal("expected error for missing workbook")
	}
}

func TestFilterValid(t *testing.T) {
	t.Parallel()
	n := phone.New()
	contacts := []Contact{
		{Name: "ok sp", Phone: "1199887766"},
		{Name: "bad", Phone: "123"},
		{Name: "ok sc", Phone: "5545999887766"},
	}

	valid, invalid := FilterValid(n, contacts, logx.Nop())
	if len(valid) != 2 {
		t.Fatalf("valid = %d, want 2", len(valid))
	}
	if len(invalid) != 1 || invalid[0].Name != "bad" {
		t.Fatalf("unexpected invalid set: %+v", invalid)
	}
	if valid[0].Phone != "5511999887766@c.us" {
		t.Fatalf("valid[0].Phone = %q, want canonical identifier", valid[0].Phone)
	}
	if valid[1].Phone != "554599887766@c.us" {
		t.Fatalf("valid[1].Phone = %q, want ninth digit stripped", valid[1].Phone)
	}
}
