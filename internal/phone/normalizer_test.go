package phone

import (
	"errors"
	"regexp"
	"testing"
)

func TestNormalizeShapes(t *testing.T) {
	t.Parallel()
	n := New()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "ninth digit added", raw: "1199887766", want: "5511999887766@c.us"},
		{name: "ninth digit kept", raw: "11999887766", want: "5511999887766@c.us"},
		{name: "ninth digit stripped", raw: "5545999887766", want: "554599887766@c.us"},
		{name: "eight digit interior ddd", raw: "4599887766", want: "554599887766@c.us"},
		{name: "country prefix present", raw: "5511999887766", want: "5511999887766@c.us"},
		{name: "formatted input", raw: "+55 (11) 99988-7766", want: "5511999887766@c.us"},
		{name: "transport suffix on input", raw: "5511999887766@c.us", want: "5511999887766@c.us"},
		{name: "jid suffix on input", raw: "5511999887766@s.whatsapp.net", want: "5511999887766@c.us"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeRejections(t *testing.T) {
	t.Parallel()
	n := New()

	tests := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{name: "empty", raw: "", reason: ReasonBadLength},
		{name: "too short", raw: "11999", reason: ReasonBadLength},
		{name: "too long without prefix", raw: "119998877665544", reason: ReasonBadLength},
		{name: "letters only", raw: "not-a-phone", reason: ReasonBadLength},
		{name: "unknown ddd", raw: "0999887766", reason: ReasonBadAreaCode},
		{name: "ninth ddd with seven digit local", raw: "55119988776", reason: ReasonBadLength},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.raw)
			if err == nil {
				t.Fatalf("Normalize(%q) accepted, want rejection", tt.raw)
			}
			var rej *RejectionError
			if !errors.As(err, &rej) {
				t.Fatalf("error type = %T, want *RejectionError", err)
			}
			if rej.Reason != tt.reason {
				t.Fatalf("reason = %s, want %s", rej.Reason, tt.reason)
			}
		})
	}
}

func TestNormalizeRestrictedDDDTable(t *testing.T) {
	t.Parallel()
	n := New(WithValidDDDs("11", "21", "45"))

	if _, err := n.Normalize("9999887766"); err == nil {
		t.Fatal("expected rejection for DDD outside the configured table")
	} else {
		var rej *RejectionError
		if !errors.As(err, &rej) || rej.Reason != ReasonBadAreaCode {
			t.Fatalf("unexpected rejection: %v", err)
		}
	}

	if _, err := n.Normalize("1199887766"); err != nil {
		t.Fatalf("DDD inside the table rejected: %v", err)
	}
}

func TestNormalizeIdempotentAndShape(t *testing.T) {
	t.Parallel()
	n := New()
	shape := regexp.MustCompile(`^55\d{10,11}@c\.us$`)

	inputs := []string{
		"1199887766",
		"11999887766",
		"5545999887766",
		"554599887766",
		"+55 71 9988-7766",
		"3132211234",
	}
	for _, raw := range inputs {
		first, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", raw, err)
		}
		if !shape.MatchString(first) {
			t.Fatalf("Normalize(%q) = %q, does not match canonical shape", raw, first)
		}
		second, err := n.Normalize(first)
		if err != nil {
			t.Fatalf("Normalize not idempotent for %q: %v", raw, err)
		}
		if second != first {
			t.Fatalf("Normalize(Normalize(%q)) = %q, want %q", raw, second, first)
		}
	}
}

func TestVariants(t *testing.T) {
	t.Parallel()
	n := New()

	tests := []struct {
		name string
		id   string
		want []string
	}{
		{name: "drop ninth", id: "5511999887766@c.us", want: []string{"551199887766@c.us"}},
		{name: "add ninth", id: "554599887766@c.us", want: []string{"5545999887766@c.us"}},
		{name: "no country prefix", id: "1199887766", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := n.Variants(tt.id)
			if len(got) != len(tt.want) {
				t.Fatalf("Variants(%q) = %v, want %v", tt.id, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Variants(%q)[%d] = %q, want %q", tt.id, i, got[i], tt.want[i])
				}
			}
		})
	}
}
