// Package phone canonicalizes Brazilian phone numbers into transport
// addresses.
//
// Identity matters everywhere downstream (dedup key, transport address),
// so every raw number must collapse to exactly one canonical form:
//
//	"55" + DDD (2 digits) + local number + address suffix
//
// The local number is 9 digits for DDDs that use the extra ninth digit and
// 8 digits for the rest.
package phone

import (
	"fmt"
	"strings"
)

const countryPrefix = "55"

// DefaultSuffix is the transport addressing suffix appended to canonical
// numbers. The legacy "@c.us" form is also stripped on input.
const DefaultSuffix = "@c.us"

const legacySuffix = "@s.whatsapp.net"

// Reason classifies why a raw number was rejected.
type Reason string

const (
	ReasonBadLength   Reason = "bad_length"
	ReasonBadAreaCode Reason = "bad_area_code"
)

// RejectionError reports an unusable raw number. Rejections are per-contact
// and recoverable: callers log them and keep processing the batch.
type RejectionError struct {
	Raw    string
	Reason Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("phone %q rejected: %s", e.Raw, e.Reason)
}

// ninthDigitDDDs lists the area codes where mobile numbers carry the extra
// leading 9 (Sao Paulo, Rio de Janeiro and Espirito Santo ranges).
var ninthDigitDDDs = []string{
	"11", "12", "13", "14", "15", "16", "17", "18", "19",
	"21", "22", "24",
	"27", "28",
}

// validDDDs is the full Brazilian area-code table.
var validDDDs = []string{
	// Southeast
	"11", "12", "13", "14", "15", "16", "17", "18", "19",
	"21", "22", "24",
	"27", "28",
	"31", "32", "33", "34", "35", "37", "38",
	// South
	"41", "42", "43", "44", "45", "46",
	"47", "48", "49",
	"51", "53", "54", "55",
	// Northeast
	"71", "73", "74", "75", "77",
	"79",
	"81", "87",
	"82",
	"83",
	"84",
	"85", "88",
	"86", "89",
	"98", "99",
	// Center-West and North
	"61",
	"62", "64",
	"63",
	"65", "66",
	"67",
	"68",
	"69",
	"91", "93", "94",
	"92", "97",
	"95",
	"96",
}

// Normalizer converts free-form human phone input into canonical recipient
// identifiers. The zero value is not usable; use New.
type Normalizer struct {
	suffix string
	valid  map[string]bool
	ninth  map[string]bool
}

type Option func(*Normalizer)

// WithSuffix overrides the address suffix appended to canonical numbers.
func WithSuffix(s string) Option {
	return func(n *Normalizer) { n.suffix = s }
}

// WithValidDDDs replaces the area-code validity table.
func WithValidDDDs(ddds ...string) Option {
	return func(n *Normalizer) { n.valid = toSet(ddds) }
}

// WithNinthDigitDDDs replaces the extra-ninth-digit partition.
func WithNinthDigitDDDs(ddds ...string) Option {
	return func(n *Normalizer) { n.ninth = toSet(ddds) }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		suffix: DefaultSuffix,
		valid:  toSet(validDDDs),
		ninth:  toSet(ninthDigitDDDs),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Suffix returns the address suffix this normalizer emits.
func (n *Normalizer) Suffix() string { return n.suffix }

// Normalize converts raw into the canonical recipient identifier.
//
// It is total (never panics, any string input) and idempotent: feeding an
// accepted output back in yields the same identifier. Rejections are
// returned as *RejectionError with a reason code.
func (n *Normalizer) Normalize(raw string) (string, error) {
	digits := Digits(stripSuffix(raw))

	var ddd, local string
	switch {
	case strings.HasPrefix(digits, countryPrefix) && len(digits) >= 12:
		ddd = digits[2:4]
		local = digits[4:]
	case len(digits) == 10 || len(digits) == 11:
		ddd = digits[0:2]
		local = digits[2:]
	default:
		return "", &RejectionError{Raw: raw, Reason: ReasonBadLength}
	}

	if !n.valid[ddd] {
		return "", &RejectionError{Raw: raw, Reason: ReasonBadAreaCode}
	}

	// Ninth-digit rule, both directions. Each branch only fires when the
	// observed shape contradicts the DDD's convention.
	if !n.ninth[ddd] && len(local) == 9 && strings.HasPrefix(local, "9") {
		local = local[1:]
	}
	if n.ninth[ddd] && len(local) == 8 {
		local = "9" + local
	}

	want := 8
	if n.ninth[ddd] {
		want = 9
	}
	if len(local) != want {
		return "", &RejectionError{Raw: raw, Reason: ReasonBadLength}
	}

	return countryPrefix + ddd + local + n.suffix, nil
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripSuffix(raw string) string {
	raw = strings.TrimSuffix(raw, DefaultSuffix)
	raw = strings.TrimSuffix(raw, legacySuffix)
	return raw
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
