package phone

import "strings"

// Variants returns alternative addresses for the existence probe: the same
// number with the ninth digit toggled in the opposite direction of what the
// identifier currently shows. The input itself is never included.
//
// This reuses the canonical split so the probe and the normalizer can never
// disagree about what the ninth digit is.
func (n *Normalizer) Variants(id string) []string {
	digits := Digits(stripSuffix(id))
	if !strings.HasPrefix(digits, countryPrefix) || len(digits) < 12 {
		return nil
	}
	ddd := digits[2:4]
	local := digits[4:]

	var out []string
	switch {
	case len(local) == 9 && strings.HasPrefix(local, "9"):
		out = append(out, countryPrefix+ddd+local[1:]+n.suffix)
	case len(local) == 8:
		out = append(out, countryPrefix+ddd+"9"+local+n.suffix)
	}

	self := countryPrefix + ddd + local + n.suffix
	filtered := out[:0]
	for _, v := range out {
		if v != self {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
