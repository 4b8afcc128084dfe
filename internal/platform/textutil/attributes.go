package textutil

import "strings"

// Fold canonicalises a variant attribute for substring comparison:
// whitespace is trimmed and case differences are ignored. ToLower is a
// per-rune mapping, so characters whose case pair changes length (the
// Kelvin sign, dotless i) can still compare unequal here; exact matches
// go through FoldEqual, which applies full Unicode case folding.
func Fold(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// FoldEqual reports whether two attribute values match ignoring case.
func FoldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FoldContains reports whether either folded value contains the other.
// Both values must be non-empty after folding.
func FoldContains(a, b string) bool {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return false
	}
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}
