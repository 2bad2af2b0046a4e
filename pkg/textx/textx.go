// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Normalize lowercases s, strips everything but letters, digits and spaces,
// and collapses runs of whitespace to a single space.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// OverlapScore scores how well candidate matches target by shared-token count
// over the smaller token set, both normalized first. Returns 0 for empty input.
func OverlapScore(target, candidate string) float64 {
	tw := tokenSet(Normalize(target))
	cw := tokenSet(Normalize(candidate))
	if len(tw) == 0 || len(cw) == 0 {
		return 0
	}
	inter := 0
	for w := range tw {
		if _, ok := cw[w]; ok {
			inter++
		}
	}
	minLen := len(tw)
	if len(cw) < minLen {
		minLen = len(cw)
	}
	return float64(inter) / float64(minLen)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}
