// Package blacklist screens applicant identities against a configured
// exclusion list. A hit is an advisory signal surfaced during review; it
// never blocks a decision on its own.
package blacklist

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Lists holds the two halves of the blacklist as used by Check. Emails
// are stored normalized, names trimmed but otherwise exact.
type Lists struct {
	Emails []string
	Names  []string
}

// Normalize decomposes to NFKD, strips combining diacritical marks,
// trims the edges, and lowercases. Internal whitespace is preserved.
func Normalize(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(strings.TrimSpace(b.String()))
}

// NameLikelyMatches reports whether candidate plausibly refers to the
// blacklisted name. Both are tokenized on whitespace with surrounding
// punctuation stripped, case-insensitive. A match is an identical token
// sequence, identical first and last tokens, or the candidate
// containing the blacklisted first and last tokens anywhere, which
// catches reordered and middle-name-padded forms like "Jane Q. Doe"
// vs "Doe, Jane".
func NameLikelyMatches(candidate, blacklisted string) bool {
	a := nameTokens(candidate)
	b := nameTokens(blacklisted)
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if strings.Join(a, " ") == strings.Join(b, " ") {
		return true
	}
	af, al := a[0], a[len(a)-1]
	bf, bl := b[0], b[len(b)-1]
	if af == bf && al == bl {
		return true
	}
	return contains(a, bf) && contains(a, bl)
}

// Check reports whether any identity signal hits the blacklist: an exact
// normalized email match, a blacklisted email appearing inside the
// normalized answers, a likely name match, or a blacklisted name
// appearing word-bounded inside the normalized answers. Pure.
func Check(email, fullName, answersJoined string, lists Lists) bool {
	answers := Normalize(answersJoined)
	normEmail := Normalize(email)

	for _, e := range lists.Emails {
		if e == "" {
			continue
		}
		if e == normEmail || strings.Contains(answers, e) {
			return true
		}
	}

	for _, n := range lists.Names {
		if fullName != "" && NameLikelyMatches(fullName, n) {
			return true
		}
		normName := Normalize(n)
		if normName == "" {
			continue
		}
		pattern := `\b` + regexp.QuoteMeta(normName) + `\b`
		if matched, err := regexp.MatchString(pattern, answers); err == nil && matched {
			return true
		}
	}
	return false
}

func nameTokens(s string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func contains(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
