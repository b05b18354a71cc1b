package blacklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"José Gómez", "jose gomez"},
		{"José   Gómez", "jose   gomez"}, // inner whitespace kept
		{"  Padded  ", "padded"},
		{"UPPER", "upper"},
		{"Héloïse Brontë", "heloise bronte"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestNameLikelyMatches(t *testing.T) {
	tests := []struct {
		candidate   string
		blacklisted string
		want        bool
	}{
		{"Jane Doe", "Jane Doe", true},
		{"jane doe", "JANE DOE", true},
		{"Jane Q. Doe", "Jane Doe", true},
		{"Jane Q. Doe", "Doe, Jane", true}, // punctuation trimmed, endpoints reordered
		{"Doe, Jane", "Jane Doe", true},
		{"Doe Jane", "Jane Doe", true},
		{"Jane Smith", "Jane Doe", false},
		{"John Doe", "Jane Doe", false},
		{"Jane", "Jane Doe", false},
		{"", "Jane Doe", false},
		{"Jane Doe", "", false},
	}
	for _, tt := range tests {
		got := NameLikelyMatches(tt.candidate, tt.blacklisted)
		assert.Equal(t, tt.want, got, "NameLikelyMatches(%q, %q)", tt.candidate, tt.blacklisted)
	}
}

func TestCheckEmail(t *testing.T) {
	lists := Lists{Emails: []string{"banned@example.com"}}

	assert.True(t, Check("banned@example.com", "", "", lists))
	assert.True(t, Check("BANNED@example.com", "", "", lists))
	assert.False(t, Check("fine@example.com", "", "", lists))

	// A blacklisted email hiding inside the answers is also a hit.
	assert.True(t, Check("fine@example.com", "", `{"contact":"banned@example.com"}`, lists))
}

func TestCheckName(t *testing.T) {
	lists := Lists{Names: []string{"Jane Doe"}}

	assert.True(t, Check("fine@example.com", "Jane Doe", "", lists))
	assert.True(t, Check("fine@example.com", "Jane Q. Doe", "", lists))
	assert.False(t, Check("fine@example.com", "John Smith", "", lists))

	// Word-bounded scan of the answers, diacritics folded.
	assert.True(t, Check("fine@example.com", "", `{"name":"jane doe"}`, lists))
	assert.False(t, Check("fine@example.com", "", `{"name":"janet doerr"}`, lists))
}

func TestCheckAccentInsensitive(t *testing.T) {
	lists := Lists{Names: []string{"Jose Gomez"}}
	assert.True(t, Check("", "", `{"name":"José Gómez"}`, lists))
}

func TestCheckEmptyLists(t *testing.T) {
	assert.False(t, Check("anyone@example.com", "Any One", `{"x":"y"}`, Lists{}))
}
