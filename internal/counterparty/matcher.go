// Package counterparty compares supplier and employee names as they appear on
// bank statements and in the ledgers.
//
// Matching is permissive: a missed match only sends a movement to the review
// queue, while the amount tolerance keeps wrong matches rare.
package counterparty

import (
	"math"
	"strings"
)

const (
	minContainLen   = 6
	minFirstWordLen = 4
	minSharedLen    = 5
)

// Matcher decides whether two names refer to the same counterparty.
type Matcher struct {
	aliases *AliasTable
}

// NewMatcher returns a matcher; aliases may be nil.
func NewMatcher(aliases *AliasTable) *Matcher {
	return &Matcher{aliases: aliases}
}

// Aliases returns the table the matcher was built with.
func (m *Matcher) Aliases() *AliasTable {
	return m.aliases
}

// Matches reports whether a and b name the same counterparty. It is symmetric.
func (m *Matcher) Matches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	ca, cb := m.aliases.Canonical(na), m.aliases.Canonical(nb)
	if ca == cb {
		return true
	}

	return contains(ca, cb) || sameLeadingWords(ca, cb) || sharesSignificantToken(ca, cb)
}

func contains(a, b string) bool {
	if len([]rune(a)) < minContainLen || len([]rune(b)) < minContainLen {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func sameLeadingWords(a, b string) bool {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) == 0 || len(wb) == 0 || wa[0] != wb[0] {
		return false
	}
	if len([]rune(wa[0])) >= minFirstWordLen {
		return true
	}
	return len(wa) >= 2 && len(wb) >= 2 && wa[1] == wb[1]
}

func sharesSignificantToken(a, b string) bool {
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(a) {
		if len([]rune(tok)) >= minSharedLen {
			seen[tok] = true
		}
	}
	for _, tok := range strings.Fields(b) {
		if seen[tok] {
			return true
		}
	}
	return false
}

// Similarity scores two names between 0 and 1 for display and ranking hints.
// Token order is ignored; a shared prefix adds a Winkler-style bonus.
func (m *Matcher) Similarity(a, b string) float64 {
	na, nb := m.aliases.Canonical(Normalize(a)), m.aliases.Canonical(Normalize(b))
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := strings.Fields(na), strings.Fields(nb)
	shared := 0
	inB := make(map[string]int)
	for _, tok := range tb {
		inB[tok]++
	}
	for _, tok := range ta {
		if inB[tok] > 0 {
			inB[tok]--
			shared++
		}
	}
	overlap := float64(shared) / math.Max(float64(len(ta)), float64(len(tb)))

	prefix := 0
	ra, rb := []rune(na), []rune(nb)
	for i := 0; i < 4 && i < len(ra) && i < len(rb) && ra[i] == rb[i]; i++ {
		prefix++
	}

	score := overlap + 0.1*float64(prefix)*(1-overlap)
	return math.Round(score*100) / 100
}
