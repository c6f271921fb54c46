package counterparty

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9]+`)

// Legal-form tokens dropped before comparing names.
var legalForms = map[string]bool{
	"SRL": true, "SRLS": true, "SPA": true, "SAS": true, "SNC": true, "SS": true,
	"SAPA": true, "COOP": true, "SCARL": true, "SCRL": true, "SCPA": true,
	"SOC": true, "SOCIETA": true, "COOPERATIVA": true, "UNIPERSONALE": true,
	"LLC": true, "LTD": true, "INC": true, "CORP": true, "GMBH": true, "AG": true,
	"SA": true, "SARL": true, "SL": true, "BV": true, "NV": true, "PLC": true,
}

// Normalize folds accents and case, turns punctuation into spaces, joins
// dotted abbreviations (S.R.L. -> SRL) and drops legal-form tokens.
// A name made only of legal-form tokens keeps them.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToUpper(folded)
	folded = nonAlphanumeric.ReplaceAllString(folded, " ")

	tokens := joinInitials(strings.Fields(folded))

	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !legalForms[tok] {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		kept = tokens
	}
	return strings.Join(kept, " ")
}

// joinInitials merges runs of two or more single-letter tokens.
func joinInitials(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	run := ""
	flush := func() {
		if run != "" {
			out = append(out, run)
			run = ""
		}
	}
	for i, tok := range tokens {
		single := len(tok) == 1 && tok[0] >= 'A' && tok[0] <= 'Z'
		nextSingle := i+1 < len(tokens) && len(tokens[i+1]) == 1 && tokens[i+1][0] >= 'A' && tokens[i+1][0] <= 'Z'
		if single && (run != "" || nextSingle) {
			run += tok
			continue
		}
		flush()
		out = append(out, tok)
	}
	flush()
	return out
}
