// Package extract pulls structured references out of free-text bank
// descriptions: invoice numbers, check numbers, counterparty names and tax
// payment markers.
//
// Extraction is driven by an ordered rule table. For each reference kind the
// first rule whose pattern matches and whose validity predicate accepts the
// captured token wins.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

type Kind string

const (
	KindInvoiceNumber Kind = "invoice_number"
	KindCheckNumber   Kind = "check_number"
	KindCounterparty  Kind = "counterparty_name"
	KindTaxMarker     Kind = "tax_marker"
)

// Rule maps a pattern to a reference kind. The pattern's first capture group
// (or the whole match when it has none) is the candidate token.
type Rule struct {
	Name    string
	Kind    Kind
	Pattern *regexp.Regexp
	Valid   func(token string) bool
}

// References holds at most one token per kind.
type References struct {
	InvoiceNumber string
	CheckNumber   string
	Counterparty  string
	TaxMarker     string
}

// Empty reports whether nothing was extracted.
func (r References) Empty() bool {
	return r.InvoiceNumber == "" && r.CheckNumber == "" && r.Counterparty == "" && r.TaxMarker == ""
}

// Words after which a counterparty name ends.
const nameStop = `(?:CAUS(?:ALE)?|RIF(?:ERIMENTO)?|FT|FATT(?:URA)?|DATA|DEL|CRO|TRN|IBAN|BIC|ID|NOTPROVIDED|PAGAMENTO|SALDO|ACCONTO|MANDATO|ADDEBITO|COMM(?:ISSIONI)?|ASSEGNO|ASS)`

// nameBody captures a name after its keyword, up to the next stop word.
const nameBody = `(?:\s*:\s*|\s+)(.+?)(?:\s+` + nameStop + `\b|$)`

// DefaultRules is the rule table used by Extract.
var DefaultRules = []Rule{
	{
		Name:    "invoice-ft-prefix",
		Kind:    KindInvoiceNumber,
		Pattern: regexp.MustCompile(`(?i)\b(?:FT|FATT(?:URA|\.)?|FAT|FTT|INV(?:OICE)?)\.?\s*(?:N(?:R|UM|O)?[.°]?\s*)?[:#]?\s*([A-Z]{0,4}[0-9][A-Z0-9/\-_.]*)`),
		Valid:   validInvoiceNumber,
	},
	{
		Name:    "invoice-doc-ref",
		Kind:    KindInvoiceNumber,
		Pattern: regexp.MustCompile(`(?i)\b(?:DOC(?:UMENTO)?|RIF(?:ERIMENTO|\.)?)\s*(?:N(?:R|UM|O)?[.°]?\s*)?[:#]?\s*([A-Z]{0,4}[0-9][A-Z0-9/\-_]*)`),
		Valid:   validInvoiceNumber,
	},
	{
		Name:    "check-keyword",
		Kind:    KindCheckNumber,
		Pattern: regexp.MustCompile(`(?i)\b(?:ASSEGNO(?:\s+(?:BANCARIO|CIRCOLARE))?|ASS\.?\s*(?:BANC(?:ARIO|\.)?|CIRC\.?)?|CHQ|CHEQUE|CHECK)\s*(?:N(?:R|UM|O)?[.°]?\s*)?[:#]?\s*([0-9][0-9\-/]*[0-9])`),
		Valid:   validCheckNumber,
	},
	{
		Name:    "counterparty-beneficiary",
		Kind:    KindCounterparty,
		Pattern: regexp.MustCompile(`(?i)\b(?:A\s+FAVORE(?:\s+DI)?|BENEFICIARIO|BENEF\.?|BEN\.)` + nameBody),
		Valid:   validName,
	},
	{
		Name:    "counterparty-ordering",
		Kind:    KindCounterparty,
		Pattern: regexp.MustCompile(`(?i)\b(?:ORDINANTE|ORD\.|DISPOSTO\s+DA|DA)` + nameBody),
		Valid:   validName,
	},
	{
		Name:    "counterparty-transfer-to",
		Kind:    KindCounterparty,
		Pattern: regexp.MustCompile(`(?i)\b(?:BONIFICO|BON\.|SDD|RID|STIPENDIO|EMOLUMENTI)(?:\s+SEPA)?(?:\s+(?:A|PER|VS))?` + nameBody),
		Valid:   validName,
	},
	{
		Name:    "tax-f24",
		Kind:    KindTaxMarker,
		Pattern: regexp.MustCompile(`(?i)\b(F\s?24)\b`),
		Valid:   func(string) bool { return true },
	},
	{
		Name:    "tax-delega",
		Kind:    KindTaxMarker,
		Pattern: regexp.MustCompile(`(?i)\b(DELEGA\s+UNIFICATA|AGENZIA\s+(?:DELLE\s+)?ENTRATE|PAGAMENTO\s+TRIBUTI|MOD(?:ELLO|\.)?\s*F24)\b`),
		Valid:   func(string) bool { return true },
	},
}

// Extractor applies a rule table.
type Extractor struct {
	rules []Rule
}

// New builds an extractor over rules. A nil slice selects DefaultRules.
func New(rules []Rule) *Extractor {
	if rules == nil {
		rules = DefaultRules
	}
	return &Extractor{rules: rules}
}

var defaultExtractor = New(nil)

// Extract runs the default rule table against a bank description.
func Extract(description string) References {
	return defaultExtractor.Extract(description)
}

// Extract returns the references found in description.
func (e *Extractor) Extract(description string) References {
	desc := strings.Join(strings.Fields(description), " ")
	var refs References
	for _, rule := range e.rules {
		if refs.get(rule.Kind) != "" {
			continue
		}
		for _, m := range rule.Pattern.FindAllStringSubmatch(desc, -1) {
			token := m[0]
			if len(m) > 1 {
				token = m[1]
			}
			token = cleanToken(rule.Kind, token)
			if token == "" || !rule.Valid(token) {
				continue
			}
			refs.set(rule.Kind, token)
			break
		}
	}
	return refs
}

// Match reports the kind-specific tokens found by a single rule; used by tests
// and diagnostics to inspect rules in isolation.
func (r Rule) Match(description string) (string, bool) {
	for _, m := range r.Pattern.FindAllStringSubmatch(description, -1) {
		token := m[0]
		if len(m) > 1 {
			token = m[1]
		}
		token = cleanToken(r.Kind, token)
		if token != "" && r.Valid(token) {
			return token, true
		}
	}
	return "", false
}

func (r References) get(k Kind) string {
	switch k {
	case KindInvoiceNumber:
		return r.InvoiceNumber
	case KindCheckNumber:
		return r.CheckNumber
	case KindCounterparty:
		return r.Counterparty
	case KindTaxMarker:
		return r.TaxMarker
	}
	return ""
}

func (r *References) set(k Kind, v string) {
	switch k {
	case KindInvoiceNumber:
		r.InvoiceNumber = v
	case KindCheckNumber:
		r.CheckNumber = v
	case KindCounterparty:
		r.Counterparty = v
	case KindTaxMarker:
		r.TaxMarker = "F24"
	}
}

func cleanToken(k Kind, token string) string {
	token = strings.TrimSpace(token)
	switch k {
	case KindCounterparty:
		token = strings.Trim(token, " .,;:-/")
		return strings.ToUpper(strings.Join(strings.Fields(token), " "))
	default:
		return strings.ToUpper(strings.Trim(token, ".-/_"))
	}
}

var (
	dateLike = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}$`),
		regexp.MustCompile(`^\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2}$`),
	}
	amountLike = regexp.MustCompile(`^\d{1,3}(?:[.]\d{3})*,\d{2}$|^\d+[.,]\d{2}$`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// looksLikeDate rejects tokens such as 05/03/2024, 2024-03-05 or 05032024.
func looksLikeDate(token string) bool {
	for _, re := range dateLike {
		if re.MatchString(token) {
			return true
		}
	}
	if len(token) == 8 && digitsOnly.MatchString(token) {
		if _, err := time.Parse("02012006", token); err == nil {
			return true
		}
		if _, err := time.Parse("20060102", token); err == nil {
			return true
		}
	}
	return false
}

func looksLikeAmount(token string) bool {
	return amountLike.MatchString(token)
}

func hasDigit(token string) bool {
	return strings.IndexFunc(token, unicode.IsDigit) >= 0
}

func validInvoiceNumber(token string) bool {
	if len(token) < 1 || len(token) > 20 {
		return false
	}
	if !hasDigit(token) || looksLikeDate(token) || looksLikeAmount(token) {
		return false
	}
	// a bare long digit run is an IBAN fragment or CRO code, not an invoice number
	if digitsOnly.MatchString(token) && len(token) > 10 {
		return false
	}
	return true
}

func validCheckNumber(token string) bool {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, token)
	if len(digits) < 5 || len(digits) > 13 {
		return false
	}
	return !looksLikeDate(token) && !looksLikeAmount(token)
}

// Tokens that follow transfer keywords without naming anyone.
var nameNoise = map[string]bool{
	"SEPA": true, "ISTANTANEO": true, "ESTERO": true, "ONLINE": true,
	"BANCA": true, "POS": true, "CARTA": true, "VOSTRO": true, "NOSTRO": true,
}

func validName(token string) bool {
	if len(token) > 70 {
		return false
	}
	letters := 0
	for _, word := range strings.Fields(token) {
		if nameNoise[word] {
			continue
		}
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
			}
		}
	}
	return letters >= 3
}
