package processor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// CommissionConfig lists what the bank charges as fees.
type CommissionConfig struct {
	Keywords     []string
	FixedAmounts []decimal.Decimal
	MaxAmount    decimal.Decimal
	Tolerance    decimal.Decimal
}

func DefaultCommissionConfig() CommissionConfig {
	return CommissionConfig{
		Keywords: []string{
			"COMMISSIONI", "COMMISSIONE", "COMM.",
			"COMPETENZE DI CHIUSURA", "COMPETENZE BANCARIE", "CANONE CONTO", "CANONE MENSILE CONTO",
			"SPESE TENUTA CONTO", "SPESE BONIFICO", "SPESE INCASSO", "SPESE PRELIEVO",
			"IMPOSTA DI BOLLO", "ONERI BANCARI",
		},
		FixedAmounts: []decimal.Decimal{
			decimal.RequireFromString("0.50"),
			decimal.RequireFromString("0.75"),
			decimal.RequireFromString("1.00"),
			decimal.RequireFromString("1.50"),
			decimal.RequireFromString("2.00"),
			decimal.RequireFromString("2.50"),
			decimal.RequireFromString("3.00"),
		},
		MaxAmount: decimal.RequireFromString("3.00"),
		Tolerance: decimal.RequireFromString("0.01"),
	}
}

// CommissionClassifier flags bank fees so they are kept out of matching.
type CommissionClassifier struct {
	cfg     CommissionConfig
	keyword *regexp.Regexp
}

func NewCommissionClassifier(cfg CommissionConfig) *CommissionClassifier {
	c := &CommissionClassifier{cfg: cfg}
	if len(cfg.Keywords) > 0 {
		quoted := make([]string, 0, len(cfg.Keywords))
		for _, k := range cfg.Keywords {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToUpper(strings.TrimSpace(k))))
		}
		c.keyword = regexp.MustCompile(`(?i)(?:^|[^A-Z0-9])(?:` + strings.Join(quoted, "|") + `)(?:$|[^A-Z0-9])`)
	}
	return c
}

// Classify reports whether m is a bank fee and why. Fixed amounts only apply
// to debits no larger than MaxAmount. A fee keyword is ignored when the
// description also quotes a document or check reference.
func (c *CommissionClassifier) Classify(m models.BankMovement, referenced bool) (bool, string) {
	if !referenced && c.keyword != nil && c.keyword.MatchString(m.Description) {
		return true, "fee keyword"
	}
	if models.DirectionOf(m.Amount) != models.DirectionDebit {
		return false, ""
	}
	amount := m.AbsAmount()
	if amount.GreaterThan(c.cfg.MaxAmount) {
		return false, ""
	}
	for _, fee := range c.cfg.FixedAmounts {
		if amount.Sub(fee.Round(2)).Abs().LessThanOrEqual(c.cfg.Tolerance) {
			return true, "fixed fee " + fee.StringFixed(2)
		}
	}
	return false, ""
}
