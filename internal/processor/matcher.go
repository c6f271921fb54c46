package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/calendar"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/counterparty"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/extract"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

type Outcome string

const (
	OutcomeCommission Outcome = "commission_excluded"
	OutcomeMatched    Outcome = "matched"
	OutcomeAmbiguous  Outcome = "ambiguous"
	OutcomeUnmatched  Outcome = "unmatched"
)

// Decision is what the resolver concluded for one movement. It carries the
// records to update; the resolver itself never writes.
type Decision struct {
	Outcome    Outcome
	Method     models.MatchMethod
	Target     string
	Payable    *models.Payable
	Check      *models.Check
	Batches    []models.SettlementBatch
	CashEntry  *models.CashEntry
	Candidates models.Candidates
	Refs       extract.References
	Reason     string
}

// MatchConfig holds the tolerances and keyword lists used by the strategies.
type MatchConfig struct {
	DocumentTolerance decimal.Decimal
	POSTolerance      decimal.Decimal
	CashTolerance     decimal.Decimal
	// A lone amount-only candidate is accepted when its document date is at
	// most PureAmountMaxDays before the movement or PureAmountMaxDaysAfter after it.
	PureAmountMaxDays      int
	PureAmountMaxDaysAfter int
	DepositKeywords        []string
	Commission             CommissionConfig
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		DocumentTolerance:      decimal.RequireFromString("0.05"),
		POSTolerance:           decimal.RequireFromString("1.00"),
		CashTolerance:          decimal.RequireFromString("0.01"),
		PureAmountMaxDays:      120,
		PureAmountMaxDaysAfter: 7,
		DepositKeywords:        []string{"VERSAMENTO", "VERS. CONTANTI", "VERS.CONTANTI", "DEPOSITO CONTANTI", "DEPOSITO"},
		Commission:             DefaultCommissionConfig(),
	}
}

// Resolver runs the matching strategies in priority order and stops at the
// first that reaches a decision.
type Resolver struct {
	payables    PayableStore
	checks      CheckStore
	settlements SettlementStore
	cash        CashStore

	names      *counterparty.Matcher
	calendar   *calendar.Calendar
	commission *CommissionClassifier
	extractor  *extract.Extractor
	cfg        MatchConfig
	logger     *logrus.Logger

	strategies []strategy
}

func NewResolver(stores Stores, names *counterparty.Matcher, cal *calendar.Calendar, cfg MatchConfig, logger *logrus.Logger) *Resolver {
	if names == nil {
		names = counterparty.NewMatcher(nil)
	}
	if cal == nil {
		cal = calendar.Default()
	}
	r := &Resolver{
		payables:    stores.Payables,
		checks:      stores.Checks,
		settlements: stores.Settlements,
		cash:        stores.Cash,
		names:       names,
		calendar:    cal,
		commission:  NewCommissionClassifier(cfg.Commission),
		extractor:   extract.New(nil),
		cfg:         cfg,
		logger:      logger,
	}
	r.strategies = []strategy{
		{"commission", r.matchCommission},
		{"reference", r.matchReference},
		{"amount", r.matchAmount},
		{"tax", r.matchTaxPayment},
		{"pos", r.matchPOS},
		{"cash", r.matchCashDeposit},
	}
	return r
}

// matchInput is the per-movement state shared by the strategies.
type matchInput struct {
	movement  models.BankMovement
	amount    decimal.Decimal
	direction models.Direction
	refs      extract.References
	claimed   map[string]bool
}

type strategy struct {
	name string
	fn   func(ctx context.Context, in *matchInput) (*Decision, error)
}

// Resolve decides the outcome for m. Records whose ids are in claimed were
// taken earlier in the same run and are never offered again.
func (r *Resolver) Resolve(ctx context.Context, m models.BankMovement, claimed map[string]bool) (*Decision, error) {
	if err := validateMovement(m); err != nil {
		return nil, err
	}
	if claimed == nil {
		claimed = map[string]bool{}
	}
	in := &matchInput{
		movement:  m,
		amount:    m.AbsAmount(),
		direction: models.DirectionOf(m.Amount),
		refs:      r.extractor.Extract(m.Description),
		claimed:   claimed,
	}

	for _, s := range r.strategies {
		d, err := s.fn(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("%s strategy: %w", s.name, err)
		}
		if d != nil {
			d.Refs = in.refs
			r.logger.WithFields(logrus.Fields{
				"movement": m.ID,
				"strategy": s.name,
				"outcome":  d.Outcome,
				"method":   d.Method,
				"target":   d.Target,
			}).Debug("movement resolved")
			return d, nil
		}
	}
	return &Decision{Outcome: OutcomeUnmatched, Refs: in.refs, Reason: "no strategy matched"}, nil
}

func validateMovement(m models.BankMovement) error {
	if m.ID == "" {
		return &DataShapeError{MovementID: "?", Field: "id", Reason: "empty"}
	}
	if m.Date.IsZero() {
		return &DataShapeError{MovementID: m.ID, Field: "date", Reason: "missing"}
	}
	if m.Amount.IsZero() {
		return &DataShapeError{MovementID: m.ID, Field: "amount", Reason: "zero"}
	}
	if m.Direction != "" && m.Direction != models.DirectionOf(m.Amount) {
		return &DataShapeError{MovementID: m.ID, Field: "direction", Reason: fmt.Sprintf("%s does not agree with amount %s", m.Direction, m.Amount)}
	}
	return nil
}

// withinTolerance compares two amounts rounded to cents.
func withinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Round(2).Sub(b.Round(2)).Abs().LessThanOrEqual(tolerance)
}

// rankCandidates orders payables by document date, newest first, then by
// insertion order, and converts them for the review queue.
func (r *Resolver) rankCandidates(in *matchInput, payables []models.Payable, reason string) models.Candidates {
	sorted := make([]models.Payable, len(payables))
	copy(sorted, payables)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].DocumentDate.Equal(sorted[j].DocumentDate) {
			return sorted[i].DocumentDate.After(sorted[j].DocumentDate)
		}
		return sorted[i].Position < sorted[j].Position
	})

	out := make(models.Candidates, 0, len(sorted))
	for i, p := range sorted {
		score := 0.0
		if in.refs.Counterparty != "" {
			score = r.names.Similarity(in.refs.Counterparty, p.Counterparty)
		}
		out = append(out, models.Candidate{
			PayableID:    p.ID,
			Kind:         p.Kind,
			Number:       p.Number,
			Counterparty: p.Counterparty,
			Amount:       p.Amount,
			DocumentDate: p.DocumentDate,
			Score:        score,
			Reason:       reason,
			Rank:         i + 1,
		})
	}
	return out
}

// filterByName keeps payables whose counterparty matches name. The second
// result reports whether a name was given at all; with a name and no match
// the result is empty.
func (r *Resolver) filterByName(name string, payables []models.Payable) ([]models.Payable, bool) {
	if strings.TrimSpace(name) == "" {
		return payables, false
	}
	var kept []models.Payable
	for _, p := range payables {
		if r.names.Matches(name, p.Counterparty) {
			kept = append(kept, p)
		}
	}
	return kept, true
}

// eligible drops payables claimed in this run or expecting the other direction.
func eligible(in *matchInput, payables []models.Payable) []models.Payable {
	out := payables[:0:0]
	for _, p := range payables {
		if in.claimed[p.ID] || p.Paid || !p.AcceptsDirection(in.direction) {
			continue
		}
		out = append(out, p)
	}
	return out
}
