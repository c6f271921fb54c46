package processor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/calendar"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

func (r *Resolver) matchCommission(_ context.Context, in *matchInput) (*Decision, error) {
	referenced := in.refs.InvoiceNumber != "" || in.refs.CheckNumber != ""
	ok, reason := r.commission.Classify(in.movement, referenced)
	if !ok {
		return nil, nil
	}
	return &Decision{Outcome: OutcomeCommission, Method: models.MethodCommission, Reason: reason}, nil
}

// matchReference looks up the invoice or check number quoted in the description.
func (r *Resolver) matchReference(ctx context.Context, in *matchInput) (*Decision, error) {
	if number := in.refs.InvoiceNumber; number != "" {
		found, err := r.payables.FindUnpaid(ctx, models.PayableFilter{
			Number: &number,
			Amount: models.Around(in.amount, r.cfg.DocumentTolerance),
		})
		if err != nil {
			return nil, err
		}
		found = eligible(in, found)
		if len(found) > 1 {
			if named, ok := r.filterByName(in.refs.Counterparty, found); ok && len(named) > 0 {
				found = named
			}
		}
		if len(found) == 1 {
			p := found[0]
			return &Decision{
				Outcome: OutcomeMatched,
				Method:  models.MethodReferenceAmount,
				Target:  p.ID,
				Payable: &p,
				Reason:  fmt.Sprintf("document %s, amount %s", number, p.Amount.StringFixed(2)),
			}, nil
		}
	}

	if in.refs.CheckNumber != "" && in.direction == models.DirectionDebit {
		c, err := r.findIssuedCheck(ctx, in, in.refs.CheckNumber)
		if err != nil {
			return nil, err
		}
		if c != nil && c.Amount.Valid && withinTolerance(c.Amount.Decimal, in.amount, r.cfg.DocumentTolerance) {
			d := &Decision{
				Outcome: OutcomeMatched,
				Method:  models.MethodReferenceAmount,
				Target:  c.ID,
				Check:   c,
				Reason:  "check " + c.Number,
			}
			if c.PayableID != nil && !in.claimed[*c.PayableID] {
				p, err := r.payables.Get(ctx, *c.PayableID)
				switch {
				case errors.Is(err, models.ErrNotFound):
				case err != nil:
					return nil, err
				case !p.Paid:
					d.Payable = p
				}
			}
			return d, nil
		}
	}
	return nil, nil
}

// findIssuedCheck resolves a check token to a single issued check, by full
// number first and then by sequence.
func (r *Resolver) findIssuedCheck(ctx context.Context, in *matchInput, token string) (*models.Check, error) {
	c, err := r.checks.Find(ctx, token)
	switch {
	case err == nil:
		if c.State == models.CheckIssued && !in.claimed[c.ID] {
			return c, nil
		}
		return nil, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	seq, ok := checks.ParseSequence(token)
	if !ok {
		return nil, nil
	}
	found, err := r.checks.FindBySequence(ctx, seq)
	if err != nil {
		return nil, err
	}
	var issued []models.Check
	for _, c := range found {
		if c.State == models.CheckIssued && !in.claimed[c.ID] {
			issued = append(issued, c)
		}
	}
	if len(issued) != 1 {
		return nil, nil
	}
	return &issued[0], nil
}

// matchAmount handles the unique-amount fallback and, when several payables
// survive, the ambiguous outcome.
func (r *Resolver) matchAmount(ctx context.Context, in *matchInput) (*Decision, error) {
	found, err := r.payables.FindUnpaid(ctx, models.PayableFilter{
		Kinds:  []models.PayableKind{models.PayableInvoice, models.PayablePayroll},
		Amount: models.Around(in.amount, r.cfg.DocumentTolerance),
	})
	if err != nil {
		return nil, err
	}
	found = eligible(in, found)
	if len(found) == 0 {
		return nil, nil
	}

	candidates, named := r.filterByName(in.refs.Counterparty, found)
	if len(candidates) == 0 {
		// the description names someone none of these payables belong to
		r.logger.WithFields(logrus.Fields{
			"movement":     in.movement.ID,
			"counterparty": in.refs.Counterparty,
			"payables":     len(found),
		}).Debug("amount matches but counterparty does not")
		return nil, nil
	}

	if len(candidates) > 1 {
		reason := "same amount"
		if named {
			reason = "same amount and counterparty"
		}
		return &Decision{
			Outcome:    OutcomeAmbiguous,
			Candidates: r.rankCandidates(in, candidates, reason),
			Reason:     fmt.Sprintf("%d payables for %s", len(candidates), in.amount.StringFixed(2)),
		}, nil
	}

	p := candidates[0]
	if !named && !r.closeInTime(in.movement.Date, p.DocumentDate) {
		return &Decision{
			Outcome:    OutcomeAmbiguous,
			Candidates: r.rankCandidates(in, candidates, "amount only, document date far from movement"),
			Reason:     "amount-only match outside date window",
		}, nil
	}

	d := &Decision{
		Outcome: OutcomeMatched,
		Method:  models.MethodAmountUnique,
		Target:  p.ID,
		Payable: &p,
		Reason:  "unique amount",
	}
	if named {
		d.Reason = "unique amount and counterparty"
	}

	if in.refs.CheckNumber != "" && in.direction == models.DirectionDebit {
		c, err := r.findIssuedCheck(ctx, in, in.refs.CheckNumber)
		if err != nil {
			return nil, err
		}
		if c != nil {
			d.Check = c
		} else {
			r.logger.WithFields(logrus.Fields{
				"movement": in.movement.ID,
				"check":    in.refs.CheckNumber,
			}).Debug("check number quoted but no issued check found")
		}
	}
	return d, nil
}

func (r *Resolver) closeInTime(movementDate, documentDate time.Time) bool {
	m, d := models.Civil(movementDate), models.Civil(documentDate)
	earliest := m.AddDate(0, 0, -r.cfg.PureAmountMaxDays)
	latest := m.AddDate(0, 0, r.cfg.PureAmountMaxDaysAfter)
	return !d.Before(earliest) && !d.After(latest)
}

func (r *Resolver) matchTaxPayment(ctx context.Context, in *matchInput) (*Decision, error) {
	if in.refs.TaxMarker == "" || in.direction != models.DirectionDebit {
		return nil, nil
	}
	found, err := r.payables.FindUnpaid(ctx, models.PayableFilter{
		Kinds:  []models.PayableKind{models.PayableTaxFiling},
		Amount: models.Around(in.amount, r.cfg.DocumentTolerance),
	})
	if err != nil {
		return nil, err
	}
	found = eligible(in, found)
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		p := found[0]
		return &Decision{
			Outcome: OutcomeMatched,
			Method:  models.MethodTaxPayment,
			Target:  p.ID,
			Payable: &p,
			Reason:  "F24 " + p.Amount.StringFixed(2),
		}, nil
	default:
		return &Decision{
			Outcome:    OutcomeAmbiguous,
			Candidates: r.rankCandidates(in, found, "tax filing with same amount"),
			Reason:     fmt.Sprintf("%d tax filings for %s", len(found), in.amount.StringFixed(2)),
		}, nil
	}
}

// matchPOS pairs a card settlement credit with the takings it pays out. The
// windows tried in order are: batches settling on the movement date; for a
// credit right after a weekend, the Friday-Sunday takings; both together.
func (r *Resolver) matchPOS(ctx context.Context, in *matchInput) (*Decision, error) {
	if in.direction != models.DirectionCredit {
		return nil, nil
	}
	x := models.Civil(in.movement.Date)
	if wd := x.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, nil
	}

	var sameDay []models.SettlementBatch
	if dates := r.calendar.PaymentDatesSettlingOn(x); len(dates) > 0 {
		batches, err := r.unclaimedBatches(ctx, in, dates[0], dates[len(dates)-1])
		if err != nil {
			return nil, err
		}
		for _, b := range batches {
			if r.calendar.SettlementDate(b.Date).Date.Equal(x) {
				sameDay = append(sameDay, b)
			}
		}
		if d := r.posDecision(in, sameDay, models.MethodPOSSettlement, "settles on movement date"); d != nil {
			return d, nil
		}
	}

	if !r.calendar.FollowsWeekend(x) {
		return nil, nil
	}
	span := calendar.WeekendSpan(x)
	weekend, err := r.unclaimedBatches(ctx, in, span.From, span.To)
	if err != nil {
		return nil, err
	}
	if d := r.posDecision(in, weekend, models.MethodPOSWeekend, "weekend takings "+span.From.Format("2006-01-02")+" to "+span.To.Format("2006-01-02")); d != nil {
		return d, nil
	}

	union := mergeBatches(sameDay, weekend)
	if len(union) > len(weekend) && len(union) > len(sameDay) {
		if d := r.posDecision(in, union, models.MethodPOSWeekend, "weekend and next-day takings"); d != nil {
			return d, nil
		}
	}
	return nil, nil
}

func (r *Resolver) unclaimedBatches(ctx context.Context, in *matchInput, from, to time.Time) ([]models.SettlementBatch, error) {
	batches, err := r.settlements.ListUnreconciled(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := batches[:0:0]
	for _, b := range batches {
		if !in.claimed[b.ID] && !b.Reconciled {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *Resolver) posDecision(in *matchInput, batches []models.SettlementBatch, method models.MatchMethod, reason string) *Decision {
	if len(batches) == 0 {
		return nil
	}
	total := decimal.Zero
	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		total = total.Add(b.Amount.Round(2))
		ids = append(ids, b.ID)
	}
	if !withinTolerance(total, in.amount, r.cfg.POSTolerance) {
		return nil
	}
	return &Decision{
		Outcome: OutcomeMatched,
		Method:  method,
		Target:  strings.Join(ids, ","),
		Batches: batches,
		Reason:  fmt.Sprintf("%s, %d batch(es) totalling %s", reason, len(batches), total.StringFixed(2)),
	}
}

func mergeBatches(a, b []models.SettlementBatch) []models.SettlementBatch {
	seen := make(map[string]bool, len(a)+len(b))
	var out []models.SettlementBatch
	for _, list := range [][]models.SettlementBatch{a, b} {
		for _, x := range list {
			if !seen[x.ID] {
				seen[x.ID] = true
				out = append(out, x)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (r *Resolver) matchCashDeposit(ctx context.Context, in *matchInput) (*Decision, error) {
	if in.direction != models.DirectionCredit || !r.mentionsDeposit(in.movement.Description) {
		return nil, nil
	}
	entries, err := r.cash.FindUnreconciledDeposits(ctx, models.Civil(in.movement.Date))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if in.claimed[e.ID] || e.Reconciled || e.Kind != models.CashEntryDeposit {
			continue
		}
		if withinTolerance(e.Amount.Abs(), in.amount, r.cfg.CashTolerance) {
			e := e
			return &Decision{
				Outcome:   OutcomeMatched,
				Method:    models.MethodCashDeposit,
				Target:    e.ID,
				CashEntry: &e,
				Reason:    "cash deposit " + e.Amount.StringFixed(2),
			}, nil
		}
	}
	return nil, nil
}

var spaces = regexp.MustCompile(`\s+`)

func (r *Resolver) mentionsDeposit(description string) bool {
	desc := " " + spaces.ReplaceAllString(strings.ToUpper(description), " ") + " "
	for _, k := range r.cfg.DepositKeywords {
		if strings.Contains(desc, " "+strings.ToUpper(k)) {
			return true
		}
	}
	return false
}
