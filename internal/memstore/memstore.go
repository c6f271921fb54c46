// Package memstore keeps every collaborator collection in memory. It backs
// the engine tests and small single-process runs.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// Store holds the data; the exported fields are per-collection views.
type Store struct {
	mu sync.Mutex

	// Now stamps job updates.
	Now func() time.Time

	movements []models.BankMovement
	payables  []models.Payable
	checks    []models.Check
	ambiguous []models.AmbiguousMatch
	batches   []models.SettlementBatch
	cash      []models.CashEntry
	defaults  map[string]*string
	runs      map[string]models.Run
	imports   []models.StatementImport
	jobs      []models.Job

	Movements      *Movements
	Payables       *Payables
	Checks         *Checks
	Ambiguous      *Ambiguous
	Settlements    *Settlements
	Cash           *Cash
	Counterparties *Counterparties
	Runs           *Runs
	Imports        *Imports
	Jobs           *Jobs
}

func New() *Store {
	s := &Store{
		Now:      time.Now,
		defaults: make(map[string]*string),
		runs:     make(map[string]models.Run),
	}
	s.Movements = &Movements{s}
	s.Payables = &Payables{s}
	s.Checks = &Checks{s}
	s.Ambiguous = &Ambiguous{s}
	s.Settlements = &Settlements{s}
	s.Cash = &Cash{s}
	s.Counterparties = &Counterparties{s}
	s.Runs = &Runs{s}
	s.Imports = &Imports{s}
	s.Jobs = &Jobs{s}
	return s
}

// AddPayable appends a payable, assigning its position when unset.
func (s *Store) AddPayable(p models.Payable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Position == 0 {
		p.Position = len(s.payables) + 1
	}
	s.payables = append(s.payables, p)
}

func (s *Store) AddCheck(c models.Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, c)
}

func (s *Store) AddBatch(b models.SettlementBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
}

func (s *Store) AddCashEntry(e models.CashEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash = append(s.cash, e)
}

// SetDefaultMethod records a counterparty's usual payment method.
func (s *Store) SetDefaultMethod(counterpartyID string, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[counterpartyID] = &method
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// Movements implements the movement store.
type Movements struct{ s *Store }

func (m *Movements) ListUnreconciled(_ context.Context) ([]models.BankMovement, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.BankMovement
	for _, mv := range m.s.movements {
		if mv.Status == models.MovementUnreconciled {
			out = append(out, mv)
		}
	}
	sortMovements(out)
	return out, nil
}

// List returns every movement in listing order, optionally limited to one import.
func (m *Movements) List(_ context.Context, importID string) ([]models.BankMovement, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.BankMovement
	for _, mv := range m.s.movements {
		if importID == "" || mv.ImportID == importID {
			out = append(out, mv)
		}
	}
	sortMovements(out)
	return out, nil
}

func sortMovements(list []models.BankMovement) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.Before(list[j].Date)
		}
		if list[i].Position != list[j].Position {
			return list[i].Position < list[j].Position
		}
		return list[i].ID < list[j].ID
	})
}

func (m *Movements) Get(_ context.Context, id string) (*models.BankMovement, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, mv := range m.s.movements {
		if mv.ID == id {
			return &mv, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *Movements) MarkReconciled(_ context.Context, id string, status models.MovementStatus, method models.MatchMethod, target *string, runID *string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.movements {
		mv := &m.s.movements[i]
		if mv.ID != id {
			continue
		}
		if mv.Status != models.MovementUnreconciled {
			return models.ErrAlreadyReconciled
		}
		mv.Status = status
		mv.MatchMethod = &method
		mv.MatchTarget = target
		mv.RunID = runID
		mv.ReconciledAt = timePtr(at)
		return nil
	}
	return models.ErrNotFound
}

func (m *Movements) ResetAll(_ context.Context) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for i := range m.s.movements {
		mv := &m.s.movements[i]
		if mv.Status == models.MovementUnreconciled && mv.MatchMethod == nil {
			continue
		}
		mv.Status = models.MovementUnreconciled
		mv.MatchMethod = nil
		mv.MatchTarget = nil
		mv.RunID = nil
		mv.ReconciledAt = nil
		n++
	}
	return n, nil
}

// InsertMany skips movements whose id already exists.
func (m *Movements) InsertMany(_ context.Context, movements []models.BankMovement) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	seen := make(map[string]bool, len(m.s.movements))
	for _, mv := range m.s.movements {
		seen[mv.ID] = true
	}
	n := 0
	for _, mv := range movements {
		if seen[mv.ID] {
			continue
		}
		if mv.Status == "" {
			mv.Status = models.MovementUnreconciled
		}
		if mv.Direction == "" {
			mv.Direction = models.DirectionOf(mv.Amount)
		}
		seen[mv.ID] = true
		m.s.movements = append(m.s.movements, mv)
		n++
	}
	return n, nil
}

// Payables implements the payable store.
type Payables struct{ s *Store }

func (p *Payables) FindUnpaid(_ context.Context, f models.PayableFilter) ([]models.Payable, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []models.Payable
	for _, pay := range p.s.payables {
		if pay.Paid || !matchesFilter(pay, f) {
			continue
		}
		out = append(out, pay)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func matchesFilter(p models.Payable, f models.PayableFilter) bool {
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if p.Kind == k {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Number != nil && !p.HasNumber(*f.Number) {
		return false
	}
	if f.Amount != nil && !f.Amount.Contains(p.Amount.Abs().Round(2)) {
		return false
	}
	if f.CounterpartyID != nil && (p.CounterpartyID == nil || *p.CounterpartyID != *f.CounterpartyID) {
		return false
	}
	return true
}

func (p *Payables) Get(_ context.Context, id string) (*models.Payable, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, pay := range p.s.payables {
		if pay.ID == id {
			return &pay, nil
		}
	}
	return nil, models.ErrNotFound
}

// List returns every payable in insertion order.
func (p *Payables) List(_ context.Context) ([]models.Payable, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return append([]models.Payable(nil), p.s.payables...), nil
}

func (p *Payables) MarkPaid(_ context.Context, id string, pay models.Payment) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for i := range p.s.payables {
		r := &p.s.payables[i]
		if r.ID != id {
			continue
		}
		if r.Paid {
			return models.ErrAlreadyPaid
		}
		r.PreviousPaymentMethod = r.PaymentMethod
		r.Paid = true
		r.PaymentMethod = strPtr(pay.Method)
		r.PaymentDate = timePtr(pay.Date)
		r.ReconciliationSourceID = strPtr(pay.SourceMovementID)
		r.ConfirmedMatchID = pay.ConfirmedMatchID
		return nil
	}
	return models.ErrNotFound
}

func (p *Payables) ResetPaymentFields(_ context.Context, id string, method *string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for i := range p.s.payables {
		r := &p.s.payables[i]
		if r.ID != id {
			continue
		}
		r.Paid = false
		r.PaymentMethod = method
		r.PaymentDate = nil
		r.ReconciliationSourceID = nil
		r.ConfirmedMatchID = nil
		r.PreviousPaymentMethod = nil
		return nil
	}
	return models.ErrNotFound
}

func (p *Payables) ListPaidWithMethods(_ context.Context, methods []string) ([]models.Payable, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []models.Payable
	for _, r := range p.s.payables {
		if !r.Paid || r.PaymentMethod == nil {
			continue
		}
		for _, m := range methods {
			if strings.EqualFold(strings.TrimSpace(*r.PaymentMethod), m) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (p *Payables) ResetEngineClaims(_ context.Context) (int, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	n := 0
	for i := range p.s.payables {
		r := &p.s.payables[i]
		if r.ReconciliationSourceID == nil && r.ConfirmedMatchID == nil {
			continue
		}
		r.Paid = false
		r.PaymentMethod = r.PreviousPaymentMethod
		r.PaymentDate = nil
		r.ReconciliationSourceID = nil
		r.ConfirmedMatchID = nil
		r.PreviousPaymentMethod = nil
		n++
	}
	return n, nil
}

// Checks implements both the engine's and the lifecycle service's check store.
type Checks struct{ s *Store }

func (c *Checks) ExistingNumbers(_ context.Context, numbers []string) ([]string, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.existing(numbers), nil
}

func (c *Checks) existing(numbers []string) []string {
	have := make(map[string]bool, len(c.s.checks))
	for _, ch := range c.s.checks {
		have[ch.Number] = true
	}
	var out []string
	for _, n := range numbers {
		if have[n] {
			out = append(out, n)
		}
	}
	return out
}

func (c *Checks) CreateBatch(_ context.Context, batch []models.Check) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	numbers := make([]string, 0, len(batch))
	for _, ch := range batch {
		numbers = append(numbers, ch.Number)
	}
	if conflicts := c.existing(numbers); len(conflicts) > 0 {
		return &checks.DuplicateBatchError{Conflicts: conflicts}
	}
	c.s.checks = append(c.s.checks, batch...)
	return nil
}

func (c *Checks) Get(_ context.Context, id string) (*models.Check, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, ch := range c.s.checks {
		if ch.ID == id {
			return &ch, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *Checks) Find(_ context.Context, numberOrID string) (*models.Check, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, ch := range c.s.checks {
		if ch.ID == numberOrID || ch.Number == numberOrID {
			return &ch, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *Checks) FindBySequence(_ context.Context, sequence int64) ([]models.Check, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var out []models.Check
	for _, ch := range c.s.checks {
		if ch.Sequence == sequence {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *Checks) UpdateState(_ context.Context, ch *models.Check) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for i := range c.s.checks {
		if c.s.checks[i].ID == ch.ID {
			c.s.checks[i] = *ch
			return nil
		}
	}
	return models.ErrNotFound
}

func (c *Checks) ResetCleared(_ context.Context) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n := 0
	for i := range c.s.checks {
		ch := &c.s.checks[i]
		if ch.State != models.CheckCleared || ch.ClearedByMovementID == nil {
			continue
		}
		ch.State = models.CheckIssued
		ch.ClearedByMovementID = nil
		ch.ClearedAt = nil
		if ch.PayableLinkedByRun {
			ch.PayableID = nil
			ch.PayableLinkedByRun = false
		}
		n++
	}
	return n, nil
}

// Ambiguous implements the review queue store.
type Ambiguous struct{ s *Store }

func (a *Ambiguous) Create(_ context.Context, m *models.AmbiguousMatch) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.ambiguous = append(a.s.ambiguous, *m)
	return nil
}

func (a *Ambiguous) Get(_ context.Context, id string) (*models.AmbiguousMatch, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, m := range a.s.ambiguous {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (a *Ambiguous) List(_ context.Context, status *models.AmbiguousStatus) ([]models.AmbiguousMatch, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []models.AmbiguousMatch
	for _, m := range a.s.ambiguous {
		if status == nil || m.Status == *status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (a *Ambiguous) Resolve(_ context.Context, id string, status models.AmbiguousStatus, chosen *string, at time.Time) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for i := range a.s.ambiguous {
		m := &a.s.ambiguous[i]
		if m.ID != id {
			continue
		}
		if m.Status != models.AmbiguousPending {
			return models.ErrAlreadyResolved
		}
		m.Status = status
		m.ChosenPayableID = chosen
		m.ResolvedAt = timePtr(at)
		return nil
	}
	return models.ErrNotFound
}

func (a *Ambiguous) Reopen(_ context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for i := range a.s.ambiguous {
		m := &a.s.ambiguous[i]
		if m.ID == id && m.Status == models.AmbiguousConfirmed {
			m.Status = models.AmbiguousPending
			m.ChosenPayableID = nil
			m.ResolvedAt = nil
			return nil
		}
	}
	return models.ErrNotFound
}

func (a *Ambiguous) DeletePending(_ context.Context) (int, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	kept := a.s.ambiguous[:0]
	n := 0
	for _, m := range a.s.ambiguous {
		if m.Status == models.AmbiguousPending {
			n++
			continue
		}
		kept = append(kept, m)
	}
	a.s.ambiguous = kept
	return n, nil
}

func (a *Ambiguous) BlockedMovementIDs(_ context.Context, includeRejected bool) (map[string]bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	out := make(map[string]bool)
	for _, m := range a.s.ambiguous {
		if m.Status == models.AmbiguousPending || (m.Status == models.AmbiguousRejected && !includeRejected) {
			out[m.MovementID] = true
		}
	}
	return out, nil
}

// Settlements implements the POS batch store.
type Settlements struct{ s *Store }

func (st *Settlements) ListUnreconciled(_ context.Context, from, to time.Time) ([]models.SettlementBatch, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	from, to = models.Civil(from), models.Civil(to)
	var out []models.SettlementBatch
	for _, b := range st.s.batches {
		d := models.Civil(b.Date)
		if b.Reconciled || d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// List returns every batch.
func (st *Settlements) List(_ context.Context) ([]models.SettlementBatch, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return append([]models.SettlementBatch(nil), st.s.batches...), nil
}

func (st *Settlements) MarkReconciled(_ context.Context, ids []string, movementID string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range st.s.batches {
		b := &st.s.batches[i]
		if want[b.ID] {
			b.Reconciled = true
			b.MovementID = strPtr(movementID)
		}
	}
	return nil
}

func (st *Settlements) ResetAll(_ context.Context) (int, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	n := 0
	for i := range st.s.batches {
		b := &st.s.batches[i]
		if b.Reconciled || b.MovementID != nil {
			b.Reconciled = false
			b.MovementID = nil
			n++
		}
	}
	return n, nil
}

// Cash implements the cash ledger store.
type Cash struct{ s *Store }

func (c *Cash) FindUnreconciledDeposits(_ context.Context, date time.Time) ([]models.CashEntry, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	date = models.Civil(date)
	var out []models.CashEntry
	for _, e := range c.s.cash {
		if !e.Reconciled && e.Kind == models.CashEntryDeposit && models.Civil(e.Date).Equal(date) {
			out = append(out, e)
		}
	}
	return out, nil
}

// List returns every cash entry.
func (c *Cash) List(_ context.Context) ([]models.CashEntry, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return append([]models.CashEntry(nil), c.s.cash...), nil
}

func (c *Cash) MarkReconciled(_ context.Context, id string, movementID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for i := range c.s.cash {
		if c.s.cash[i].ID == id {
			c.s.cash[i].Reconciled = true
			c.s.cash[i].MovementID = strPtr(movementID)
			return nil
		}
	}
	return models.ErrNotFound
}

func (c *Cash) ResetAll(_ context.Context) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n := 0
	for i := range c.s.cash {
		e := &c.s.cash[i]
		if e.Reconciled || e.MovementID != nil {
			e.Reconciled = false
			e.MovementID = nil
			n++
		}
	}
	return n, nil
}

// Counterparties implements the counterparty directory.
type Counterparties struct{ s *Store }

func (c *Counterparties) DefaultPaymentMethod(_ context.Context, counterpartyID string) (*string, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	m, ok := c.s.defaults[counterpartyID]
	if !ok {
		return nil, nil
	}
	v := *m
	return &v, nil
}

// Runs implements the run record store.
type Runs struct{ s *Store }

func (r *Runs) SaveRun(_ context.Context, run *models.Run) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.runs[run.ID] = *run
	return nil
}

func (r *Runs) GetRun(_ context.Context, id string) (*models.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run, ok := r.s.runs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &run, nil
}

// Imports records uploaded statements.
type Imports struct{ s *Store }

func (im *Imports) CreateImport(_ context.Context, rec *models.StatementImport) error {
	im.s.mu.Lock()
	defer im.s.mu.Unlock()
	im.s.imports = append(im.s.imports, *rec)
	return nil
}

func (im *Imports) GetImport(_ context.Context, id string) (*models.StatementImport, error) {
	im.s.mu.Lock()
	defer im.s.mu.Unlock()
	for _, rec := range im.s.imports {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, models.ErrNotFound
}

func (im *Imports) SetRowCount(_ context.Context, id string, rows int) error {
	im.s.mu.Lock()
	defer im.s.mu.Unlock()
	for i := range im.s.imports {
		if im.s.imports[i].ID == id {
			im.s.imports[i].RowCount = rows
			return nil
		}
	}
	return models.ErrNotFound
}

// Jobs is an in-process job queue.
type Jobs struct{ s *Store }

func (j *Jobs) Enqueue(_ context.Context, job *models.Job) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	now := j.s.Now().UTC()
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	j.s.jobs = append(j.s.jobs, *job)
	return nil
}

func (j *Jobs) GetJob(_ context.Context, id string) (*models.Job, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	for _, job := range j.s.jobs {
		if job.ID == id {
			return &job, nil
		}
	}
	return nil, models.ErrNotFound
}

// List returns queued and finished jobs in creation order.
func (j *Jobs) List(_ context.Context) ([]models.Job, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	return append([]models.Job(nil), j.s.jobs...), nil
}

func (j *Jobs) Claim(_ context.Context, stale time.Duration) (*models.Job, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	now := j.s.Now().UTC()
	for i := range j.s.jobs {
		job := &j.s.jobs[i]
		if job.Status == models.JobStatusQueued ||
			(job.Status == models.JobStatusProcessing && job.UpdatedAt.Before(now.Add(-stale))) {
			job.Status = models.JobStatusProcessing
			job.Attempts++
			job.UpdatedAt = now
			claimed := *job
			return &claimed, nil
		}
	}
	return nil, nil
}

func (j *Jobs) Complete(_ context.Context, id string, runID *string) error {
	return j.update(id, func(job *models.Job) {
		job.Status = models.JobStatusCompleted
		job.RunID = runID
	})
}

func (j *Jobs) Fail(_ context.Context, id string, msg string, requeue bool) error {
	return j.update(id, func(job *models.Job) {
		job.Status = models.JobStatusFailed
		if requeue {
			job.Status = models.JobStatusQueued
		}
		job.LastError = strPtr(msg)
	})
}

func (j *Jobs) RecoverStale(_ context.Context, stale time.Duration) (int, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	now := j.s.Now().UTC()
	n := 0
	for i := range j.s.jobs {
		job := &j.s.jobs[i]
		if job.Status == models.JobStatusProcessing && job.UpdatedAt.Before(now.Add(-stale)) {
			job.Status = models.JobStatusQueued
			job.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (j *Jobs) update(id string, fn func(*models.Job)) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	for i := range j.s.jobs {
		if j.s.jobs[i].ID == id {
			fn(&j.s.jobs[i])
			j.s.jobs[i].UpdatedAt = j.s.Now().UTC()
			return nil
		}
	}
	return models.ErrNotFound
}
