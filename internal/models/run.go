package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyPaid       = errors.New("payable already paid")
	ErrAlreadyReconciled = errors.New("movement already reconciled")
	ErrAlreadyResolved   = errors.New("ambiguous match already resolved")
	ErrRunInProgress     = errors.New("another reconciliation run is in progress")
)

type RunKind string

const (
	RunKindReconcile RunKind = "run"
	RunKindReset     RunKind = "reset"
	RunKindRepair    RunKind = "repair"
)

// Run is the persisted record of one reconciliation, reset or repair pass.
type Run struct {
	ID              string     `db:"id" json:"id"`
	Kind            RunKind    `db:"kind" json:"kind"`
	Status          string     `db:"status" json:"status"`
	ProcessedCount  int        `db:"processed_count" json:"processedCount"`
	MatchedCount    int        `db:"matched_count" json:"matchedCount"`
	AmbiguousCount  int        `db:"ambiguous_count" json:"ambiguousCount"`
	CommissionCount int        `db:"commission_count" json:"commissionCount"`
	UnmatchedCount  int        `db:"unmatched_count" json:"unmatchedCount"`
	ErrorCount      int        `db:"error_count" json:"errorCount"`
	Summary         string     `db:"summary" json:"-"`
	StartedAt       time.Time  `db:"started_at" json:"startedAt"`
	CompletedAt     *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

type JobKind string

const (
	JobImport JobKind = "import"
	JobRun    JobKind = "run"
	JobReset  JobKind = "reset"
	JobRepair JobKind = "repair"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is a queued unit of work picked up by the worker.
type Job struct {
	ID              string    `db:"id" json:"id"`
	Kind            JobKind   `db:"kind" json:"kind"`
	ImportID        *string   `db:"import_id" json:"importId,omitempty"`
	FilePath        *string   `db:"file_path" json:"-"`
	IncludeRejected bool      `db:"include_rejected" json:"includeRejected"`
	Status          string    `db:"status" json:"status"`
	Attempts        int       `db:"attempts" json:"attempts"`
	LastError       *string   `db:"last_error" json:"lastError,omitempty"`
	RunID           *string   `db:"run_id" json:"runId,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// StatementImport records an uploaded bank statement file.
type StatementImport struct {
	ID        string    `db:"id" json:"id"`
	Filename  string    `db:"filename" json:"filename"`
	RowCount  int       `db:"row_count" json:"rowCount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
