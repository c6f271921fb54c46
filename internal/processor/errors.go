package processor

import (
	"errors"
	"fmt"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

var ErrNotCandidate = errors.New("payable is not a candidate of this match")

// DataShapeError reports a movement whose fields cannot be matched.
// The movement is skipped and counted.
type DataShapeError struct {
	MovementID string
	Field      string
	Reason     string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("movement %s: bad %s: %s", e.MovementID, e.Field, e.Reason)
}

// AmbiguityError tells single-movement callers that the movement went to the
// review queue. It is an outcome, not a failure.
type AmbiguityError struct {
	MovementID string
	MatchID    string
	Candidates models.Candidates
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("movement %s has %d candidates, queued as %s", e.MovementID, len(e.Candidates), e.MatchID)
}

// StaleConsistencyError describes a payable marked paid by bank without a
// valid backlink. The repair pass logs and fixes it.
type StaleConsistencyError struct {
	PayableID string
	Method    string
	Reason    string
}

func (e *StaleConsistencyError) Error() string {
	return fmt.Sprintf("payable %s paid by %q: %s", e.PayableID, e.Method, e.Reason)
}
