/*
pause.go - Delinquency pause/resume sub-protocol

PURPOSE:
  A pause period suspends delinquency aging for a window of days. The
  protocol is deliberately strict:

  Pause:
    - loan must be Active
    - start must be strictly after the current business date
    - the window must not overlap any existing pause

  Resume:
    - there must be an active pause (open-ended or ending in the future)
    - start must equal the current business date exactly
    - resume never carries an end date

  The resumed pause keeps its history: resume sets the end to the resume
  date (end-inclusive freeze), it never deletes the period.
*/
package servicing

import (
	"context"

	"github.com/google/uuid"
)

// Pause creates a new pause period [start, end]. A zero end Date means
// open-ended until resumed.
func (c *Classifier) Pause(ctx context.Context, accountID AccountID, start Date, end *Date) (PausePeriod, error) {
	account, err := c.Store.GetAccount(ctx, accountID)
	if err != nil {
		return PausePeriod{}, err
	}
	if account.Status != StatusActive {
		return PausePeriod{}, &StateConflictError{AccountID: accountID, Status: account.Status, Operation: "pause delinquency"}
	}

	businessDate := c.Clock.BusinessDate()
	if !start.After(businessDate) {
		return PausePeriod{}, &ValidationFailure{
			Code:    "pause_start_not_future",
			Message: "pause start must be strictly after the business date " + businessDate.String(),
		}
	}
	if end != nil && end.Before(start) {
		return PausePeriod{}, &ValidationFailure{Code: "pause_end_before_start", Message: "pause end precedes start"}
	}

	existing, err := c.Store.PausePeriods(ctx, accountID)
	if err != nil {
		return PausePeriod{}, err
	}
	for _, p := range existing {
		if !p.Active {
			continue
		}
		if overlaps(start, end, p) {
			return PausePeriod{}, &PauseOverlapError{AccountID: accountID, Existing: p}
		}
	}

	pause := PausePeriod{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Start:     start,
		End:       end,
		Active:    true,
	}
	if err := c.Store.SavePausePeriod(ctx, pause); err != nil {
		return PausePeriod{}, err
	}
	return pause, nil
}

// Resume closes the currently active pause at start, which must equal the
// business date exactly. Aging resumes the following day (the resume day
// itself remains frozen).
func (c *Classifier) Resume(ctx context.Context, accountID AccountID, start Date) (PausePeriod, error) {
	businessDate := c.Clock.BusinessDate()
	if !start.Equal(businessDate) {
		return PausePeriod{}, &ValidationFailure{
			Code:    "resume_not_business_date",
			Message: "resume start must equal the business date " + businessDate.String(),
		}
	}

	pauses, err := c.Store.PausePeriods(ctx, accountID)
	if err != nil {
		return PausePeriod{}, err
	}

	for _, p := range pauses {
		if !p.Active {
			continue
		}
		// Resumable: open-ended, or still running past the resume date.
		if p.End == nil || p.End.AfterOrEqual(start) {
			p.End = &start
			if err := c.Store.SavePausePeriod(ctx, p); err != nil {
				return PausePeriod{}, err
			}
			return p, nil
		}
	}
	return PausePeriod{}, ErrNoActivePause
}

// overlaps reports whether [start, end] intersects an existing pause.
// Open ends extend to infinity.
func overlaps(start Date, end *Date, p PausePeriod) bool {
	if end != nil && end.Before(p.Start) {
		return false
	}
	if p.End != nil && p.End.Before(start) {
		return false
	}
	return true
}
