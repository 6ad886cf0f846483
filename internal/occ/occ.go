// Package occ implements the optimistic-concurrency retry wrapper: run a
// unit of posting work inside a database transaction, and on a stale-row
// ("no rows affected" from a lock_version CAS write) conflict, record the
// attempt, sleep k*base_interval, and retry up to max_retries times. It
// uses github.com/cenkalti/backoff/v4's backoff.BackOff interface,
// satisfied here by linearBackOff instead of the library's built-in
// exponential curve, since this retry schedule is a literal k*base
// multiple rather than an exponential one.
package occ

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ledger-core/internal/pkg/apierr"
)

// StaleEntryError signals that a lock_version CAS write affected zero rows.
// Workers return this from a WorkFunc to trigger a retry; any other error
// bubbles out of Retry immediately.
type StaleEntryError struct {
	Resource string
}

func (e *StaleEntryError) Error() string {
	return fmt.Sprintf("stale entry: %s lock_version changed before write", e.Resource)
}

func IsStaleEntry(err error) bool {
	var s *StaleEntryError
	return errors.As(err, &s)
}

// Attempt is one recorded OCC retry event, appended by the caller to the
// queue item's error trail.
type Attempt struct {
	Number     int
	Message    string
	SleptFor   time.Duration
	OccurredAt time.Time
}

// Outcome is the terminal result of a Retry call.
type Outcome struct {
	Result   any
	Attempts []Attempt
	TimedOut bool
}

// Policy configures Retry. MaxRetries defaults to 5 and BaseInterval to
// 200ms when left zero.
type Policy struct {
	MaxRetries   int
	BaseInterval time.Duration
	Now          func() time.Time      // overridable for tests; defaults to time.Now
	Sleep        func(time.Duration)   // overridable for tests; defaults to time.Sleep
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 5
	}
	if p.BaseInterval <= 0 {
		p.BaseInterval = 200 * time.Millisecond
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}

// linearBackOff implements backoff.BackOff with a k*base_interval
// schedule (200/400/600/800/1000ms for the default 200ms base) in place of
// the library's exponential curve.
type linearBackOff struct {
	attempt int
	policy  Policy
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.policy.MaxRetries {
		return backoff.Stop
	}
	return time.Duration(b.attempt) * b.policy.BaseInterval
}

// WorkFunc is a unit of posting work executed within a single database
// transaction. It returns (result, nil) on success, a *StaleEntryError on
// lock_version conflict, or any other error on a non-retryable failure.
type WorkFunc func(ctx context.Context, attempt int) (any, error)

// Retry runs work under Policy's backoff schedule. On stale-entry conflict
// it records an Attempt, invokes onAttempt (so the caller can bump the
// queue item's occ_retry_count and append the error before the next
// sleep), sleeps, and retries up to MaxRetries times. Any other error from
// work returns immediately without retry. Exhausting all retries returns a
// KindOCCConflict apierr.Error with TimedOut set on the Outcome.
func Retry(ctx context.Context, policy Policy, work WorkFunc, onAttempt func(Attempt)) (*Outcome, *apierr.Error) {
	policy = policy.withDefaults()
	bo := &linearBackOff{policy: policy}

	out := &Outcome{}
	attemptNum := 0

	for {
		select {
		case <-ctx.Done():
			return out, apierr.New(apierr.KindUnexpected, "occ_canceled", ctx.Err().Error())
		default:
		}

		attemptNum++
		result, err := work(ctx, attemptNum)
		if err == nil {
			out.Result = result
			return out, nil
		}

		if !IsStaleEntry(err) {
			if apiErr, ok := err.(*apierr.Error); ok {
				return out, apiErr
			}
			return out, apierr.New(apierr.KindUnexpected, "occ_work_failed", err.Error())
		}

		d := bo.NextBackOff()
		remaining := policy.MaxRetries - attemptNum
		attempt := Attempt{
			Number:     attemptNum,
			Message:    fmt.Sprintf("OCC conflict detected on %s, %d attempts left", err.Error(), remaining),
			OccurredAt: policy.Now(),
		}
		out.Attempts = append(out.Attempts, attempt)
		if onAttempt != nil {
			onAttempt(attempt)
		}

		if d == backoff.Stop {
			out.TimedOut = true
			return out, apierr.New(apierr.KindOCCConflict, "occ_timeout", "exhausted all OCC retries")
		}

		out.Attempts[len(out.Attempts)-1].SleptFor = d
		policy.Sleep(d)
	}
}
