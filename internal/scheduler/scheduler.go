// Package scheduler implements the CommandQueueItem lifecycle: claim,
// backoff computation, and the terminal dead-letter transition. It
// operates on a model.CommandQueueItem already read by the caller and
// returns the updated value for a lock_version-guarded write; the atomic
// compare-and-set itself lives in internal/infrastructure/postgres,
// keeping pure state-transition math separate from persistence.
package scheduler

import (
	"fmt"
	"math/rand"
	"time"

	"ledger-core/internal/domain/model"
	"ledger-core/internal/pkg/apierr"
)

// ErrAlreadyClaimed is returned by Claim when item is not in a claimable
// status. It carries no side effects; the caller moves on to the next item.
var ErrAlreadyClaimed = apierr.New(apierr.KindStaleClaim, "already_claimed", "queue item is not claimable")

func claimable(status model.QueueStatus) bool {
	switch status {
	case model.QueueStatusPending, model.QueueStatusOCCTimeout, model.QueueStatusFailed:
		return true
	}
	return false
}

// Claim validates item's current status and returns the claimed version:
// status=processing, processor_id/version set, processing_started_at=now.
// retry_count increments only when claiming out of a non-pending state
// (occ_timeout or failed); a pending claim leaves it untouched. Callers
// persist the result with a WHERE lock_version = :old write and translate a
// zero-rows-affected outcome into ErrAlreadyClaimed.
func Claim(item model.CommandQueueItem, processorID, processorVersion string, now time.Time) (model.CommandQueueItem, *apierr.Error) {
	if !claimable(item.Status) {
		return item, ErrAlreadyClaimed
	}
	if item.Status != model.QueueStatusPending {
		item.RetryCount++
	}
	item.Status = model.QueueStatusProcessing
	item.ProcessorID = processorID
	item.ProcessorVersion = processorVersion
	item.ProcessingStartedAt = &now
	item.ProcessingCompletedAt = nil
	item.OCCRetryCount = 0
	item.UpdatedAt = now
	return item, nil
}

// BackoffPolicy configures ComputeBackoff and the dead-letter threshold.
type BackoffPolicy struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
	Rand       func() float64 // overridable for tests; defaults to rand.Float64
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Base <= 0 {
		p.Base = 30 * time.Second
	}
	if p.Max <= 0 {
		p.Max = time.Hour
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 5
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// ComputeBackoff returns clamp(base*2^retryCount, max) plus uniform jitter
// in [1, delay/10+1].
func ComputeBackoff(retryCount int, policy BackoffPolicy) time.Duration {
	policy = policy.withDefaults()
	delay := policy.Base * time.Duration(1<<uint(retryCount))
	if delay > policy.Max || delay <= 0 {
		delay = policy.Max
	}
	jitterRange := float64(delay/10) + 1
	jitter := time.Duration(1 + policy.Rand()*jitterRange)
	return delay + jitter
}

// AppendError appends a QueueError to item's trail in chronological order.
func AppendError(item model.CommandQueueItem, message string, now time.Time) model.CommandQueueItem {
	item.Errors = append(item.Errors, model.QueueError{Message: message, InsertedAt: now})
	item.UpdatedAt = now
	return item
}

// TransitionFailed handles an unexpected-error outcome: append the error,
// and either schedule a pending retry with exponential backoff or, once
// retry_count reaches policy.MaxRetries, transition to dead_letter.
func TransitionFailed(item model.CommandQueueItem, reason string, policy BackoffPolicy, now time.Time) model.CommandQueueItem {
	policy = policy.withDefaults()
	item = AppendError(item, reason, now)

	if item.RetryCount >= policy.MaxRetries {
		item.Status = model.QueueStatusDeadLetter
		item = AppendError(item, fmt.Sprintf("Max retry count (%d) exceeded: %s", policy.MaxRetries, reason), now)
		item.ProcessingCompletedAt = &now
		return item
	}

	item.Status = model.QueueStatusFailed
	next := now.Add(ComputeBackoff(item.RetryCount, policy))
	item.NextRetryAfter = &next
	return item
}

// TransitionOCCTimeout records OCC exhaustion and schedules a pending
// retry; it does not count toward retry_count's dead-letter threshold
// since occ_retry_count is independent and resets on each fresh claim.
func TransitionOCCTimeout(item model.CommandQueueItem, reason string, policy BackoffPolicy, now time.Time) model.CommandQueueItem {
	policy = policy.withDefaults()
	item = AppendError(item, reason, now)
	item.Status = model.QueueStatusOCCTimeout
	next := now.Add(ComputeBackoff(item.RetryCount, policy))
	item.NextRetryAfter = &next
	return item
}

// TransitionProcessed marks item as successfully projected.
func TransitionProcessed(item model.CommandQueueItem, now time.Time) model.CommandQueueItem {
	item.Status = model.QueueStatusProcessed
	item.ProcessingCompletedAt = &now
	item.UpdatedAt = now
	return item
}

// TransitionDeadLetter marks item as terminally unprocessable, for
// validation failures that no retry could fix.
func TransitionDeadLetter(item model.CommandQueueItem, reason string, now time.Time) model.CommandQueueItem {
	item = AppendError(item, reason, now)
	item.Status = model.QueueStatusDeadLetter
	item.ProcessingCompletedAt = &now
	return item
}
