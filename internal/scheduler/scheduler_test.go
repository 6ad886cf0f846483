package scheduler

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-core/internal/domain/model"
	"ledger-core/internal/pkg/apierr"
)

func TestClaimFromPending(t *testing.T) {
	item := model.CommandQueueItem{ID: uuid.New(), Status: model.QueueStatusPending}
	now := time.Now()
	claimed, aerr := Claim(item, "proc-1", "v1", now)
	require.Nil(t, aerr)
	assert.Equal(t, model.QueueStatusProcessing, claimed.Status)
	assert.Equal(t, "proc-1", claimed.ProcessorID)
	assert.Equal(t, 0, claimed.RetryCount)
	assert.NotNil(t, claimed.ProcessingStartedAt)
}

func TestClaimFromFailedIncrementsRetryCount(t *testing.T) {
	item := model.CommandQueueItem{ID: uuid.New(), Status: model.QueueStatusFailed, RetryCount: 2}
	claimed, aerr := Claim(item, "proc-1", "v1", time.Now())
	require.Nil(t, aerr)
	assert.Equal(t, 3, claimed.RetryCount)
}

func TestClaimRejectsNonClaimableStatus(t *testing.T) {
	item := model.CommandQueueItem{ID: uuid.New(), Status: model.QueueStatusProcessing}
	_, aerr := Claim(item, "proc-1", "v1", time.Now())
	require.NotNil(t, aerr)
	assert.Equal(t, apierr.KindStaleClaim, aerr.Kind)
}

func TestComputeBackoffClampsToMax(t *testing.T) {
	policy := BackoffPolicy{Base: time.Second, Max: 5 * time.Second, Rand: func() float64 { return 0 }}
	d := ComputeBackoff(10, policy) // 2^10 seconds would vastly exceed Max
	assert.LessOrEqual(t, d, 6*time.Second)
}

func TestComputeBackoffGrowsExponentially(t *testing.T) {
	policy := BackoffPolicy{Base: time.Second, Max: time.Hour, Rand: func() float64 { return 0 }}
	d0 := ComputeBackoff(0, policy)
	d1 := ComputeBackoff(1, policy)
	d2 := ComputeBackoff(2, policy)
	assert.Less(t, d0, d1)
	assert.Less(t, d1, d2)
}

func TestTransitionFailedRetriesBeforeDeadLetter(t *testing.T) {
	item := model.CommandQueueItem{ID: uuid.New(), RetryCount: 1}
	policy := BackoffPolicy{MaxRetries: 5, Base: time.Second, Max: time.Minute}
	now := time.Now()
	out := TransitionFailed(item, "boom", policy, now)
	assert.Equal(t, model.QueueStatusFailed, out.Status)
	assert.NotNil(t, out.NextRetryAfter)
	require.Len(t, out.Errors, 1)
}

func TestTransitionFailedDeadLettersAtMaxRetries(t *testing.T) {
	item := model.CommandQueueItem{ID: uuid.New(), RetryCount: 5}
	policy := BackoffPolicy{MaxRetries: 5, Base: time.Second, Max: time.Minute}
	now := time.Now()
	out := TransitionFailed(item, "boom", policy, now)
	assert.Equal(t, model.QueueStatusDeadLetter, out.Status)
	assert.NotNil(t, out.ProcessingCompletedAt)
	require.Len(t, out.Errors, 2)
}

func TestTransitionOCCTimeoutSchedulesRetry(t *testing.T) {
	item := model.CommandQueueItem{ID: uuid.New(), RetryCount: 0}
	policy := BackoffPolicy{MaxRetries: 5, Base: time.Second, Max: time.Minute}
	out := TransitionOCCTimeout(item, "occ exhausted", policy, time.Now())
	assert.Equal(t, model.QueueStatusOCCTimeout, out.Status)
	assert.NotNil(t, out.NextRetryAfter)
}

func TestTransitionProcessedAndDeadLetter(t *testing.T) {
	item := model.CommandQueueItem{ID: uuid.New()}
	now := time.Now()

	processed := TransitionProcessed(item, now)
	assert.Equal(t, model.QueueStatusProcessed, processed.Status)
	assert.NotNil(t, processed.ProcessingCompletedAt)

	dead := TransitionDeadLetter(item, "unrecoverable", now)
	assert.Equal(t, model.QueueStatusDeadLetter, dead.Status)
	require.Len(t, dead.Errors, 1)
}
