package distribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

var t0 = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func downloading(size int64) *model.ContentDistribution {
	return &model.ContentDistribution{
		ID:            1,
		Status:        model.DistributionDownloading,
		FileSizeBytes: size,
		MaxRetries:    3,
	}
}

func TestProgressPercentages(t *testing.T) {
	d := downloading(1000)
	require.NoError(t, UpdateProgress(d, 250, 50, t0))
	assert.Equal(t, 25, d.DownloadProgress)
	assert.Equal(t, 25.0, DownloadPercentage(d))

	require.NoError(t, UpdateProgress(d, 259, 50, t0))
	assert.Equal(t, 25, d.DownloadProgress)
}

func TestProgressNeverRegresses(t *testing.T) {
	d := downloading(1000)
	require.NoError(t, UpdateProgress(d, 600, 10, t0))
	before := *d

	err := UpdateProgress(d, 400, 10, t0.Add(time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, before, *d)
}

func TestProgressRejectsBytesBeyondSize(t *testing.T) {
	d := downloading(1000)
	err := UpdateProgress(d, 1001, 10, t0)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(0), d.BytesDownloaded)
}

func TestFullBytesStayBelowHundredUntilComplete(t *testing.T) {
	d := downloading(1000)
	require.NoError(t, UpdateProgress(d, 1000, 10, t0))
	assert.Equal(t, 99, d.DownloadProgress)
	assert.Equal(t, model.DistributionDownloading, d.Status)

	require.NoError(t, Complete(d, t0))
	assert.Equal(t, 100, d.DownloadProgress)
}

func TestProgressMonotoneAcrossSequence(t *testing.T) {
	d := downloading(7919)
	last := 0
	for b := int64(0); b <= 7919; b += 331 {
		require.NoError(t, UpdateProgress(d, b, 1, t0))
		assert.GreaterOrEqual(t, d.DownloadProgress, last)
		assert.Less(t, d.DownloadProgress, 100)
		last = d.DownloadProgress
	}
}

func TestCompleteSetsFullProgress(t *testing.T) {
	d := downloading(1000)
	require.NoError(t, UpdateProgress(d, 300, 10, t0))
	require.NoError(t, Complete(d, t0))

	assert.Equal(t, model.DistributionCompleted, d.Status)
	assert.Equal(t, 100, d.DownloadProgress)
	assert.Equal(t, d.FileSizeBytes, d.BytesDownloaded)
	require.NotNil(t, d.CompletedAt)

	// idempotent
	before := *d
	require.NoError(t, Complete(d, t0.Add(time.Hour)))
	assert.Equal(t, before, *d)
}

func TestOutOfOrderCompleteRejected(t *testing.T) {
	d := &model.ContentDistribution{ID: 9, Status: model.DistributionPending, FileSizeBytes: 10}
	err := Complete(d, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.DistributionPending, te.From)
	assert.Equal(t, model.DistributionPending, d.Status)
}

func TestStartOnlyFromPending(t *testing.T) {
	d := &model.ContentDistribution{Status: model.DistributionPending}
	require.NoError(t, Start(d, t0))
	assert.Equal(t, model.DistributionDownloading, d.Status)
	require.NotNil(t, d.StartedAt)

	assert.ErrorIs(t, Start(d, t0), ErrConflict)

	d.Status = model.DistributionCompleted
	assert.ErrorIs(t, Start(d, t0), ErrConflict)
}

func TestRetryLimit(t *testing.T) {
	d := downloading(100)
	d.MaxRetries = 3
	d.RetryCount = 1

	require.NoError(t, Fail(d, "stalled", DefaultPolicy(), t0))
	assert.Equal(t, 2, d.RetryCount)
	// retry_count == max_retries - 1: one more attempt allowed
	assert.True(t, CanRetry(d))
	require.NotNil(t, d.NextRetryAt)
	assert.Equal(t, t0.Add(time.Minute), *d.NextRetryAt)

	require.NoError(t, Retry(d, t0))
	require.NoError(t, Fail(d, "stalled again", DefaultPolicy(), t0))
	assert.Equal(t, 3, d.RetryCount)
	assert.False(t, CanRetry(d))
	assert.Nil(t, d.NextRetryAt)

	err := Retry(d, t0)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, model.DistributionFailed, d.Status)
	assert.Equal(t, model.AvailabilityUndeliverable, AvailabilityOf(d, t0))
}

func TestFailFromTerminalRejected(t *testing.T) {
	d := &model.ContentDistribution{Status: model.DistributionCompleted}
	assert.ErrorIs(t, Fail(d, "late", DefaultPolicy(), t0), ErrConflict)
	assert.Equal(t, 0, d.RetryCount)
	assert.Nil(t, d.LastError)
}

func TestCancel(t *testing.T) {
	pending := &model.ContentDistribution{Status: model.DistributionPending}
	require.NoError(t, Cancel(pending, t0))
	assert.Equal(t, model.DistributionCancelled, pending.Status)

	active := downloading(10)
	require.NoError(t, Cancel(active, t0))

	for _, status := range []model.DistributionStatus{
		model.DistributionCompleted, model.DistributionFailed, model.DistributionCancelled,
	} {
		d := &model.ContentDistribution{Status: status}
		assert.ErrorIs(t, Cancel(d, t0), ErrConflict, string(status))
		assert.Equal(t, status, d.Status)
	}
}

func TestEstimatedTimeRemaining(t *testing.T) {
	d := downloading(1000)
	assert.Nil(t, EstimatedTimeRemaining(d))

	require.NoError(t, UpdateProgress(d, 250, 75, t0))
	eta := EstimatedTimeRemaining(d)
	require.NotNil(t, eta)
	assert.Equal(t, 10*time.Second, *eta)

	empty := downloading(0)
	empty.DownloadSpeed = 100
	assert.Nil(t, EstimatedTimeRemaining(empty))
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.RetryDelay(1))
	assert.Equal(t, 2*time.Second, p.RetryDelay(2))
	assert.Equal(t, 4*time.Second, p.RetryDelay(3))
	assert.Equal(t, 5*time.Second, p.RetryDelay(4))
}

func TestAvailability(t *testing.T) {
	assert.Equal(t, model.AvailabilityStreaming, AvailabilityOf(nil, t0))

	expires := t0.Add(-time.Minute)
	d := &model.ContentDistribution{Status: model.DistributionCompleted, ExpiresAt: &expires}
	assert.Equal(t, model.AvailabilityExpired, AvailabilityOf(d, t0))

	d.ExpiresAt = nil
	assert.Equal(t, model.AvailabilityAvailable, AvailabilityOf(d, t0))

	d = &model.ContentDistribution{Status: model.DistributionFailed, RetryCount: 1, MaxRetries: 3}
	assert.Equal(t, model.AvailabilityFailed, AvailabilityOf(d, t0))
}
