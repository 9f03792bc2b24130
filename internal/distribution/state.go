// Package distribution runs the per (content, player) download lifecycle:
// pending, downloading, then completed or failed, with bounded retries and
// cancellation.
package distribution

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

var (
	// ErrConflict is returned for transitions the state machine does not
	// allow. The distribution is left exactly as it was.
	ErrConflict = errors.New("distribution state conflict")

	// ErrRetriesExhausted is returned by Retry once retry_count has
	// reached max_retries.
	ErrRetriesExhausted = errors.New("distribution retries exhausted")

	ErrInvalidRequest = errors.New("invalid distribution request")
)

// TransitionError describes a rejected transition. It matches ErrConflict
// and, for exhausted retries, ErrRetriesExhausted.
type TransitionError struct {
	ID     int
	Op     string
	From   model.DistributionStatus
	Reason string
	cause  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("distribution %d: cannot %s from %s: %s", e.ID, e.Op, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrConflict, e.cause}
	}
	return []error{ErrConflict}
}

func conflict(d *model.ContentDistribution, op, reason string) error {
	return &TransitionError{ID: d.ID, Op: op, From: d.Status, Reason: reason}
}

// Policy controls when a failed distribution becomes eligible for retry.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{InitialDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
}

// RetryDelay returns the wait before retry number attempt (1-based),
// doubling from InitialDelay and capped at MaxDelay.
func (p Policy) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// Start moves a pending distribution to downloading.
func Start(d *model.ContentDistribution, now time.Time) error {
	if d.Status != model.DistributionPending {
		return conflict(d, "start", "only pending distributions can start")
	}
	d.Status = model.DistributionDownloading
	d.StartedAt = &now
	d.UpdatedAt = now
	return nil
}

// UpdateProgress records bytes received so far. Progress never regresses
// and stays below 100 until Complete is called.
func UpdateProgress(d *model.ContentDistribution, bytesDownloaded int64, speed float64, now time.Time) error {
	if d.Status != model.DistributionDownloading {
		return conflict(d, "update progress", "not downloading")
	}
	if bytesDownloaded < 0 || speed < 0 || math.IsNaN(speed) {
		return conflict(d, "update progress", "negative bytes or speed")
	}
	if d.FileSizeBytes > 0 && bytesDownloaded > d.FileSizeBytes {
		return conflict(d, "update progress", fmt.Sprintf("%d bytes exceeds file size %d", bytesDownloaded, d.FileSizeBytes))
	}
	if bytesDownloaded < d.BytesDownloaded {
		return conflict(d, "update progress", fmt.Sprintf("progress regressed from %d to %d bytes", d.BytesDownloaded, bytesDownloaded))
	}

	progress := 0
	if d.FileSizeBytes > 0 {
		progress = int(bytesDownloaded * 100 / d.FileSizeBytes)
	}
	if progress > 99 {
		progress = 99
	}
	if progress < d.DownloadProgress {
		progress = d.DownloadProgress
	}

	d.BytesDownloaded = bytesDownloaded
	d.DownloadSpeed = speed
	d.DownloadProgress = progress
	d.UpdatedAt = now
	return nil
}

// Complete finishes a download. Completing an already completed
// distribution is a no-op.
func Complete(d *model.ContentDistribution, now time.Time) error {
	switch d.Status {
	case model.DistributionCompleted:
		return nil
	case model.DistributionDownloading:
	default:
		return conflict(d, "complete", "not downloading")
	}
	d.Status = model.DistributionCompleted
	d.BytesDownloaded = d.FileSizeBytes
	d.DownloadProgress = 100
	d.CompletedAt = &now
	d.NextRetryAt = nil
	d.UpdatedAt = now
	return nil
}

// Fail records a failed attempt and schedules the earliest retry when one
// is still allowed. Whether to retry stays with the caller.
func Fail(d *model.ContentDistribution, reason string, policy Policy, now time.Time) error {
	if d.Status != model.DistributionPending && d.Status != model.DistributionDownloading {
		return conflict(d, "fail", "distribution is not in progress")
	}
	d.Status = model.DistributionFailed
	d.RetryCount++
	d.LastError = &reason
	d.DownloadSpeed = 0
	d.NextRetryAt = nil
	if CanRetry(d) {
		next := now.Add(policy.RetryDelay(d.RetryCount))
		d.NextRetryAt = &next
	}
	d.UpdatedAt = now
	return nil
}

// Retry re-enters downloading from failed while retries remain. Bytes
// already received are kept so the downloader can resume.
func Retry(d *model.ContentDistribution, now time.Time) error {
	if d.Status != model.DistributionFailed {
		return conflict(d, "retry", "only failed distributions can retry")
	}
	if !CanRetry(d) {
		return &TransitionError{
			ID: d.ID, Op: "retry", From: d.Status,
			Reason: fmt.Sprintf("%d of %d retries used", d.RetryCount, d.MaxRetries),
			cause:  ErrRetriesExhausted,
		}
	}
	d.Status = model.DistributionDownloading
	d.StartedAt = &now
	d.NextRetryAt = nil
	d.UpdatedAt = now
	return nil
}

// Cancel stops a pending or downloading distribution for good.
func Cancel(d *model.ContentDistribution, now time.Time) error {
	if d.Status != model.DistributionPending && d.Status != model.DistributionDownloading {
		return conflict(d, "cancel", "only pending or downloading distributions can be cancelled")
	}
	d.Status = model.DistributionCancelled
	d.DownloadSpeed = 0
	d.NextRetryAt = nil
	d.UpdatedAt = now
	return nil
}

func CanRetry(d *model.ContentDistribution) bool {
	return d.RetryCount < d.MaxRetries
}

// EstimatedTimeRemaining is nil when it cannot be computed.
func EstimatedTimeRemaining(d *model.ContentDistribution) *time.Duration {
	if d.DownloadSpeed <= 0 || d.FileSizeBytes <= 0 {
		return nil
	}
	remaining := d.FileSizeBytes - d.BytesDownloaded
	if remaining < 0 {
		remaining = 0
	}
	eta := time.Duration(float64(remaining) / d.DownloadSpeed * float64(time.Second))
	return &eta
}

// DownloadPercentage is the unrounded share of bytes received.
func DownloadPercentage(d *model.ContentDistribution) float64 {
	if d.FileSizeBytes <= 0 {
		return 0
	}
	return float64(d.BytesDownloaded) / float64(d.FileSizeBytes) * 100
}

// AvailabilityOf reports what a playlist item can rely on. A nil
// distribution means the content is streamed.
func AvailabilityOf(d *model.ContentDistribution, now time.Time) model.Availability {
	if d == nil {
		return model.AvailabilityStreaming
	}
	switch d.Status {
	case model.DistributionCompleted:
		if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
			return model.AvailabilityExpired
		}
		return model.AvailabilityAvailable
	case model.DistributionFailed:
		if !CanRetry(d) {
			return model.AvailabilityUndeliverable
		}
		return model.AvailabilityFailed
	case model.DistributionDownloading:
		return model.AvailabilityDownloading
	case model.DistributionCancelled:
		return model.AvailabilityCancelled
	default:
		return model.AvailabilityPending
	}
}
