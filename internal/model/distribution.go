package model

import "time"

type DistributionStatus string

const (
	DistributionPending     DistributionStatus = "pending"
	DistributionDownloading DistributionStatus = "downloading"
	DistributionCompleted   DistributionStatus = "completed"
	DistributionFailed      DistributionStatus = "failed"
	DistributionCancelled   DistributionStatus = "cancelled"
)

// ContentDistribution tracks delivery of one content item's bytes to one
// player. DownloadSpeed is in bytes per second.
type ContentDistribution struct {
	ID               int                `db:"id"                json:"id"`
	ContentID        int                `db:"content_id"        json:"content_id"`
	PlayerID         int                `db:"player_id"         json:"player_id"`
	Status           DistributionStatus `db:"status"            json:"status"`
	Priority         int                `db:"priority"          json:"priority"`
	DownloadProgress int                `db:"download_progress" json:"download_progress"`
	BytesDownloaded  int64              `db:"bytes_downloaded"  json:"bytes_downloaded"`
	FileSizeBytes    int64              `db:"file_size_bytes"   json:"file_size_bytes"`
	DownloadSpeed    float64            `db:"download_speed"    json:"download_speed"`
	RetryCount       int                `db:"retry_count"       json:"retry_count"`
	MaxRetries       int                `db:"max_retries"       json:"max_retries"`
	LastError        *string            `db:"last_error"        json:"last_error,omitempty"`
	ScheduledFor     *time.Time         `db:"scheduled_for"     json:"scheduled_for,omitempty"`
	ExpiresAt        *time.Time         `db:"expires_at"        json:"expires_at,omitempty"`
	StartedAt        *time.Time         `db:"started_at"        json:"started_at,omitempty"`
	CompletedAt      *time.Time         `db:"completed_at"      json:"completed_at,omitempty"`
	NextRetryAt      *time.Time         `db:"next_retry_at"     json:"next_retry_at,omitempty"`
	CreatedAt        time.Time          `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at"        json:"updated_at"`
}

// Availability describes whether a playlist item's bytes are on the player.
type Availability string

const (
	// AvailabilityStreaming means no offline copy was requested.
	AvailabilityStreaming     Availability = "streaming"
	AvailabilityPending       Availability = "pending"
	AvailabilityDownloading   Availability = "downloading"
	AvailabilityAvailable     Availability = "available"
	AvailabilityFailed        Availability = "failed"
	AvailabilityUndeliverable Availability = "undeliverable"
	AvailabilityCancelled     Availability = "cancelled"
	AvailabilityExpired       Availability = "expired"
)
