package model

import "time"

type LayerType string

const (
	LayerMain    LayerType = "main"
	LayerOverlay LayerType = "overlay"
)

type RepeatType string

const (
	RepeatDaily   RepeatType = "daily"
	RepeatWeekly  RepeatType = "weekly"
	RepeatMonthly RepeatType = "monthly"
)

// Schedule places a campaign on one player for a date range, an optional
// daily window and a recurrence. StartDate and EndDate are civil dates;
// only their year, month and day are meaningful.
type Schedule struct {
	ID             int        `db:"id"              json:"id"`
	CampaignID     int        `db:"campaign_id"     json:"campaign_id"     validate:"gt=0"`
	PlayerID       int        `db:"player_id"       json:"player_id"       validate:"gt=0"`
	StartDate      time.Time  `db:"start_date"      json:"start_date"      validate:"required"`
	EndDate        time.Time  `db:"end_date"        json:"end_date"        validate:"required,gtefield=StartDate"`
	StartTime      *TimeOfDay `db:"start_time"      json:"start_time,omitempty"`
	EndTime        *TimeOfDay `db:"end_time"        json:"end_time,omitempty"`
	DaysOfWeek     Weekdays   `db:"days_of_week"    json:"days_of_week"    validate:"dive,gte=0,lte=6"`
	RepeatType     RepeatType `db:"repeat_type"     json:"repeat_type"     validate:"oneof=daily weekly monthly"`
	RepeatInterval int        `db:"repeat_interval" json:"repeat_interval" validate:"gte=1"`
	Priority       int        `db:"priority"        json:"priority"        validate:"gte=1,lte=10"`
	IsActive       bool       `db:"is_active"       json:"is_active"`
	ContentType    LayerType  `db:"content_type"    json:"content_type"    validate:"oneof=main overlay"`
	IsPersistent   bool       `db:"is_persistent"   json:"is_persistent"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// ScheduleRejection records a schedule that was skipped because its
// configuration could not be evaluated.
type ScheduleRejection struct {
	ScheduleID int    `json:"schedule_id"`
	CampaignID int    `json:"campaign_id"`
	Reason     string `json:"reason"`
}
