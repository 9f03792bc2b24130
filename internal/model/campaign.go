package model

import "time"

type Campaign struct {
	ID                       int       `db:"id"                          json:"id"`
	Name                     string    `db:"name"                        json:"name"`
	StartDate                time.Time `db:"start_date"                  json:"start_date"`
	EndDate                  time.Time `db:"end_date"                    json:"end_date"`
	Priority                 int       `db:"priority"                    json:"priority"`
	Region                   *string   `db:"region"                      json:"region,omitempty"`
	TimeSlot                 *string   `db:"time_slot"                   json:"time_slot,omitempty"`
	BackgroundAudioContentID *int      `db:"background_audio_content_id" json:"background_audio_content_id,omitempty"`
	CreatedBy                int       `db:"created_by"                  json:"created_by"`
	CreatedAt                time.Time `db:"created_at"                  json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at"                  json:"updated_at"`

	Contents        []CampaignContent `db:"-" json:"contents,omitempty"`
	BackgroundAudio *Content          `db:"-" json:"background_audio,omitempty"`
}

// CampaignContent links a content item into a campaign at a fixed position.
type CampaignContent struct {
	ID               int     `db:"id"                json:"id"`
	CampaignID       int     `db:"campaign_id"       json:"campaign_id"`
	ContentID        int     `db:"content_id"        json:"content_id"`
	OrderIndex       int     `db:"order_index"       json:"order_index"`
	DurationOverride *int    `db:"duration_override" json:"duration_override,omitempty"`
	Content          Content `db:"-"                 json:"content"`
}
