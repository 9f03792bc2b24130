package packets

import (
	"time"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// REQUESTS FOR /api/players/:id/events
type PlaybackEventRequest struct {
	Type          string     `json:"type"           binding:"required"`
	ContentID     *int       `json:"content_id"     binding:"omitempty,gt=0"`
	ContentTitle  string     `json:"content_title"`
	CampaignID    *int       `json:"campaign_id"    binding:"omitempty,gt=0"`
	CampaignTitle string     `json:"campaign_title"`
	UptimeSeconds int64      `json:"uptime_seconds" binding:"gte=0"`
	Error         string     `json:"error"`
	At            *time.Time `json:"at"`
}

func (r PlaybackEventRequest) Event() model.PlaybackEvent {
	ev := model.PlaybackEvent{
		Type:          model.PlaybackEventType(r.Type),
		ContentID:     r.ContentID,
		ContentTitle:  r.ContentTitle,
		CampaignID:    r.CampaignID,
		CampaignTitle: r.CampaignTitle,
		UptimeSeconds: r.UptimeSeconds,
		Error:         r.Error,
	}
	if r.At != nil {
		ev.At = *r.At
	}
	return ev
}
