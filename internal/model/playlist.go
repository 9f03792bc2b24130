package model

import "time"

// Playlist is what a player should be rendering at GeneratedAt. Durations
// are in seconds.
type Playlist struct {
	PlayerID           int                 `json:"player_id"`
	ScheduleID         *int                `json:"schedule_id,omitempty"`
	CampaignID         *int                `json:"campaign_id,omitempty"`
	CampaignName       string              `json:"campaign_name,omitempty"`
	GeneratedAt        time.Time           `json:"generated_at"`
	Items              []PlaylistItem      `json:"items"`
	Overlays           []PlaylistItem      `json:"overlays"`
	PersistentOverlays []PlaylistItem      `json:"persistent_overlays"`
	BackgroundAudio    *BackgroundAudio    `json:"background_audio,omitempty"`
	TotalDuration      int                 `json:"total_duration"`
	Rejected           []ScheduleRejection `json:"rejected,omitempty"`
}

type PlaylistItem struct {
	ContentID    int          `json:"content_id"`
	CampaignID   int          `json:"campaign_id"`
	ScheduleID   int          `json:"schedule_id"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	URL          string       `json:"url"`
	Duration     int          `json:"duration"`
	OrderIndex   int          `json:"order_index"`
	Layer        LayerType    `json:"layer"`
	Persistent   bool         `json:"persistent,omitempty"`
	Availability Availability `json:"availability,omitempty"`
}

// BackgroundAudio loops under the whole main playlist.
type BackgroundAudio struct {
	ContentID int    `json:"content_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Loop      bool   `json:"loop"`
	Duration  int    `json:"duration"`
}

// Empty reports whether there is no main content to show.
func (p Playlist) Empty() bool {
	return len(p.Items) == 0
}

// ItemAt returns the main item on screen at offset into the looping
// playlist and how far into that item the offset falls.
func (p Playlist) ItemAt(offset time.Duration) (*PlaylistItem, time.Duration) {
	if p.TotalDuration <= 0 || len(p.Items) == 0 {
		return nil, 0
	}
	total := time.Duration(p.TotalDuration) * time.Second
	pos := offset % total
	if pos < 0 {
		pos += total
	}
	for i := range p.Items {
		d := time.Duration(p.Items[i].Duration) * time.Second
		if pos < d {
			return &p.Items[i], pos
		}
		pos -= d
	}
	last := len(p.Items) - 1
	return &p.Items[last], 0
}
