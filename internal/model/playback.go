package model

import "time"

type PlaybackStatus string

const (
	PlaybackPlaying PlaybackStatus = "playing"
	PlaybackPaused  PlaybackStatus = "paused"
	PlaybackIdle    PlaybackStatus = "idle"
	PlaybackError   PlaybackStatus = "error"
)

type PlaybackEventType string

const (
	EventPlaybackStart  PlaybackEventType = "playback_start"
	EventPlaybackEnd    PlaybackEventType = "playback_end"
	EventHeartbeat      PlaybackEventType = "heartbeat"
	EventContentChange  PlaybackEventType = "content_change"
	EventError          PlaybackEventType = "error"
	EventPlaybackPaused PlaybackEventType = "playback_paused"
)

func (t PlaybackEventType) Valid() bool {
	switch t {
	case EventPlaybackStart, EventPlaybackEnd, EventHeartbeat,
		EventContentChange, EventError, EventPlaybackPaused:
		return true
	}
	return false
}

// PlaybackEvent is a telemetry report sent by a player.
type PlaybackEvent struct {
	Type          PlaybackEventType `json:"type"`
	ContentID     *int              `json:"content_id,omitempty"`
	ContentTitle  string            `json:"content_title,omitempty"`
	CampaignID    *int              `json:"campaign_id,omitempty"`
	CampaignTitle string            `json:"campaign_title,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds,omitempty"`
	Error         string            `json:"error,omitempty"`
	At            time.Time         `json:"at"`
}

// PlaybackSession is the derived view of what a player is currently doing.
type PlaybackSession struct {
	PlayerID      int            `json:"player_id"`
	SessionID     string         `json:"session_id,omitempty"`
	ContentID     *int           `json:"content_id,omitempty"`
	ContentTitle  string         `json:"content_title,omitempty"`
	CampaignID    *int           `json:"campaign_id,omitempty"`
	CampaignTitle string         `json:"campaign_title,omitempty"`
	Status        PlaybackStatus `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	LastError     string         `json:"last_error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	LastUpdate    time.Time      `json:"last_update"`
}
