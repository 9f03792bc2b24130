package model

import (
	"strconv"
	"time"
)

const PlatformCast = "cast"

// Player represents a display device in the system.
type Player struct {
	ID             int       `db:"id"               json:"id"`
	Name           string    `db:"name"             json:"name"`
	MACAddress     *string   `db:"mac_address"      json:"mac_address,omitempty"`
	IPAddress      *string   `db:"ip_address"       json:"ip_address,omitempty"`
	Platform       string    `db:"platform"         json:"platform"`
	CastDeviceID   *string   `db:"cast_device_id"   json:"cast_device_id,omitempty"`
	CastDeviceName *string   `db:"cast_device_name" json:"cast_device_name,omitempty"`
	LastPing       Timestamp `db:"last_ping"        json:"last_ping"`
	LastVerifiedAt Timestamp `db:"last_verified_at" json:"last_verified_at"`

	CurrentContentID      *int       `db:"current_content_id"      json:"current_content_id,omitempty"`
	CurrentContentTitle   *string    `db:"current_content_title"   json:"current_content_title,omitempty"`
	CurrentCampaignID     *int       `db:"current_campaign_id"     json:"current_campaign_id,omitempty"`
	CurrentCampaignTitle  *string    `db:"current_campaign_title"  json:"current_campaign_title,omitempty"`
	IsPlaying             bool       `db:"is_playing"              json:"is_playing"`
	PlaybackStartTime     *time.Time `db:"playback_start_time"     json:"playback_start_time,omitempty"`
	LastPlaybackHeartbeat *time.Time `db:"last_playback_heartbeat" json:"last_playback_heartbeat,omitempty"`

	StorageCapacityBytes int64 `db:"storage_capacity_bytes" json:"storage_capacity_bytes"`
	StorageUsedBytes     int64 `db:"storage_used_bytes"     json:"storage_used_bytes"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DeviceKey identifies the player on the messaging channel.
func (p Player) DeviceKey() string {
	if p.MACAddress != nil && *p.MACAddress != "" {
		return *p.MACAddress
	}
	return "player-" + strconv.Itoa(p.ID)
}

// ClearPlayback resets the current-playback fields.
func (p *Player) ClearPlayback() {
	p.CurrentContentID = nil
	p.CurrentContentTitle = nil
	p.CurrentCampaignID = nil
	p.CurrentCampaignTitle = nil
	p.IsPlaying = false
	p.PlaybackStartTime = nil
}
