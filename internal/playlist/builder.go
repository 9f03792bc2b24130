// Package playlist expands resolved schedules into the ordered content a
// player renders. It performs no I/O.
package playlist

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// DefaultItemDuration is used when neither an override nor the content
// carries a positive duration.
const DefaultItemDuration = 10

type AudioPolicy int

const (
	// AudioAttach loops the campaign's background audio under the playlist.
	AudioAttach AudioPolicy = iota
	// AudioMute drops background audio.
	AudioMute
)

func ParseAudioPolicy(v string) (AudioPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "attach":
		return AudioAttach, nil
	case "mute":
		return AudioMute, nil
	default:
		return AudioAttach, fmt.Errorf("unknown background audio policy %q", v)
	}
}

// Layer is a schedule with its campaign loaded.
type Layer struct {
	Schedule model.Schedule
	Campaign model.Campaign
}

// Build turns the main layer and overlay layers into a Playlist. main may
// be nil, in which case the playlist has no main items and no background
// audio.
func Build(playerID int, main *Layer, overlays []Layer, policy AudioPolicy, at time.Time) model.Playlist {
	pl := model.Playlist{
		PlayerID:           playerID,
		GeneratedAt:        at,
		Items:              []model.PlaylistItem{},
		Overlays:           []model.PlaylistItem{},
		PersistentOverlays: []model.PlaylistItem{},
	}

	if main != nil {
		scheduleID, campaignID := main.Schedule.ID, main.Campaign.ID
		pl.ScheduleID = &scheduleID
		pl.CampaignID = &campaignID
		pl.CampaignName = main.Campaign.Name
		pl.Items = expand(main, model.LayerMain)
		for _, it := range pl.Items {
			pl.TotalDuration += it.Duration
		}
		if audio := main.Campaign.BackgroundAudio; audio != nil && policy == AudioAttach {
			pl.BackgroundAudio = &model.BackgroundAudio{
				ContentID: audio.ID,
				Name:      audio.Name,
				Type:      audio.Type,
				URL:       audio.URL,
				Loop:      true,
				Duration:  pl.TotalDuration,
			}
		}
	}

	for i := range overlays {
		items := expand(&overlays[i], model.LayerOverlay)
		if !overlays[i].Schedule.IsPersistent {
			pl.Overlays = append(pl.Overlays, items...)
			continue
		}
		for _, it := range items {
			it.Persistent = true
			if pl.TotalDuration > 0 {
				// held on screen for the whole main loop
				it.Duration = pl.TotalDuration
			}
			pl.PersistentOverlays = append(pl.PersistentOverlays, it)
		}
	}
	return pl
}

func expand(l *Layer, layer model.LayerType) []model.PlaylistItem {
	contents := make([]model.CampaignContent, len(l.Campaign.Contents))
	copy(contents, l.Campaign.Contents)
	sort.SliceStable(contents, func(i, j int) bool {
		if contents[i].OrderIndex != contents[j].OrderIndex {
			return contents[i].OrderIndex < contents[j].OrderIndex
		}
		return contents[i].ID < contents[j].ID
	})

	items := make([]model.PlaylistItem, 0, len(contents))
	for _, cc := range contents {
		items = append(items, model.PlaylistItem{
			ContentID:  cc.Content.ID,
			CampaignID: l.Campaign.ID,
			ScheduleID: l.Schedule.ID,
			Name:       cc.Content.Name,
			Type:       cc.Content.Type,
			URL:        cc.Content.URL,
			Duration:   EffectiveDuration(cc),
			OrderIndex: cc.OrderIndex,
			Layer:      layer,
		})
	}
	return items
}

// EffectiveDuration is the override when set, else the content default,
// else DefaultItemDuration.
func EffectiveDuration(cc model.CampaignContent) int {
	if cc.DurationOverride != nil && *cc.DurationOverride > 0 {
		return *cc.DurationOverride
	}
	if cc.Content.Duration > 0 {
		return cc.Content.Duration
	}
	return DefaultItemDuration
}
