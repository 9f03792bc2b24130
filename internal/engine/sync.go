package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Nixie-Tech-LLC/marquee/internal/cast"
	"github.com/Nixie-Tech-LLC/marquee/internal/liveness"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
	"github.com/Nixie-Tech-LLC/marquee/internal/storage"
	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

// SyncResult reports what a sync decided for one player.
type SyncResult struct {
	PlayerID int             `json:"player_id"`
	Kind     string          `json:"kind"`
	Status   liveness.Status `json:"status"`
	Reason   string          `json:"reason"`
	LastSeen *time.Time      `json:"last_seen,omitempty"`

	ETag     string          `json:"etag,omitempty"`
	Pushed   bool            `json:"pushed"`
	Playlist *model.Playlist `json:"playlist,omitempty"`

	DeviceID  string     `json:"device_id,omitempty"`
	CastState cast.State `json:"cast_state,omitempty"`
	MediaURL  string     `json:"media_url,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func (r SyncResult) Online() bool { return r.Status == liveness.StatusOnline }

// device is the per-kind half of a sync. Network players report in on
// their own; cast receivers have to be found and driven.
type device interface {
	// contact records that the player itself called in.
	contact(ctx context.Context, e *Engine, p model.Player) (model.Player, error)
	refresh(ctx context.Context, e *Engine, p model.Player) (SyncResult, error)
}

func deviceFor(p *model.Player) device {
	if liveness.KindOf(p) == liveness.KindCast {
		return castDevice{}
	}
	return networkDevice{}
}

// SyncPlayer is called on behalf of the player. For a network player it is
// a ping followed by a playlist refresh; for a cast player it probes the
// receiver and casts the current item.
func (e *Engine) SyncPlayer(ctx context.Context, playerID int) (SyncResult, error) {
	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return SyncResult{PlayerID: playerID}, fmt.Errorf("load player %d: %w", playerID, err)
	}
	d := deviceFor(&p)
	if p, err = d.contact(ctx, e, p); err != nil {
		return SyncResult{PlayerID: playerID}, err
	}
	return d.refresh(ctx, e, p)
}

// refresh runs the server-driven half of a sync without counting it as
// contact from the player.
func (e *Engine) refresh(ctx context.Context, p model.Player) (SyncResult, error) {
	return deviceFor(&p).refresh(ctx, e, p)
}

func (e *Engine) result(p *model.Player) SyncResult {
	c := e.tracker.Classify(p)
	return SyncResult{PlayerID: p.ID, Kind: c.Kind, Status: c.Status, Reason: c.Reason, LastSeen: c.LastSeen}
}

type networkDevice struct{}

func (networkDevice) contact(ctx context.Context, e *Engine, p model.Player) (model.Player, error) {
	return e.tracker.RecordPing(ctx, p.ID)
}

// refresh pushes the playlist over MQTT when it changed since the last
// push. Offline players are left alone.
func (networkDevice) refresh(ctx context.Context, e *Engine, p model.Player) (SyncResult, error) {
	res := e.result(&p)
	if !res.Online() {
		return res, nil
	}

	pl, err := e.ResolveAndBuild(ctx, p.ID, e.now())
	if err != nil {
		return res, err
	}
	etag, err := ETag(&pl)
	if err != nil {
		return res, err
	}
	res.Playlist = &pl
	res.ETag = etag

	if e.pusher == nil {
		return res, nil
	}
	changed, err := e.cache.SwapETag(ctx, p.ID, etag)
	if err != nil || !changed {
		return res, err
	}
	err = e.pusher.PublishPlaylist(&p, etag, &pl)
	e.metrics.PlaylistPushes.WithLabelValues("mqtt", telemetry.Result(err)).Inc()
	if err != nil {
		// forget the fingerprint so the next sync pushes again
		_ = e.cache.ForgetETag(ctx, p.ID)
		e.logger.Warn().Err(err).Int("player_id", p.ID).Msg("playlist push failed")
		res.Error = err.Error()
		return res, nil
	}
	res.Pushed = true
	e.logger.Info().Int("player_id", p.ID).Str("etag", etag).Int("items", len(pl.Items)).Msg("playlist pushed")
	return res, nil
}

type castDevice struct{}

// contact is a no-op: a cast receiver is only online once discovery finds
// it.
func (castDevice) contact(_ context.Context, _ *Engine, p model.Player) (model.Player, error) {
	return p, nil
}

func (castDevice) refresh(ctx context.Context, e *Engine, p model.Player) (SyncResult, error) {
	deviceID, deviceName := deref(p.CastDeviceID), deref(p.CastDeviceName)
	if e.caster == nil {
		p, err := e.tracker.RecordProbe(ctx, p.ID, false, "")
		res := e.result(&p)
		res.Error = ErrCastDisabled.Error()
		return res, err
	}

	dev, findErr := e.caster.Find(ctx, deviceID, deviceName)
	if findErr != nil {
		// a receiver that could not be reached during discovery is a miss
		p, err := e.tracker.RecordProbe(ctx, p.ID, false, "")
		res := e.result(&p)
		res.Error = findErr.Error()
		e.logger.Warn().Err(findErr).Int("player_id", p.ID).Str("device_id", deviceID).Msg("cast discovery failed")
		return res, err
	}
	found := dev != nil
	var foundID string
	if found {
		foundID = dev.ID
	}
	p, err := e.tracker.RecordProbe(ctx, p.ID, found, foundID)
	if err != nil {
		return e.result(&p), err
	}
	res := e.result(&p)
	if !found {
		e.logger.Info().Int("player_id", p.ID).Str("device_id", deviceID).Msg("cast device not discovered, skipping")
		return res, nil
	}
	res.DeviceID = dev.ID

	pl, err := e.ResolveAndBuild(ctx, p.ID, e.now())
	if err != nil {
		return res, err
	}
	item, offset := pl.ItemAt(e.sinceMidnight())
	if item == nil {
		if info := e.caster.State(dev.ID); info.State == cast.StateCasting {
			if err := e.caster.Disconnect(dev.ID); err != nil {
				e.logger.Warn().Err(err).Str("device_id", dev.ID).Msg("failed to stop idle cast session")
			}
			e.clearPlayback(ctx, p.ID)
		}
		res.CastState = e.caster.State(dev.ID).State
		return res, nil
	}

	info := e.caster.State(dev.ID)
	if info.State == cast.StateCasting && info.MediaURL == item.URL {
		res.CastState, res.MediaURL = info.State, info.MediaURL
		return res, nil
	}
	if info.State != cast.StateConnected && info.State != cast.StateCasting {
		if _, err := e.caster.Connect(ctx, dev.ID, dev.Name); err != nil {
			res.CastState, res.Error = cast.StateError, err.Error()
			return res, err
		}
	}

	req := cast.MediaRequest{
		URL:         item.URL,
		ContentType: mediaType(item),
		Title:       item.Name,
		Metadata:    map[string]string{"campaign": pl.CampaignName},
	}
	if err := e.caster.LoadMedia(ctx, dev.ID, req); err != nil {
		res.CastState, res.Error = cast.StateError, err.Error()
		e.applyInternal(ctx, p.ID, model.PlaybackEvent{Type: model.EventError, Error: err.Error()})
		return res, err
	}

	ev := model.PlaybackEvent{Type: model.EventContentChange, ContentTitle: item.Name, CampaignTitle: pl.CampaignName}
	if _, open := e.sessions.Get(p.ID); !open {
		ev.Type = model.EventPlaybackStart
	}
	contentID, campaignID := item.ContentID, item.CampaignID
	ev.ContentID, ev.CampaignID = &contentID, &campaignID
	e.applyInternal(ctx, p.ID, ev)

	e.logger.Info().
		Int("player_id", p.ID).
		Str("device_id", dev.ID).
		Str("title", item.Name).
		Dur("offset", offset).
		Msg("cast media loaded")
	res.CastState, res.MediaURL = cast.StateCasting, item.URL
	return res, nil
}

// applyInternal records a playback change the engine observed itself.
func (e *Engine) applyInternal(ctx context.Context, playerID int, ev model.PlaybackEvent) {
	var sess model.PlaybackSession
	_, err := e.tracker.Update(ctx, playerID, func(p *model.Player, now time.Time) error {
		s, err := e.sessions.Apply(p, ev, now)
		sess = s
		return err
	})
	if err != nil {
		e.logger.Warn().Err(err).Int("player_id", playerID).Str("event", string(ev.Type)).Msg("failed to record playback")
		return
	}
	e.mirror(ctx, sess)
}

func (e *Engine) clearPlayback(ctx context.Context, playerID int) {
	_, err := e.tracker.Update(ctx, playerID, func(p *model.Player, _ time.Time) error {
		if !p.IsPlaying && p.CurrentContentID == nil {
			return liveness.ErrSkip
		}
		p.ClearPlayback()
		return nil
	})
	if err != nil {
		e.logger.Warn().Err(err).Int("player_id", playerID).Msg("failed to clear playback")
	}
	e.sessions.Close(playerID)
	_ = e.cache.DeletePlayback(ctx, playerID)
}

// sinceMidnight positions the looping playlist against the local wall
// clock so every sync of the same minute lands on the same item.
func (e *Engine) sinceMidnight() time.Duration {
	now := e.now().In(e.opts.Location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.opts.Location)
	return now.Sub(midnight)
}

func mediaType(item *model.PlaylistItem) string {
	if ct := storage.ContentType(item.URL); ct != "application/octet-stream" {
		return ct
	}
	if strings.Contains(item.Type, "/") {
		return item.Type
	}
	return "application/octet-stream"
}

// ETag fingerprints what the player renders. GeneratedAt is left out so
// the same content always hashes the same.
func ETag(pl *model.Playlist) (string, error) {
	view := struct {
		ScheduleID         *int
		CampaignID         *int
		Items              []model.PlaylistItem
		Overlays           []model.PlaylistItem
		PersistentOverlays []model.PlaylistItem
		BackgroundAudio    *model.BackgroundAudio
	}{pl.ScheduleID, pl.CampaignID, pl.Items, pl.Overlays, pl.PersistentOverlays, pl.BackgroundAudio}
	data, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("fingerprint playlist: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
