// Package engine wires the scheduling, distribution, liveness and cast
// components into the operations exposed to players and operators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/marquee/internal/cache"
	"github.com/Nixie-Tech-LLC/marquee/internal/cast"
	"github.com/Nixie-Tech-LLC/marquee/internal/distribution"
	"github.com/Nixie-Tech-LLC/marquee/internal/liveness"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
	"github.com/Nixie-Tech-LLC/marquee/internal/playback"
	"github.com/Nixie-Tech-LLC/marquee/internal/playlist"
	"github.com/Nixie-Tech-LLC/marquee/internal/schedule"
	"github.com/Nixie-Tech-LLC/marquee/internal/storage"
	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

// Store is everything the engine reads and the few things it writes.
type Store interface {
	schedule.Source
	distribution.Store
	liveness.Store
	// CampaignsByIDs loads campaigns with their ordered contents and
	// background audio. Missing ids are absent from the map.
	CampaignsByIDs(ctx context.Context, ids []int) (map[int]model.Campaign, error)
}

// Pusher delivers a changed playlist to a network player.
type Pusher interface {
	PublishPlaylist(player *model.Player, etag string, pl *model.Playlist) error
}

// Caster is the part of the cast coordinator the engine drives.
type Caster interface {
	Discover(ctx context.Context, timeout time.Duration) ([]cast.Device, error)
	Find(ctx context.Context, deviceID, deviceName string) (*cast.Device, error)
	Connect(ctx context.Context, deviceID, deviceName string) (string, error)
	LoadMedia(ctx context.Context, deviceID string, req cast.MediaRequest) error
	Disconnect(deviceID string) error
	State(deviceID string) cast.SessionInfo
	Poll(ctx context.Context) []cast.SessionInfo
}

type Options struct {
	Location          *time.Location
	EmptyDaysMatchAll bool
	AudioPolicy       playlist.AudioPolicy
	OnlineThreshold   time.Duration
	MaxRetries        int
	RetryPolicy       distribution.Policy
	Workers           int
}

// Deps are the collaborators. Caster and Pusher may be nil, which disables
// cast delivery and playlist pushes respectively.
type Deps struct {
	Store   Store
	Cache   *cache.Cache
	Locator storage.Locator
	Caster  Caster
	Pusher  Pusher
	Metrics *telemetry.Metrics
	Logger  zerolog.Logger
}

type Engine struct {
	store    Store
	resolver *schedule.Resolver
	dist     *distribution.Manager
	tracker  *liveness.Tracker
	sessions *playback.Registry
	cache    *cache.Cache
	locator  storage.Locator
	caster   Caster
	pusher   Pusher
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	opts     Options
	now      func() time.Time
}

func New(deps Deps, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.OnlineThreshold <= 0 {
		opts.OnlineThreshold = liveness.OnlineThreshold
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory(deps.Logger)
	}
	if deps.Locator == nil {
		deps.Locator = storage.NewLocalLocator("")
	}

	e := &Engine{
		store:    deps.Store,
		resolver: schedule.NewResolver(deps.Store, schedule.NewMatcher(opts.Location, opts.EmptyDaysMatchAll)),
		dist: distribution.NewManager(deps.Store, distribution.Options{
			MaxRetries: opts.MaxRetries,
			Policy:     opts.RetryPolicy,
		}, deps.Metrics, deps.Logger),
		tracker:  liveness.NewTracker(deps.Store, opts.OnlineThreshold, deps.Metrics, deps.Logger),
		sessions: playback.NewRegistry(),
		cache:    deps.Cache,
		locator:  deps.Locator,
		caster:   deps.Caster,
		pusher:   deps.Pusher,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "engine").Logger(),
		opts:     opts,
		now:      time.Now,
	}
	return e
}

// SetClock replaces the time source of the engine and its components.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.tracker.SetClock(now)
	e.dist.SetClock(now)
}

func (e *Engine) Tracker() *liveness.Tracker { return e.tracker }

// ResolveAndBuild selects the active schedules for the player at now and
// expands them into a playlist. A player with no active main schedule gets
// an empty playlist, not an error.
func (e *Engine) ResolveAndBuild(ctx context.Context, playerID int, now time.Time) (model.Playlist, error) {
	if _, err := e.store.GetPlayer(ctx, playerID); err != nil {
		return model.Playlist{}, fmt.Errorf("load player %d: %w", playerID, err)
	}

	list, err := e.store.SchedulesForPlayer(ctx, playerID)
	if err != nil {
		return model.Playlist{}, fmt.Errorf("load schedules for player %d: %w", playerID, err)
	}
	campaigns, err := e.store.CampaignsByIDs(ctx, campaignIDs(list))
	if err != nil {
		return model.Playlist{}, fmt.Errorf("load campaigns for player %d: %w", playerID, err)
	}

	state := e.resolver.Select(playerID, list, now, e.campaignGate(campaigns))
	for _, r := range state.Rejected {
		e.logger.Warn().Err(r.Err).
			Int("player_id", playerID).
			Int("schedule_id", r.Schedule.ID).
			Int("campaign_id", r.Schedule.CampaignID).
			Msg("schedule rejected")
	}

	var main *playlist.Layer
	if state.Main != nil {
		main = &playlist.Layer{Schedule: *state.Main, Campaign: campaigns[state.Main.CampaignID]}
	}
	overlays := make([]playlist.Layer, 0, len(state.Overlays))
	for _, s := range state.Overlays {
		overlays = append(overlays, playlist.Layer{Schedule: s, Campaign: campaigns[s.CampaignID]})
	}

	pl := playlist.Build(playerID, main, overlays, e.opts.AudioPolicy, now)
	pl.Rejected = state.Rejections()

	avail, err := e.dist.AvailabilityFor(ctx, playerID)
	if err != nil {
		return model.Playlist{}, err
	}
	e.annotate(pl.Items, avail)
	e.annotate(pl.Overlays, avail)
	e.annotate(pl.PersistentOverlays, avail)
	if pl.BackgroundAudio != nil {
		pl.BackgroundAudio.URL = e.locate(pl.BackgroundAudio.URL)
	}
	return pl, nil
}

// campaignGate rejects schedules whose campaign is missing or outside its
// own date range.
func (e *Engine) campaignGate(campaigns map[int]model.Campaign) schedule.Gate {
	return func(s *model.Schedule, now time.Time) error {
		c, ok := campaigns[s.CampaignID]
		if !ok {
			return &schedule.ConfigError{ScheduleID: s.ID, Reason: fmt.Sprintf("campaign %d not found", s.CampaignID)}
		}
		if !schedule.WithinDates(c.StartDate, c.EndDate, now, e.opts.Location) {
			return &schedule.ConfigError{ScheduleID: s.ID, Reason: fmt.Sprintf("campaign %d is not running", c.ID)}
		}
		return nil
	}
}

func (e *Engine) annotate(items []model.PlaylistItem, avail map[int]model.Availability) {
	for i := range items {
		if a, ok := avail[items[i].ContentID]; ok {
			items[i].Availability = a
		} else {
			items[i].Availability = model.AvailabilityStreaming
		}
		items[i].URL = e.locate(items[i].URL)
	}
}

func (e *Engine) locate(location string) string {
	if location == "" {
		return ""
	}
	u, err := e.locator.Locate(location)
	if err != nil {
		e.logger.Warn().Err(err).Str("location", location).Msg("could not resolve media URL")
		return location
	}
	return u
}

func campaignIDs(list []model.Schedule) []int {
	seen := make(map[int]bool, len(list))
	ids := make([]int, 0, len(list))
	for _, s := range list {
		if !seen[s.CampaignID] {
			seen[s.CampaignID] = true
			ids = append(ids, s.CampaignID)
		}
	}
	sort.Ints(ids)
	return ids
}

// ReportPlaybackEvent applies a telemetry event from the player to its
// playback session and playback fields. A report from a network player
// also counts as contact.
func (e *Engine) ReportPlaybackEvent(ctx context.Context, playerID int, ev model.PlaybackEvent) (model.PlaybackSession, error) {
	if !ev.Type.Valid() {
		return model.PlaybackSession{}, fmt.Errorf("%w: unknown type %q", playback.ErrInvalidEvent, ev.Type)
	}

	if _, open := e.sessions.Get(playerID); !open && ev.Type != model.EventPlaybackStart {
		if snap, ok, err := e.cache.Playback(ctx, playerID); err == nil && ok {
			e.sessions.Restore(snap)
		}
	}

	var sess model.PlaybackSession
	_, err := e.tracker.Update(ctx, playerID, func(p *model.Player, now time.Time) error {
		s, err := e.sessions.Apply(p, ev, now)
		if err != nil {
			return err
		}
		if liveness.KindOf(p) == liveness.KindNetwork {
			p.LastPing = model.At(now)
		}
		sess = s
		return nil
	})
	if err != nil {
		return model.PlaybackSession{}, err
	}
	e.metrics.PlaybackEvents.WithLabelValues(string(ev.Type)).Inc()
	e.mirror(ctx, sess)

	log := e.logger.Debug()
	if ev.Type == model.EventError {
		log = e.logger.Warn().Str("error", ev.Error)
	}
	log.Int("player_id", playerID).Str("event", string(ev.Type)).Str("session_id", sess.SessionID).Msg("playback event")
	return sess, nil
}

// PlaybackSession returns the open session, falling back to the cached
// snapshot.
func (e *Engine) PlaybackSession(ctx context.Context, playerID int) (model.PlaybackSession, bool) {
	if s, ok := e.sessions.Get(playerID); ok {
		return s, true
	}
	s, ok, err := e.cache.Playback(ctx, playerID)
	if err != nil || !ok {
		return model.PlaybackSession{}, false
	}
	return s, true
}

// mirror keeps the cached snapshot in step with the registry. Snapshots
// live for twice the online threshold.
func (e *Engine) mirror(ctx context.Context, s model.PlaybackSession) {
	var err error
	if s.Status == model.PlaybackIdle {
		err = e.cache.DeletePlayback(ctx, s.PlayerID)
	} else {
		err = e.cache.SavePlayback(ctx, s, 2*e.opts.OnlineThreshold)
	}
	if err != nil {
		e.logger.Warn().Err(err).Int("player_id", s.PlayerID).Msg("failed to mirror playback session")
	}
}

func (e *Engine) RequestDistribution(ctx context.Context, contentID, playerID, priority int) (int, error) {
	if _, err := e.store.GetPlayer(ctx, playerID); err != nil {
		return 0, fmt.Errorf("load player %d: %w", playerID, err)
	}
	return e.dist.Request(ctx, contentID, playerID, priority)
}

func (e *Engine) ReportDistributionProgress(ctx context.Context, id int, bytesDownloaded int64, speed float64) (model.ContentDistribution, error) {
	return e.dist.ReportProgress(ctx, id, bytesDownloaded, speed)
}

func (e *Engine) GetDistribution(ctx context.Context, id int) (model.ContentDistribution, error) {
	return e.dist.Get(ctx, id)
}

func (e *Engine) StartDistribution(ctx context.Context, id int) (model.ContentDistribution, error) {
	return e.dist.Start(ctx, id)
}

func (e *Engine) CompleteDistribution(ctx context.Context, id int) (model.ContentDistribution, error) {
	return e.dist.Complete(ctx, id)
}

func (e *Engine) FailDistribution(ctx context.Context, id int, reason string) (model.ContentDistribution, error) {
	return e.dist.Fail(ctx, id, reason)
}

func (e *Engine) RetryDistribution(ctx context.Context, id int) (model.ContentDistribution, error) {
	return e.dist.Retry(ctx, id)
}

func (e *Engine) CancelDistribution(ctx context.Context, id int) (model.ContentDistribution, error) {
	return e.dist.Cancel(ctx, id)
}

// Discover lists cast receivers on the local network.
func (e *Engine) Discover(ctx context.Context) ([]cast.Device, error) {
	if e.caster == nil {
		return nil, ErrCastDisabled
	}
	return e.caster.Discover(ctx, 0)
}

var ErrCastDisabled = errors.New("cast support is disabled")
