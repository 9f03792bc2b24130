// Package playback folds player telemetry events into live playback
// sessions.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

var ErrInvalidEvent = errors.New("invalid playback event")

// Registry holds at most one open session per player. Callers serialize
// Apply per player (the liveness tracker's update lock); the registry's own
// mutex only guards the map.
type Registry struct {
	mu       sync.Mutex
	sessions map[int]model.PlaybackSession
	newID    func() string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int]model.PlaybackSession),
		newID:    func() string { return uuid.NewString() },
	}
}

func (r *Registry) Get(playerID int) (model.PlaybackSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[playerID]
	return s, ok
}

// Restore seeds a session, typically from a cache snapshot after restart.
// An already open session wins.
func (r *Registry) Restore(s model.PlaybackSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.PlayerID]; !ok {
		r.sessions[s.PlayerID] = s
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Apply folds ev into the player's session and mirrors the result onto the
// player's playback fields. playback_end closes the session; the closed
// session is returned with status idle.
func (r *Registry) Apply(p *model.Player, ev model.PlaybackEvent, now time.Time) (model.PlaybackSession, error) {
	if !ev.Type.Valid() {
		return model.PlaybackSession{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}
	if ev.UptimeSeconds < 0 {
		return model.PlaybackSession{}, fmt.Errorf("%w: negative uptime", ErrInvalidEvent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, open := r.sessions[p.ID]
	if !open || ev.Type == model.EventPlaybackStart {
		s = model.PlaybackSession{
			PlayerID:  p.ID,
			SessionID: r.newID(),
			StartedAt: now,
		}
	}
	s.LastUpdate = now
	if ev.UptimeSeconds > 0 {
		s.UptimeSeconds = ev.UptimeSeconds
	} else if !s.StartedAt.IsZero() {
		s.UptimeSeconds = int64(now.Sub(s.StartedAt) / time.Second)
	}

	switch ev.Type {
	case model.EventPlaybackStart, model.EventContentChange:
		s.Status = model.PlaybackPlaying
		s.LastError = ""
		setContent(&s, ev)
		p.IsPlaying = true
		if ev.Type == model.EventPlaybackStart || p.PlaybackStartTime == nil {
			t := now
			p.PlaybackStartTime = &t
		}
	case model.EventHeartbeat:
		if s.Status == "" || s.Status == model.PlaybackIdle {
			s.Status = model.PlaybackPlaying
		}
		setContent(&s, ev)
		p.IsPlaying = s.Status == model.PlaybackPlaying
	case model.EventPlaybackPaused:
		s.Status = model.PlaybackPaused
		p.IsPlaying = false
	case model.EventError:
		s.Status = model.PlaybackError
		s.LastError = ev.Error
		p.IsPlaying = false
	case model.EventPlaybackEnd:
		s.Status = model.PlaybackIdle
		delete(r.sessions, p.ID)
		p.ClearPlayback()
		return s, nil
	}

	heartbeat := now
	p.LastPlaybackHeartbeat = &heartbeat
	p.CurrentContentID = s.ContentID
	p.CurrentContentTitle = titlePtr(s.ContentTitle)
	p.CurrentCampaignID = s.CampaignID
	p.CurrentCampaignTitle = titlePtr(s.CampaignTitle)

	r.sessions[p.ID] = s
	return s, nil
}

// Close drops the player's session without an event, for example when a
// cast receiver is found idle.
func (r *Registry) Close(playerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, playerID)
}

func setContent(s *model.PlaybackSession, ev model.PlaybackEvent) {
	if ev.ContentID != nil {
		id := *ev.ContentID
		s.ContentID = &id
		s.ContentTitle = ev.ContentTitle
	} else if ev.ContentTitle != "" {
		s.ContentTitle = ev.ContentTitle
	}
	if ev.CampaignID != nil {
		id := *ev.CampaignID
		s.CampaignID = &id
		s.CampaignTitle = ev.CampaignTitle
	} else if ev.CampaignTitle != "" {
		s.CampaignTitle = ev.CampaignTitle
	}
}

func titlePtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
