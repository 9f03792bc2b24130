package endpoints

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/marquee/internal/engine"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api/player/packets"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// Engine is the part of the engine the player endpoints call.
type Engine interface {
	ResolveAndBuild(ctx context.Context, playerID int, now time.Time) (model.Playlist, error)
	SyncPlayer(ctx context.Context, playerID int) (engine.SyncResult, error)
	ReportPlaybackEvent(ctx context.Context, playerID int, ev model.PlaybackEvent) (model.PlaybackSession, error)
	PlaybackSession(ctx context.Context, playerID int) (model.PlaybackSession, bool)
}

type PlayerController struct {
	engine Engine
	now    func() time.Time
}

func NewPlayerController(e Engine) *PlayerController {
	return &PlayerController{engine: e, now: time.Now}
}

func PlayerModule(e Engine) api.Module {
	ctl := NewPlayerController(e)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/players/:id/playlist", ctl.getPlaylist)
		c.POST("/players/:id/sync", ctl.syncPlayer)
		c.POST("/players/:id/events", ctl.reportEvent)
		c.GET("/players/:id/playback", ctl.getPlayback)
	})
}

// GET /api/players/:id/playlist[?at=RFC3339]
func (p *PlayerController) getPlaylist(ctx *gin.Context) (any, *api.Error) {
	id, apiErr := api.IntParam(ctx, "id")
	if apiErr != nil {
		return nil, apiErr
	}
	at := p.now()
	if v := ctx.Query("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, api.BadRequest("at must be an RFC3339 timestamp")
		}
		at = parsed
	}

	pl, err := p.engine.ResolveAndBuild(ctx.Request.Context(), id, at)
	if err != nil {
		return nil, api.FromError(err)
	}
	etag, err := engine.ETag(&pl)
	if err != nil {
		return nil, api.FromError(err)
	}
	ctx.Header("ETag", `"`+etag+`"`)
	return packets.PlaylistResponse{ETag: etag, Playlist: pl}, nil
}

// POST /api/players/:id/sync
func (p *PlayerController) syncPlayer(ctx *gin.Context) (any, *api.Error) {
	id, apiErr := api.IntParam(ctx, "id")
	if apiErr != nil {
		return nil, apiErr
	}
	res, err := p.engine.SyncPlayer(ctx.Request.Context(), id)
	if err != nil {
		return nil, api.FromError(err)
	}
	return res, nil
}

// POST /api/players/:id/events
func (p *PlayerController) reportEvent(ctx *gin.Context) (any, *api.Error) {
	id, apiErr := api.IntParam(ctx, "id")
	if apiErr != nil {
		return nil, apiErr
	}
	var req packets.PlaybackEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		return nil, api.BadRequest(err.Error())
	}
	sess, err := p.engine.ReportPlaybackEvent(ctx.Request.Context(), id, req.Event())
	if err != nil {
		return nil, api.FromError(err)
	}
	return sess, nil
}

// GET /api/players/:id/playback
func (p *PlayerController) getPlayback(ctx *gin.Context) (any, *api.Error) {
	id, apiErr := api.IntParam(ctx, "id")
	if apiErr != nil {
		return nil, apiErr
	}
	sess, ok := p.engine.PlaybackSession(ctx.Request.Context(), id)
	if !ok {
		return packets.PlaybackResponse{}, nil
	}
	return packets.PlaybackResponse{Active: true, Session: &sess}, nil
}
