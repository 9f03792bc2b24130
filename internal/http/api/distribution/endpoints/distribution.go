package endpoints

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/marquee/internal/distribution"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api/distribution/packets"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

type Engine interface {
	RequestDistribution(ctx context.Context, contentID, playerID, priority int) (int, error)
	ReportDistributionProgress(ctx context.Context, id int, bytesDownloaded int64, speed float64) (model.ContentDistribution, error)
	GetDistribution(ctx context.Context, id int) (model.ContentDistribution, error)
	StartDistribution(ctx context.Context, id int) (model.ContentDistribution, error)
	CompleteDistribution(ctx context.Context, id int) (model.ContentDistribution, error)
	FailDistribution(ctx context.Context, id int, reason string) (model.ContentDistribution, error)
	RetryDistribution(ctx context.Context, id int) (model.ContentDistribution, error)
	CancelDistribution(ctx context.Context, id int) (model.ContentDistribution, error)
}

type DistributionController struct {
	engine Engine
}

func NewDistributionController(e Engine) *DistributionController {
	return &DistributionController{engine: e}
}

func DistributionModule(e Engine) api.Module {
	ctl := NewDistributionController(e)
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/distributions", ctl.createDistribution)
		c.GET("/distributions/:id", ctl.getDistribution)
		c.POST("/distributions/:id/start", ctl.transition(e.StartDistribution))
		c.POST("/distributions/:id/progress", ctl.reportProgress)
		c.POST("/distributions/:id/complete", ctl.transition(e.CompleteDistribution))
		c.POST("/distributions/:id/fail", ctl.fail)
		c.POST("/distributions/:id/retry", ctl.transition(e.RetryDistribution))
		c.POST("/distributions/:id/cancel", ctl.transition(e.CancelDistribution))
	})
}

func response(d model.ContentDistribution) packets.DistributionResponse {
	out := packets.DistributionResponse{
		ContentDistribution: d,
		ExactProgress:       distribution.DownloadPercentage(&d),
	}
	if eta := distribution.EstimatedTimeRemaining(&d); eta != nil {
		secs := eta.Seconds()
		out.EstimatedSecondsLeft = &secs
	}
	return out
}

// POST /api/distributions
func (d *DistributionController) createDistribution(ctx *gin.Context) (any, *api.Error) {
	var req packets.CreateDistributionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		return nil, api.BadRequest(err.Error())
	}
	id, err := d.engine.RequestDistribution(ctx.Request.Context(), req.ContentID, req.PlayerID, req.Priority)
	if err != nil {
		return nil, api.FromError(err)
	}
	ctx.Status(http.StatusCreated)
	return packets.CreateDistributionResponse{ID: id}, nil
}

// GET /api/distributions/:id
func (d *DistributionController) getDistribution(ctx *gin.Context) (any, *api.Error) {
	id, apiErr := api.IntParam(ctx, "id")
	if apiErr != nil {
		return nil, apiErr
	}
	dist, err := d.engine.GetDistribution(ctx.Request.Context(), id)
	if err != nil {
		return nil, api.FromError(err)
	}
	return response(dist), nil
}

// POST /api/distributions/:id/progress
func (d *DistributionController) reportProgress(ctx *gin.Context) (any, *api.Error) {
	id, apiErr := api.IntParam(ctx, "id")
	if apiErr != nil {
		return nil, apiErr
	}
	var req packets.ProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		return nil, api.BadRequest(err.Error())
	}
	dist, err := d.engine.ReportDistributionProgress(ctx.Request.Context(), id, req.BytesDownloaded, req.DownloadSpeed)
	if err != nil {
		return nil, api.FromError(err)
	}
	return response(dist), nil
}

// POST /api/distributions/:id/fail
func (d *DistributionController) fail(ctx *gin.Context) (any, *api.Error) {
	id, apiErr := api.IntParam(ctx, "id")
	if apiErr != nil {
		return nil, apiErr
	}
	var req packets.FailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		return nil, api.BadRequest(err.Error())
	}
	dist, err := d.engine.FailDistribution(ctx.Request.Context(), id, req.Reason)
	if err != nil {
		return nil, api.FromError(err)
	}
	return response(dist), nil
}

// transition serves the body-less state changes.
func (d *DistributionController) transition(op func(ctx context.Context, id int) (model.ContentDistribution, error)) api.HandlerFunc {
	return func(ctx *gin.Context) (any, *api.Error) {
		id, apiErr := api.IntParam(ctx, "id")
		if apiErr != nil {
			return nil, apiErr
		}
		dist, err := op(ctx.Request.Context(), id)
		if err != nil {
			return nil, api.FromError(err)
		}
		return response(dist), nil
	}
}
