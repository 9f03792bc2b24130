package endpoints

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/marquee/internal/cast"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api"
)

type Engine interface {
	Discover(ctx context.Context) ([]cast.Device, error)
}

type CastController struct {
	engine Engine
}

func CastModule(e Engine) api.Module {
	ctl := &CastController{engine: e}
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/cast/devices", ctl.listDevices)
	})
}

// GET /api/cast/devices
func (cc *CastController) listDevices(ctx *gin.Context) (any, *api.Error) {
	devices, err := cc.engine.Discover(ctx.Request.Context())
	if err != nil {
		return nil, api.FromError(err)
	}
	return gin.H{"devices": devices}, nil
}
