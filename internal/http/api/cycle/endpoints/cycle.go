package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/marquee/internal/engine"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api"
)

// Driver is the background cycle runner.
type Driver interface {
	Trigger()
	Last() (engine.CycleReport, bool)
}

func CycleModule(d Driver) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		// GET /api/cycle
		c.GET("/cycle", func(ctx *gin.Context) (any, *api.Error) {
			report, ok := d.Last()
			if !ok {
				return nil, &api.Error{Code: http.StatusNotFound, Message: "no cycle has finished yet"}
			}
			return report, nil
		})
		// POST /api/cycle
		c.POST("/cycle", func(ctx *gin.Context) (any, *api.Error) {
			d.Trigger()
			ctx.Status(http.StatusAccepted)
			return gin.H{"triggered": true}, nil
		})
	})
}
