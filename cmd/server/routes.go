package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Nixie-Tech-LLC/marquee/internal/engine"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api"
	castapi "github.com/Nixie-Tech-LLC/marquee/internal/http/api/cast/endpoints"
	cycleapi "github.com/Nixie-Tech-LLC/marquee/internal/http/api/cycle/endpoints"
	distapi "github.com/Nixie-Tech-LLC/marquee/internal/http/api/distribution/endpoints"
	playerapi "github.com/Nixie-Tech-LLC/marquee/internal/http/api/player/endpoints"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, app *App) {
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"If-None-Match",
			"X-Request-ID",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"ETag",
			"X-Request-ID",
		},
		AllowCredentials: false,
	}))
	r.Use(middleware.RequestLogger(app.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(telemetry.Handler(app.Registry)))

	// players call in often; keep one misbehaving device from starving the rest
	perMinute := app.Config.SyncRatePerMinute
	limiter := middleware.NewRateLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)

	api.MountGroup(r, api.GroupConfig{
		Prefix:     "/api",
		Middleware: []gin.HandlerFunc{limiter.Middleware()},
	},
		playerapi.PlayerModule(app.Engine),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix: "/api",
	},
		distapi.DistributionModule(app.Engine),
		castapi.CastModule(app.Engine),
		cycleapi.CycleModule(app.Driver),
	)
}

var (
	_ playerapi.Engine = (*engine.Engine)(nil)
	_ distapi.Engine   = (*engine.Engine)(nil)
	_ castapi.Engine   = (*engine.Engine)(nil)
	_ cycleapi.Driver  = (*engine.Driver)(nil)
)
