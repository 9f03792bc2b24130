package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/marquee/internal/cache"
	"github.com/Nixie-Tech-LLC/marquee/internal/cast"
	"github.com/Nixie-Tech-LLC/marquee/internal/config"
	"github.com/Nixie-Tech-LLC/marquee/internal/db"
	"github.com/Nixie-Tech-LLC/marquee/internal/distribution"
	"github.com/Nixie-Tech-LLC/marquee/internal/engine"
	"github.com/Nixie-Tech-LLC/marquee/internal/mqtt"
	"github.com/Nixie-Tech-LLC/marquee/internal/playlist"
	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

// App holds the wired components of a running server.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Engine   *engine.Engine
	Driver   *engine.Driver

	cache     *cache.Cache
	caster    *cast.Coordinator
	publisher *mqtt.Publisher
}

// NewApp connects to Postgres, Redis and the MQTT broker and builds the
// engine. Redis and MQTT are optional.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := db.Init(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	locator, err := InitLocator(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}

	app := &App{Config: cfg, Logger: logger, Registry: reg}
	app.cache = cache.New(cache.Config{
		RedisAddr:     cfg.RedisAddress,
		RedisUsername: cfg.RedisUsername,
		RedisPassword: cfg.RedisPassword,
	}, logger)

	var pusher engine.Pusher
	if cfg.MQTTBrokerURL != "" {
		client, err := mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID, logger)
		if err != nil {
			app.cache.Close()
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
		app.publisher = mqtt.NewPublisher(client, logger)
		pusher = app.publisher
	} else {
		logger.Warn().Msg("MQTT_BROKER_URL not set, playlist pushes disabled")
	}

	castOpts := cast.DefaultOptions()
	castOpts.DiscoveryTimeout = cfg.DiscoveryTimeout
	castOpts.ConnectTimeout = cfg.ConnectTimeout
	castOpts.LoadTimeout = cfg.ConnectTimeout
	app.caster = cast.NewCoordinator(cast.Chromecast{}, cast.Chromecast{}, castOpts, metrics, logger)

	audio, err := playlist.ParseAudioPolicy(cfg.BackgroundAudio)
	if err != nil {
		return nil, err
	}

	app.Engine = engine.New(engine.Deps{
		Store:   db.NewStore(db.DB),
		Cache:   app.cache,
		Locator: locator,
		Caster:  app.caster,
		Pusher:  pusher,
		Metrics: metrics,
		Logger:  logger,
	}, engine.Options{
		Location:          cfg.Timezone,
		EmptyDaysMatchAll: cfg.EmptyDaysMatchAll,
		AudioPolicy:       audio,
		OnlineThreshold:   cfg.OnlineThreshold,
		MaxRetries:        cfg.MaxRetries,
		RetryPolicy:       distribution.DefaultPolicy(),
		Workers:           cfg.Workers,
	})
	app.Driver = engine.NewDriver(app.Engine, cfg.SyncInterval, logger)
	return app, nil
}

// Close stops the driver and releases every connection.
func (a *App) Close() error {
	a.Driver.Stop()
	var errs []error
	if err := a.caster.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cast: %w", err))
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if err := a.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if err := db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("db: %w", err))
	}
	return errors.Join(errs...)
}

// shutdownTimeout bounds the HTTP drain on exit.
const shutdownTimeout = 10 * time.Second
