package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Nixie-Tech-LLC/marquee/internal/config"
	"github.com/Nixie-Tech-LLC/marquee/internal/db"
	"github.com/Nixie-Tech-LLC/marquee/internal/logging"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	atFlag string
)

var rootCmd = &cobra.Command{
	Use:   "marquee",
	Short: "Marquee playback scheduling engine",
	Long:  "Marquee resolves schedules into playlists, tracks player liveness and delivers content to display players and cast receivers.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the sync driver",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <player-id>",
	Short: "Print the playlist a player should be showing",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&atFlag, "at", "", "evaluate at this RFC3339 instant instead of now")
	rootCmd.AddCommand(serveCmd, migrateCmd, resolveCmd)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if err := db.Init(cfg.DatabaseURL); err != nil {
		return err
	}
	defer db.Close()
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	logger.Info().Msg("migrations applied")
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	playerID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid player id %q", args[0])
	}
	at := time.Now()
	if atFlag != "" {
		if at, err = time.Parse(time.RFC3339, atFlag); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	if err := loadConfig(); err != nil {
		return err
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	pl, err := app.Engine.ResolveAndBuild(cmd.Context(), playerID, at)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pl)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("marquee starting")

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		app.Close()
		return fmt.Errorf("db migrate: %w", err)
	}

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(r, app)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.Driver.Start(ctx)

	httpServer := &http.Server{Addr: cfg.ServerAddress, Handler: r}
	go func() {
		logger.Info().Str("addr", cfg.ServerAddress).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := app.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("marquee stopped")
	return nil
}
