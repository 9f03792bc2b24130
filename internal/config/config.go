package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds environment-based settings
type Config struct {
	Environment    string
	DatabaseURL    string
	MigrationsPath string
	ServerAddress  string

	RedisAddress  string
	RedisUsername string
	RedisPassword string

	MQTTBrokerURL string
	MQTTClientID  string

	MediaBaseURL    string
	UseSpaces       bool
	SpacesEndpoint  string
	SpacesRegion    string
	SpacesBucket    string
	SpacesCDNURL    string
	SpacesAccessKey string
	SpacesSecretKey string

	Timezone          *time.Location
	SyncInterval      time.Duration
	Workers           int
	OnlineThreshold   time.Duration
	DiscoveryTimeout  time.Duration
	ConnectTimeout    time.Duration
	MaxRetries        int
	EmptyDaysMatchAll bool
	BackgroundAudio   string
	SyncRatePerMinute int
}

// Load reads configuration from environment variables. Only DATABASE_URL is
// required.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    getEnv("APP_ENV", "production"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		ServerAddress:  getEnv("SERVER_ADDRESS", ":8080"),

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", "marquee-engine"),

		MediaBaseURL:    os.Getenv("MEDIA_BASE_URL"),
		UseSpaces:       getEnvBool("USE_SPACES", false),
		SpacesEndpoint:  os.Getenv("SPACES_ENDPOINT"),
		SpacesRegion:    os.Getenv("SPACES_REGION"),
		SpacesBucket:    os.Getenv("SPACES_BUCKET"),
		SpacesCDNURL:    os.Getenv("SPACES_CDN_URL"),
		SpacesAccessKey: os.Getenv("SPACES_ACCESS_KEY"),
		SpacesSecretKey: os.Getenv("SPACES_SECRET_KEY"),

		SyncInterval:      getEnvDuration("MARQUEE_SYNC_INTERVAL", 30*time.Second),
		Workers:           getEnvInt("MARQUEE_WORKERS", 8),
		OnlineThreshold:   getEnvDuration("MARQUEE_ONLINE_THRESHOLD", 300*time.Second),
		DiscoveryTimeout:  getEnvDuration("MARQUEE_DISCOVERY_TIMEOUT", 3*time.Second),
		ConnectTimeout:    getEnvDuration("MARQUEE_CONNECT_TIMEOUT", 5*time.Second),
		MaxRetries:        getEnvInt("MARQUEE_MAX_RETRIES", 3),
		EmptyDaysMatchAll: getEnvBool("MARQUEE_EMPTY_DAYS_MATCH_ALL", false),
		BackgroundAudio:   getEnv("MARQUEE_BACKGROUND_AUDIO", "attach"),
		SyncRatePerMinute: getEnvInt("MARQUEE_SYNC_RATE_PER_MIN", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	tz := getEnv("MARQUEE_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("MARQUEE_TIMEZONE %q: %w", tz, err)
	}
	cfg.Timezone = loc

	if cfg.UseSpaces && (cfg.SpacesEndpoint == "" || cfg.SpacesBucket == "") {
		return nil, fmt.Errorf("USE_SPACES requires SPACES_ENDPOINT and SPACES_BUCKET")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("MARQUEE_WORKERS must be at least 1, got %d", cfg.Workers)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MARQUEE_MAX_RETRIES must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.SyncRatePerMinute < 1 {
		return nil, fmt.Errorf("MARQUEE_SYNC_RATE_PER_MIN must be at least 1, got %d", cfg.SyncRatePerMinute)
	}
	if cfg.SyncInterval <= 0 || cfg.OnlineThreshold <= 0 {
		return nil, fmt.Errorf("MARQUEE_SYNC_INTERVAL and MARQUEE_ONLINE_THRESHOLD must be positive")
	}
	switch cfg.BackgroundAudio {
	case "attach", "mute":
	default:
		return nil, fmt.Errorf("MARQUEE_BACKGROUND_AUDIO must be attach or mute, got %q", cfg.BackgroundAudio)
	}
	return cfg, nil
}

func (c *Config) Development() bool {
	return c.Environment == "development"
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
