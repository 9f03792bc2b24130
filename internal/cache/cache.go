// Package cache keeps short-lived player state in Redis, falling back to
// process memory when Redis is not configured or stops answering.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

const (
	keyPlayback     = "marquee:playback:"      // + player_id
	keyPlaylistETag = "marquee:playlist_etag:" // + player_id

	// DefaultETagTTL bounds how long a pushed playlist fingerprint is kept.
	DefaultETagTTL = 24 * time.Hour
)

type Config struct {
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
}

// Cache is safe for concurrent use. A Redis failure switches it to the
// in-memory store for the rest of the process lifetime.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	disabled bool
	mem      map[string]memEntry
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// New connects to Redis. An empty address or a failed ping yields a
// memory-backed cache rather than an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	c := NewMemory(logger)
	if cfg.RedisAddr == "" {
		c.logger.Info().Msg("redis not configured, using in-memory cache")
		return c
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory cache")
		_ = client.Close()
		return c
	}

	c.logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")
	c.client = client
	return c
}

func NewMemory(logger zerolog.Logger) *Cache {
	return &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		now:    time.Now,
		mem:    make(map[string]memEntry),
	}
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Redis reports whether values currently go to Redis.
func (c *Cache) Redis() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && !c.disabled
}

func (c *Cache) handleError(err error, op string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.mu.Lock()
	wasDisabled := c.disabled
	c.disabled = true
	c.mu.Unlock()
	if !wasDisabled {
		c.logger.Warn().Err(err).Str("operation", op).Msg("redis error, falling back to in-memory cache")
	}
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.Redis() {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if err == nil {
			return data, true, nil
		}
		c.handleError(err, "get")
	}

	c.mu.RLock()
	e, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (c *Cache) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if c.Redis() {
		err := c.client.Set(ctx, key, data, ttl).Err()
		if err == nil {
			return nil
		}
		c.handleError(err, "set")
	}

	e := memEntry{data: data}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if c.Redis() {
		err := c.client.Del(ctx, key).Err()
		if err == nil {
			return nil
		}
		c.handleError(err, "delete")
	}
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	return nil
}

// SavePlayback stores the live playback session of a player. The entry
// expires after ttl so a silent player does not keep reporting stale
// playback.
func (c *Cache) SavePlayback(ctx context.Context, s model.PlaybackSession, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal playback session: %w", err)
	}
	return c.set(ctx, keyPlayback+strconv.Itoa(s.PlayerID), data, ttl)
}

func (c *Cache) Playback(ctx context.Context, playerID int) (model.PlaybackSession, bool, error) {
	data, ok, err := c.get(ctx, keyPlayback+strconv.Itoa(playerID))
	if err != nil || !ok {
		return model.PlaybackSession{}, false, err
	}
	var s model.PlaybackSession
	if err := json.Unmarshal(data, &s); err != nil {
		c.logger.Debug().Err(err).Int("player_id", playerID).Msg("dropping unreadable playback snapshot")
		return model.PlaybackSession{}, false, nil
	}
	return s, true, nil
}

func (c *Cache) DeletePlayback(ctx context.Context, playerID int) error {
	return c.delete(ctx, keyPlayback+strconv.Itoa(playerID))
}

// SwapETag records etag as the last playlist fingerprint pushed to the
// player and reports whether it differs from the previous one.
func (c *Cache) SwapETag(ctx context.Context, playerID int, etag string) (bool, error) {
	key := keyPlaylistETag + strconv.Itoa(playerID)
	if c.Redis() {
		prev, err := c.client.SetArgs(ctx, key, etag, redis.SetArgs{Get: true, TTL: DefaultETagTTL}).Result()
		if err == nil || errors.Is(err, redis.Nil) {
			return prev != etag, nil
		}
		c.handleError(err, "swap_etag")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.mem[key]
	changed := !ok || string(prev.data) != etag || (!prev.expiresAt.IsZero() && !c.now().Before(prev.expiresAt))
	c.mem[key] = memEntry{data: []byte(etag), expiresAt: c.now().Add(DefaultETagTTL)}
	return changed, nil
}

// ForgetETag makes the next SwapETag for the player report a change.
func (c *Cache) ForgetETag(ctx context.Context, playerID int) error {
	return c.delete(ctx, keyPlaylistETag+strconv.Itoa(playerID))
}
