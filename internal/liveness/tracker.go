package liveness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/marquee/internal/lockmap"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

// Store reads players and writes back the fields this package owns:
// liveness, playback and cast identity.
type Store interface {
	GetPlayer(ctx context.Context, id int) (model.Player, error)
	ListPlayers(ctx context.Context) ([]model.Player, error)
	SavePlayerState(ctx context.Context, p *model.Player) error
}

// ErrSkip returned from an Update func leaves the stored player untouched
// without reporting an error.
var ErrSkip = errors.New("skip update")

// Transition is a status change observed between two sweeps.
type Transition struct {
	PlayerID int
	From     Status
	To       Status
}

// Tracker serializes every update of a player's mutable state behind that
// player's lock.
type Tracker struct {
	store     Store
	threshold time.Duration
	locks     *lockmap.Map[int]
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu   sync.Mutex
	seen map[int]Status
}

func NewTracker(store Store, threshold time.Duration, metrics *telemetry.Metrics, logger zerolog.Logger) *Tracker {
	if threshold <= 0 {
		threshold = OnlineThreshold
	}
	return &Tracker{
		store:     store,
		threshold: threshold,
		locks:     lockmap.New[int](),
		metrics:   metrics,
		logger:    logger.With().Str("component", "liveness").Logger(),
		now:       time.Now,
		seen:      make(map[int]Status),
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func (t *Tracker) Threshold() time.Duration { return t.threshold }

// Update runs fn on the freshly loaded player under its lock and saves the
// result. fn returning an error aborts without writing.
func (t *Tracker) Update(ctx context.Context, playerID int, fn func(p *model.Player, now time.Time) error) (model.Player, error) {
	unlock := t.locks.Lock(playerID)
	defer unlock()

	p, err := t.store.GetPlayer(ctx, playerID)
	if err != nil {
		return model.Player{}, fmt.Errorf("load player %d: %w", playerID, err)
	}
	if err := fn(&p, t.now()); err != nil {
		if errors.Is(err, ErrSkip) {
			return p, nil
		}
		return p, err
	}
	if err := t.store.SavePlayerState(ctx, &p); err != nil {
		return p, fmt.Errorf("save player %d: %w", playerID, err)
	}
	return p, nil
}

// RecordPing marks a successful contact from the player. It says nothing
// about what, if anything, is on screen.
func (t *Tracker) RecordPing(ctx context.Context, playerID int) (model.Player, error) {
	return t.Update(ctx, playerID, func(p *model.Player, now time.Time) error {
		p.LastPing = model.At(now)
		return nil
	})
}

// RecordProbe stores the outcome of a discovery probe for a cast player.
// A hit refreshes both timestamps and adopts deviceID when the receiver
// answered under a new id. A miss clears the verification so the player
// reads offline regardless of ping recency.
func (t *Tracker) RecordProbe(ctx context.Context, playerID int, found bool, deviceID string) (model.Player, error) {
	return t.Update(ctx, playerID, func(p *model.Player, now time.Time) error {
		if !found {
			p.LastVerifiedAt = model.Timestamp{}
			return nil
		}
		p.LastVerifiedAt = model.At(now)
		p.LastPing = model.At(now)
		if deviceID != "" && (p.CastDeviceID == nil || *p.CastDeviceID != deviceID) {
			id := deviceID
			p.CastDeviceID = &id
		}
		return nil
	})
}

func (t *Tracker) Classify(p *model.Player) Classification {
	return Classify(p, t.now(), t.threshold)
}

// Sweep classifies every player, reports transitions since the previous
// sweep and refreshes the online gauge.
func (t *Tracker) Sweep(ctx context.Context) ([]Transition, error) {
	players, err := t.store.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var transitions []Transition
	online := 0
	current := make(map[int]Status, len(players))
	for i := range players {
		c := Classify(&players[i], now, t.threshold)
		current[players[i].ID] = c.Status
		if c.Online() {
			online++
		}
		prev, ok := t.seen[players[i].ID]
		if !ok || prev == c.Status {
			continue
		}
		transitions = append(transitions, Transition{PlayerID: players[i].ID, From: prev, To: c.Status})
		if c.Status == StatusOffline {
			t.metrics.LivenessDecays.Inc()
			t.logger.Warn().
				Int("player_id", players[i].ID).
				Str("kind", c.Kind).
				Str("reason", c.Reason).
				Msg("player went offline")
		} else {
			t.logger.Info().Int("player_id", players[i].ID).Msg("player back online")
		}
	}
	t.seen = current
	t.metrics.PlayersOnline.Set(float64(online))
	return transitions, nil
}
