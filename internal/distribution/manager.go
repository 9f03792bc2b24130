package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/marquee/internal/lockmap"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

// Store is the storage collaborator for distribution rows. Lookups return
// model.ErrNotFound when nothing matches.
type Store interface {
	GetContent(ctx context.Context, id int) (model.Content, error)
	GetDistribution(ctx context.Context, id int) (model.ContentDistribution, error)
	FindDistribution(ctx context.Context, contentID, playerID int) (model.ContentDistribution, error)
	DistributionsForPlayer(ctx context.Context, playerID int) ([]model.ContentDistribution, error)
	CreateDistribution(ctx context.Context, d *model.ContentDistribution) error
	SaveDistribution(ctx context.Context, d *model.ContentDistribution) error
}

type Options struct {
	MaxRetries int
	Policy     Policy
	// TTL sets expires_at on new requests when positive.
	TTL time.Duration
}

// Manager applies the state machine to stored distributions. Every update
// of one distribution is a read-modify-write under that distribution's
// lock, so concurrent reports for the same id are applied one at a time.
type Manager struct {
	store   Store
	opts    Options
	locks   *lockmap.Map[int]
	pairs   *lockmap.Map[[2]int]
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewManager(store Store, opts Options, metrics *telemetry.Metrics, logger zerolog.Logger) *Manager {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Policy.InitialDelay <= 0 {
		opts.Policy = DefaultPolicy()
	}
	return &Manager{
		store:   store,
		opts:    opts,
		locks:   lockmap.New[int](),
		pairs:   lockmap.New[[2]int](),
		metrics: metrics,
		logger:  logger.With().Str("component", "distribution").Logger(),
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Request returns the distribution id for (contentID, playerID), creating a
// pending row when none exists.
func (m *Manager) Request(ctx context.Context, contentID, playerID, priority int) (int, error) {
	if priority < 0 {
		return 0, fmt.Errorf("%w: priority must not be negative", ErrInvalidRequest)
	}
	unlock := m.pairs.Lock([2]int{contentID, playerID})
	defer unlock()

	existing, err := m.store.FindDistribution(ctx, contentID, playerID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, fmt.Errorf("find distribution: %w", err)
	}

	content, err := m.store.GetContent(ctx, contentID)
	if err != nil {
		return 0, fmt.Errorf("load content %d: %w", contentID, err)
	}

	now := m.now()
	d := model.ContentDistribution{
		ContentID:     contentID,
		PlayerID:      playerID,
		Status:        model.DistributionPending,
		Priority:      priority,
		FileSizeBytes: content.FileSizeBytes,
		MaxRetries:    m.opts.MaxRetries,
		ScheduledFor:  &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if m.opts.TTL > 0 {
		expires := now.Add(m.opts.TTL)
		d.ExpiresAt = &expires
	}
	if err := m.store.CreateDistribution(ctx, &d); err != nil {
		return 0, fmt.Errorf("create distribution: %w", err)
	}
	m.metrics.DistributionTransitions.WithLabelValues("request", "ok").Inc()
	m.logger.Info().
		Int("distribution_id", d.ID).
		Int("content_id", contentID).
		Int("player_id", playerID).
		Msg("distribution requested")
	return d.ID, nil
}

func (m *Manager) Get(ctx context.Context, id int) (model.ContentDistribution, error) {
	return m.store.GetDistribution(ctx, id)
}

func (m *Manager) Start(ctx context.Context, id int) (model.ContentDistribution, error) {
	return m.apply(ctx, id, "start", func(d *model.ContentDistribution, now time.Time) error {
		return Start(d, now)
	})
}

func (m *Manager) ReportProgress(ctx context.Context, id int, bytesDownloaded int64, speed float64) (model.ContentDistribution, error) {
	return m.apply(ctx, id, "progress", func(d *model.ContentDistribution, now time.Time) error {
		return UpdateProgress(d, bytesDownloaded, speed, now)
	})
}

func (m *Manager) Complete(ctx context.Context, id int) (model.ContentDistribution, error) {
	return m.apply(ctx, id, "complete", func(d *model.ContentDistribution, now time.Time) error {
		return Complete(d, now)
	})
}

func (m *Manager) Fail(ctx context.Context, id int, reason string) (model.ContentDistribution, error) {
	d, err := m.apply(ctx, id, "fail", func(d *model.ContentDistribution, now time.Time) error {
		return Fail(d, reason, m.opts.Policy, now)
	})
	if err == nil && !CanRetry(&d) {
		m.logger.Warn().
			Int("distribution_id", d.ID).
			Int("player_id", d.PlayerID).
			Int("retry_count", d.RetryCount).
			Msg("distribution undeliverable, retries exhausted")
	}
	return d, err
}

func (m *Manager) Retry(ctx context.Context, id int) (model.ContentDistribution, error) {
	return m.apply(ctx, id, "retry", func(d *model.ContentDistribution, now time.Time) error {
		return Retry(d, now)
	})
}

func (m *Manager) Cancel(ctx context.Context, id int) (model.ContentDistribution, error) {
	return m.apply(ctx, id, "cancel", func(d *model.ContentDistribution, now time.Time) error {
		return Cancel(d, now)
	})
}

// AvailabilityFor maps content id to availability for every distribution
// requested for the player.
func (m *Manager) AvailabilityFor(ctx context.Context, playerID int) (map[int]model.Availability, error) {
	list, err := m.store.DistributionsForPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("list distributions for player %d: %w", playerID, err)
	}
	now := m.now()
	out := make(map[int]model.Availability, len(list))
	for i := range list {
		out[list[i].ContentID] = AvailabilityOf(&list[i], now)
	}
	return out, nil
}

// apply loads the distribution, runs fn on a copy and saves the copy only
// when fn accepted the transition. On rejection the stored row and the
// returned value are the pre-existing state.
func (m *Manager) apply(ctx context.Context, id int, op string, fn func(d *model.ContentDistribution, now time.Time) error) (model.ContentDistribution, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	current, err := m.store.GetDistribution(ctx, id)
	if err != nil {
		return model.ContentDistribution{}, fmt.Errorf("load distribution %d: %w", id, err)
	}

	next := current
	if err := fn(&next, m.now()); err != nil {
		m.metrics.DistributionTransitions.WithLabelValues(op, "conflict").Inc()
		m.logger.Debug().Err(err).Int("distribution_id", id).Str("op", op).Msg("transition rejected")
		return current, err
	}
	if next == current {
		// idempotent no-op, nothing to write
		return current, nil
	}
	if err := m.store.SaveDistribution(ctx, &next); err != nil {
		m.metrics.DistributionTransitions.WithLabelValues(op, "error").Inc()
		return current, fmt.Errorf("save distribution %d: %w", id, err)
	}
	m.metrics.DistributionTransitions.WithLabelValues(op, "ok").Inc()
	return next, nil
}
