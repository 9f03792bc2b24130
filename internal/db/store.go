// Package db is the Postgres storage collaborator of the engine. It reads
// players, schedules, campaigns and content, and writes only player state
// and distribution rows.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Nixie-Tech-LLC/marquee/internal/distribution"
	"github.com/Nixie-Tech-LLC/marquee/internal/engine"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

type Store struct {
	db *sqlx.DB
}

// compile-time check that Store satisfies the engine
var _ engine.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// notFound maps a missing row to model.ErrNotFound.
func notFound(err error, what string, id int) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, model.ErrNotFound)
	}
	return fmt.Errorf("%s %d: %w", what, id, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const playerColumns = `
	id, name, mac_address, ip_address, platform, cast_device_id, cast_device_name,
	last_ping, last_verified_at,
	current_content_id, current_content_title, current_campaign_id, current_campaign_title,
	is_playing, playback_start_time, last_playback_heartbeat,
	storage_capacity_bytes, storage_used_bytes, created_at, updated_at`

func (s *Store) GetPlayer(ctx context.Context, id int) (model.Player, error) {
	var p model.Player
	err := s.db.GetContext(ctx, &p, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	if err != nil {
		return model.Player{}, notFound(err, "player", id)
	}
	return p, nil
}

func (s *Store) ListPlayers(ctx context.Context) ([]model.Player, error) {
	var out []model.Player
	if err := s.db.SelectContext(ctx, &out, `SELECT `+playerColumns+` FROM players ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return out, nil
}

// SavePlayerState writes the liveness, playback and cast identity fields.
// Everything else on the row is owned by other services.
func (s *Store) SavePlayerState(ctx context.Context, p *model.Player) error {
	const q = `
	UPDATE players SET
		cast_device_id          = :cast_device_id,
		last_ping               = :last_ping,
		last_verified_at        = :last_verified_at,
		current_content_id      = :current_content_id,
		current_content_title   = :current_content_title,
		current_campaign_id     = :current_campaign_id,
		current_campaign_title  = :current_campaign_title,
		is_playing              = :is_playing,
		playback_start_time     = :playback_start_time,
		last_playback_heartbeat = :last_playback_heartbeat,
		updated_at              = now()
	 WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, p)
	if err != nil {
		return fmt.Errorf("save player %d: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save player %d: %w", p.ID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) SchedulesForPlayer(ctx context.Context, playerID int) ([]model.Schedule, error) {
	var out []model.Schedule
	const q = `
	SELECT id, campaign_id, player_id, start_date, end_date, start_time, end_time,
	       days_of_week, repeat_type, repeat_interval, priority, is_active,
	       content_type, is_persistent, created_at, updated_at
	  FROM schedules
	 WHERE player_id = $1
	 ORDER BY id`
	if err := s.db.SelectContext(ctx, &out, q, playerID); err != nil {
		return nil, fmt.Errorf("schedules for player %d: %w", playerID, err)
	}
	return out, nil
}

const contentColumns = `id, name, type, url, duration, file_size_bytes, created_at`

func (s *Store) GetContent(ctx context.Context, id int) (model.Content, error) {
	var c model.Content
	if err := s.db.GetContext(ctx, &c, `SELECT `+contentColumns+` FROM contents WHERE id = $1`, id); err != nil {
		return model.Content{}, notFound(err, "content", id)
	}
	return c, nil
}

// campaignContentRow is one campaign_contents row joined with its content.
type campaignContentRow struct {
	ID               int  `db:"cc_id"`
	CampaignID       int  `db:"campaign_id"`
	OrderIndex       int  `db:"order_index"`
	DurationOverride *int `db:"duration_override"`
	model.Content
}

// CampaignsByIDs loads the campaigns with their contents in order_index
// order and their background audio content.
func (s *Store) CampaignsByIDs(ctx context.Context, ids []int) (map[int]model.Campaign, error) {
	out := make(map[int]model.Campaign, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	arr := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		arr = append(arr, int64(id))
	}

	var campaigns []model.Campaign
	const q = `
	SELECT id, name, start_date, end_date, priority, region, time_slot,
	       background_audio_content_id, created_by, created_at, updated_at
	  FROM campaigns
	 WHERE id = ANY($1)`
	if err := s.db.SelectContext(ctx, &campaigns, q, arr); err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}

	var rows []campaignContentRow
	const cq = `
	SELECT cc.id AS cc_id, cc.campaign_id, cc.order_index, cc.duration_override,
	       c.id, c.name, c.type, c.url, c.duration, c.file_size_bytes, c.created_at
	  FROM campaign_contents cc
	  JOIN contents c ON c.id = cc.content_id
	 WHERE cc.campaign_id = ANY($1)
	 ORDER BY cc.campaign_id, cc.order_index, cc.id`
	if err := s.db.SelectContext(ctx, &rows, cq, arr); err != nil {
		return nil, fmt.Errorf("load campaign contents: %w", err)
	}
	contents := make(map[int][]model.CampaignContent, len(campaigns))
	for _, r := range rows {
		contents[r.CampaignID] = append(contents[r.CampaignID], model.CampaignContent{
			ID:               r.ID,
			CampaignID:       r.CampaignID,
			ContentID:        r.Content.ID,
			OrderIndex:       r.OrderIndex,
			DurationOverride: r.DurationOverride,
			Content:          r.Content,
		})
	}

	for _, c := range campaigns {
		c.Contents = contents[c.ID]
		if c.BackgroundAudioContentID != nil {
			audio, err := s.GetContent(ctx, *c.BackgroundAudioContentID)
			switch {
			case err == nil:
				c.BackgroundAudio = &audio
			case !errors.Is(err, model.ErrNotFound):
				return nil, err
			}
		}
		out[c.ID] = c
	}
	return out, nil
}

const distributionColumns = `
	id, content_id, player_id, status, priority, download_progress, bytes_downloaded,
	file_size_bytes, download_speed, retry_count, max_retries, last_error,
	scheduled_for, expires_at, started_at, completed_at, next_retry_at, created_at, updated_at`

func (s *Store) GetDistribution(ctx context.Context, id int) (model.ContentDistribution, error) {
	var d model.ContentDistribution
	err := s.db.GetContext(ctx, &d, `SELECT `+distributionColumns+` FROM content_distributions WHERE id = $1`, id)
	if err != nil {
		return model.ContentDistribution{}, notFound(err, "distribution", id)
	}
	return d, nil
}

func (s *Store) FindDistribution(ctx context.Context, contentID, playerID int) (model.ContentDistribution, error) {
	var d model.ContentDistribution
	err := s.db.GetContext(ctx, &d, `
	SELECT `+distributionColumns+`
	  FROM content_distributions
	 WHERE content_id = $1 AND player_id = $2`, contentID, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ContentDistribution{}, model.ErrNotFound
	}
	if err != nil {
		return model.ContentDistribution{}, fmt.Errorf("find distribution: %w", err)
	}
	return d, nil
}

func (s *Store) DistributionsForPlayer(ctx context.Context, playerID int) ([]model.ContentDistribution, error) {
	var out []model.ContentDistribution
	err := s.db.SelectContext(ctx, &out, `
	SELECT `+distributionColumns+`
	  FROM content_distributions
	 WHERE player_id = $1
	 ORDER BY id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("distributions for player %d: %w", playerID, err)
	}
	return out, nil
}

func (s *Store) CreateDistribution(ctx context.Context, d *model.ContentDistribution) error {
	const q = `
	INSERT INTO content_distributions (
		content_id, player_id, status, priority, download_progress, bytes_downloaded,
		file_size_bytes, download_speed, retry_count, max_retries, last_error,
		scheduled_for, expires_at, started_at, completed_at, next_retry_at, created_at, updated_at
	) VALUES (
		:content_id, :player_id, :status, :priority, :download_progress, :bytes_downloaded,
		:file_size_bytes, :download_speed, :retry_count, :max_retries, :last_error,
		:scheduled_for, :expires_at, :started_at, :completed_at, :next_retry_at, :created_at, :updated_at
	) RETURNING id`
	rows, err := s.db.NamedQueryContext(ctx, q, d)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: distribution of content %d to player %d already exists",
				distribution.ErrConflict, d.ContentID, d.PlayerID)
		}
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		return fmt.Errorf("insert distribution: no id returned")
	}
	return rows.Scan(&d.ID)
}

func (s *Store) SaveDistribution(ctx context.Context, d *model.ContentDistribution) error {
	const q = `
	UPDATE content_distributions SET
		status            = :status,
		priority          = :priority,
		download_progress = :download_progress,
		bytes_downloaded  = :bytes_downloaded,
		file_size_bytes   = :file_size_bytes,
		download_speed    = :download_speed,
		retry_count       = :retry_count,
		max_retries       = :max_retries,
		last_error        = :last_error,
		scheduled_for     = :scheduled_for,
		expires_at        = :expires_at,
		started_at        = :started_at,
		completed_at      = :completed_at,
		next_retry_at     = :next_retry_at,
		updated_at        = :updated_at
	 WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, d)
	if err != nil {
		return fmt.Errorf("save distribution %d: %w", d.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save distribution %d: %w", d.ID, model.ErrNotFound)
	}
	return nil
}
