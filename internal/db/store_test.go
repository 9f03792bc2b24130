package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/marquee/internal/distribution"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if TestStore == nil {
		require.NoError(t, InitTestDB("../../migrations"))
	}
	DB.MustExec(`TRUNCATE content_distributions, schedules, campaign_contents, campaigns, contents, players RESTART IDENTITY CASCADE`)
	return TestStore
}

func seed(t *testing.T) {
	t.Helper()
	DB.MustExec(`INSERT INTO players (name, mac_address, platform, cast_device_id, last_ping)
		VALUES ('Lobby', 'aa:bb', 'network', NULL, '2025-06-10 22:59:00+00'),
		       ('Bar', NULL, 'cast', 'uuid-bar', NULL)`)
	DB.MustExec(`INSERT INTO contents (name, type, url, duration, file_size_bytes)
		VALUES ('Promo', 'video', 'media/promo.mp4', 20, 1000),
		       ('Logo', 'image', 'media/logo.png', 0, 10),
		       ('Bed', 'audio', 'media/bed.mp3', 120, 500)`)
	DB.MustExec(`INSERT INTO campaigns (name, start_date, end_date, priority, background_audio_content_id)
		VALUES ('Summer', '2025-06-01', '2025-06-30', 2, 3)`)
	DB.MustExec(`INSERT INTO campaign_contents (campaign_id, content_id, order_index, duration_override)
		VALUES (1, 2, 1, 5), (1, 1, 0, NULL)`)
	DB.MustExec(`INSERT INTO schedules (campaign_id, player_id, start_date, end_date, start_time, end_time, days_of_week, priority)
		VALUES (1, 1, '2025-06-01', '2025-06-30', '22:00', '06:00', '{1,2,3}', 3)`)
}

func TestPlayers(t *testing.T) {
	store := setupStore(t)
	seed(t)
	ctx := context.Background()

	p, err := store.GetPlayer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "aa:bb", *p.MACAddress)
	assert.True(t, p.LastPing.Valid)

	_, err = store.GetPlayer(ctx, 99)
	assert.ErrorIs(t, err, model.ErrNotFound)

	list, err := store.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[1].LastPing.Valid)

	p.IsPlaying = true
	title := "Promo"
	p.CurrentContentTitle = &title
	p.LastVerifiedAt = model.At(time.Date(2025, 6, 10, 23, 0, 0, 0, time.UTC))
	require.NoError(t, store.SavePlayerState(ctx, &p))

	got, err := store.GetPlayer(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.IsPlaying)
	assert.Equal(t, "Promo", *got.CurrentContentTitle)
	assert.True(t, got.LastVerifiedAt.Valid)

	missing := model.Player{ID: 42}
	assert.ErrorIs(t, store.SavePlayerState(ctx, &missing), model.ErrNotFound)
}

func TestSchedulesAndCampaigns(t *testing.T) {
	store := setupStore(t)
	seed(t)
	ctx := context.Background()

	list, err := store.SchedulesForPlayer(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	s := list[0]
	require.NotNil(t, s.StartTime)
	assert.Equal(t, model.NewTimeOfDay(22, 0, 0), *s.StartTime)
	assert.Equal(t, model.NewTimeOfDay(6, 0, 0), *s.EndTime)
	assert.Equal(t, model.Weekdays{1, 2, 3}, s.DaysOfWeek)
	assert.Equal(t, model.LayerMain, s.ContentType)
	assert.True(t, s.IsActive)

	campaigns, err := store.CampaignsByIDs(ctx, []int{1, 7})
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	c := campaigns[1]
	require.Len(t, c.Contents, 2)
	assert.Equal(t, "Promo", c.Contents[0].Content.Name)
	assert.Equal(t, 5, *c.Contents[1].DurationOverride)
	require.NotNil(t, c.BackgroundAudio)
	assert.Equal(t, "Bed", c.BackgroundAudio.Name)

	empty, err := store.CampaignsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDistributions(t *testing.T) {
	store := setupStore(t)
	seed(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	d := model.ContentDistribution{
		ContentID:     1,
		PlayerID:      1,
		Status:        model.DistributionPending,
		FileSizeBytes: 1000,
		MaxRetries:    3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.CreateDistribution(ctx, &d))
	assert.Equal(t, 1, d.ID)

	dup := d
	assert.ErrorIs(t, store.CreateDistribution(ctx, &dup), distribution.ErrConflict)

	found, err := store.FindDistribution(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, d.ID, found.ID)

	_, err = store.FindDistribution(ctx, 2, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	found.Status = model.DistributionDownloading
	found.BytesDownloaded = 400
	found.DownloadProgress = 40
	found.StartedAt = &now
	require.NoError(t, store.SaveDistribution(ctx, &found))

	got, err := store.GetDistribution(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionDownloading, got.Status)
	assert.Equal(t, int64(400), got.BytesDownloaded)
	require.NotNil(t, got.StartedAt)

	list, err := store.DistributionsForPlayer(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetDistribution(ctx, 99)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
