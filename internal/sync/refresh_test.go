package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
)

func testRefresh(t *testing.T, repos *store.Container, sched *fakeScheduler, cooldown time.Duration) *RefreshService {
	t.Helper()

	return NewRefreshService(repos, testManager(t, repos, sched), cooldown, zap.NewNop())
}

func TestRefreshRequiresPreferences(t *testing.T) {
	repos := testRepos(t)
	svc := testRefresh(t, repos, newFakeScheduler(), time.Minute)

	_, err := svc.Refresh(context.Background(), 7)
	assert.ErrorIs(t, err, ErrPreferencesMissing)
}

func TestRefreshEnforcesCooldown(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	svc := testRefresh(t, repos, sched, 10*time.Minute)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	seedTrack(t, repos, 7, loc)
	require.NoError(t, repos.Preferences.Upsert(ctx, &model.UserPreference{
		UserID: 7, Units: model.UnitsMetric, RefreshIntervalMinutes: 30,
	}))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	result, err := svc.Refresh(ctx, 7)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, base.Add(10*time.Minute), result.NextAllowedAt)
	assert.Equal(t, 1, sched.enqueueCount())

	// A second attempt inside the window is rejected with the remaining wait.
	svc.now = func() time.Time { return base.Add(3 * time.Minute) }
	_, err = svc.Refresh(ctx, 7)
	var rateErr *RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 7*time.Minute, rateErr.RetryAfter)
	assert.Equal(t, 1, sched.enqueueCount())

	// Once the cooldown elapses the refresh goes through again.
	svc.now = func() time.Time { return base.Add(11 * time.Minute) }
	result, err = svc.Refresh(ctx, 7)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, sched.enqueueCount())
}

func TestRefreshFailedTriggerKeepsCooldownOpen(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	svc := testRefresh(t, repos, sched, 10*time.Minute)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	seedTrack(t, repos, 7, loc)
	require.NoError(t, repos.Preferences.Upsert(ctx, &model.UserPreference{
		UserID: 7, Units: model.UnitsMetric, RefreshIntervalMinutes: 30,
	}))

	sched.enqueueErr = errors.New("scheduler unavailable")
	_, err := svc.Refresh(ctx, 7)
	require.Error(t, err)

	// The failed attempt must not consume the cooldown window: once the
	// scheduler recovers, a refresh goes through immediately.
	sched.enqueueErr = nil
	result, err := svc.Refresh(ctx, 7)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRefreshReportsLatestSync(t *testing.T) {
	repos := testRepos(t)
	svc := testRefresh(t, repos, newFakeScheduler(), time.Minute)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	seedTrack(t, repos, 7, loc)
	require.NoError(t, repos.Preferences.Upsert(ctx, &model.UserPreference{
		UserID: 7, Units: model.UnitsMetric, RefreshIntervalMinutes: 30,
	}))

	synced := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repos.Schedules.Upsert(ctx, &model.LocationSyncSchedule{
		UserID: 7, LocationID: loc.ID, JobID: SyncJobID(7, loc.ID),
		LastSyncAt: synced, NextSyncAt: synced.Add(30 * time.Minute),
	}))

	result, err := svc.Refresh(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, synced, result.LastSyncedAt.UTC())
}
