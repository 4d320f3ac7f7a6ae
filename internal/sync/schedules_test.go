package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/jobs"
	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
)

func testManager(t *testing.T, repos *store.Container, sched jobs.Scheduler) *ScheduleManager {
	t.Helper()

	pipeline := testPipeline(t, repos, newFakeClient())
	tracker := NewStatusTracker(repos, sched, pipeline, time.Second, 10*time.Millisecond, zap.NewNop())
	return NewScheduleManager(repos, sched, pipeline, tracker, 30, zap.NewNop())
}

func TestInitializeForUserRegistersTrackedLocations(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	paris := seedLocation(t, repos, "Paris", 48.85)
	lyon := seedLocation(t, repos, "Lyon", 45.76)
	seedTrack(t, repos, 7, paris)
	seedTrack(t, repos, 7, lyon)

	require.NoError(t, m.InitializeForUser(ctx, 7, 30))

	assert.Equal(t, 2, sched.recurringCount())
	assert.Equal(t, "*/30 * * * *", sched.cadenceOf(SyncJobID(7, paris.ID)))
	assert.Equal(t, "*/30 * * * *", sched.cadenceOf(SyncJobID(7, lyon.ID)))

	rows, err := repos.Schedules.ListByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, SyncJobID(7, row.LocationID), row.JobID)
		// Never synced yet, so freshness starts at the epoch.
		assert.Equal(t, time.Unix(0, 0).UTC(), row.LastSyncAt.UTC())
		assert.True(t, row.NextSyncAt.After(row.LastSyncAt))
	}
}

func TestUpdateForUserKeepsJobIDAndBumpsNextSync(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	seedTrack(t, repos, 7, loc)
	require.NoError(t, m.InitializeForUser(ctx, 7, 30))

	before, err := repos.Schedules.ListByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, m.UpdateForUser(ctx, 7, 60))

	// Same registration id, new cadence, still exactly one row.
	assert.Equal(t, 1, sched.recurringCount())
	assert.Equal(t, "0 */1 * * *", sched.cadenceOf(SyncJobID(7, loc.ID)))

	after, err := repos.Schedules.ListByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].JobID, after[0].JobID)
}

func TestUpdateForUserWithoutSchedulesInitializes(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	seedTrack(t, repos, 7, loc)

	require.NoError(t, m.UpdateForUser(ctx, 7, 15))

	assert.Equal(t, "*/15 * * * *", sched.cadenceOf(SyncJobID(7, loc.ID)))
	rows, err := repos.Schedules.ListByUser(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRemoveForUser(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	seedTrack(t, repos, 7, loc)
	require.NoError(t, m.InitializeForUser(ctx, 7, 30))

	require.NoError(t, m.RemoveForUser(ctx, 7))

	assert.Equal(t, 0, sched.recurringCount())
	rows, err := repos.Schedules.ListByUser(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Removing again is a no-op.
	require.NoError(t, m.RemoveForUser(ctx, 7))
}

func TestInitializeAllUsesStoredPreferences(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	paris := seedLocation(t, repos, "Paris", 48.85)
	lyon := seedLocation(t, repos, "Lyon", 45.76)
	seedTrack(t, repos, 7, paris)
	seedTrack(t, repos, 8, lyon)

	require.NoError(t, repos.Preferences.Upsert(ctx, &model.UserPreference{
		UserID: 7, Units: model.UnitsMetric, RefreshIntervalMinutes: 15,
	}))
	require.NoError(t, repos.Preferences.Upsert(ctx, &model.UserPreference{
		UserID: 8, Units: model.UnitsImperial, RefreshIntervalMinutes: 120,
	}))

	require.NoError(t, m.InitializeAll(ctx))

	assert.Equal(t, "*/15 * * * *", sched.cadenceOf(SyncJobID(7, paris.ID)))
	assert.Equal(t, "0 */2 * * *", sched.cadenceOf(SyncJobID(8, lyon.ID)))
}

func TestTrackLocationEnqueuesInitialFetch(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)

	require.NoError(t, m.TrackLocation(ctx, 7, loc.ID))

	// Schedule provisioned on default cadence plus one immediate fetch.
	assert.Equal(t, "*/30 * * * *", sched.cadenceOf(SyncJobID(7, loc.ID)))
	assert.Equal(t, 1, sched.enqueueCount())

	job, err := repos.Jobs.LatestActive(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, job.Status)
}

func TestTrackLocationSkipsFetchWhenDataExists(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	require.NoError(t, repos.Weather.ReplaceDaily(ctx, loc.ID, []model.DayWeather{
		{LocationID: loc.ID, Date: "2024-03-01"},
	}))

	require.NoError(t, m.TrackLocation(ctx, 7, loc.ID))

	assert.Equal(t, 0, sched.enqueueCount())

	// Fresh data means lastSyncAt starts now, not at the epoch.
	rows, err := repos.Schedules.ListByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].LastSyncAt.After(time.Unix(0, 0)))
}

func TestTrackLocationDoesNotDoubleEnqueue(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)

	// Another user's track already put a fetch in flight.
	require.NoError(t, repos.Jobs.Insert(ctx, &model.LocationJob{
		LocationID: loc.ID, JobID: "in-flight", Status: model.JobProcessing,
	}))

	require.NoError(t, m.TrackLocation(ctx, 7, loc.ID))

	assert.Equal(t, 0, sched.enqueueCount())
	assert.Equal(t, "*/30 * * * *", sched.cadenceOf(SyncJobID(7, loc.ID)))
}

func TestTrackLocationUsesConfiguredDefaultCadence(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	pipeline := testPipeline(t, repos, newFakeClient())
	tracker := NewStatusTracker(repos, sched, pipeline, time.Second, 10*time.Millisecond, zap.NewNop())
	m := NewScheduleManager(repos, sched, pipeline, tracker, 15, zap.NewNop())
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)

	// No preference row: the configured default drives the cadence.
	require.NoError(t, m.TrackLocation(ctx, 7, loc.ID))
	assert.Equal(t, "*/15 * * * *", sched.cadenceOf(SyncJobID(7, loc.ID)))
}

func TestTrackLocationHonorsUserPreference(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	require.NoError(t, repos.Preferences.Upsert(ctx, &model.UserPreference{
		UserID: 7, Units: model.UnitsMetric, RefreshIntervalMinutes: 60,
	}))

	require.NoError(t, m.TrackLocation(ctx, 7, loc.ID))

	assert.Equal(t, "0 */1 * * *", sched.cadenceOf(SyncJobID(7, loc.ID)))
}

func TestUntrackLocation(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	require.NoError(t, m.TrackLocation(ctx, 7, loc.ID))

	require.NoError(t, m.UntrackLocation(ctx, 7, loc.ID))

	assert.Equal(t, 0, sched.recurringCount())
	rows, err := repos.Schedules.ListByUser(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, m.UntrackLocation(ctx, 7, loc.ID))
}

func TestTriggerImmediateSyncRecordsPerLocation(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	paris := seedLocation(t, repos, "Paris", 48.85)
	lyon := seedLocation(t, repos, "Lyon", 45.76)
	seedTrack(t, repos, 7, paris)
	seedTrack(t, repos, 7, lyon)

	require.NoError(t, m.TriggerImmediateSync(ctx, 7))

	// One sweep job, tracked against each location.
	assert.Equal(t, 1, sched.enqueueCount())
	for _, loc := range []*model.Location{paris, lyon} {
		job, err := repos.Jobs.LatestActive(ctx, loc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobPending, job.Status)
	}
}

func TestTriggerImmediateSyncClosesJobRows(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)
	seedTrack(t, repos, 7, loc)

	require.NoError(t, m.TriggerImmediateSync(ctx, 7))

	job, err := repos.Jobs.LatestActive(ctx, loc.ID)
	require.NoError(t, err)

	// The continuation closes the row once the sweep settles; no reader has
	// to call WaitForCompletion for that to happen.
	sched.settle(job.JobID)

	_, err = repos.Jobs.LatestActive(ctx, loc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTrackLocationJobRowSettles(t *testing.T) {
	repos := testRepos(t)
	sched := jobs.NewGocronScheduler(zap.NewNop())
	t.Cleanup(sched.Stop)
	m := testManager(t, repos, sched)
	ctx := context.Background()

	loc := seedLocation(t, repos, "Paris", 48.85)

	require.NoError(t, m.TrackLocation(ctx, 7, loc.ID))

	// The initial fetch runs in the background and its continuation closes
	// the job row, so the row never lingers as Pending.
	require.Eventually(t, func() bool {
		_, err := repos.Jobs.LatestActive(ctx, loc.ID)
		return errors.Is(err, store.ErrNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	has, err := repos.Weather.HasData(ctx, loc.ID)
	require.NoError(t, err)
	assert.True(t, has)

	// A later tracker of the same location sees data and enqueues nothing.
	require.NoError(t, m.TrackLocation(ctx, 8, loc.ID))
	_, err = repos.Jobs.LatestActive(ctx, loc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegisterGlobalSweep(t *testing.T) {
	repos := testRepos(t)
	sched := newFakeScheduler()
	m := testManager(t, repos, sched)

	require.NoError(t, m.RegisterGlobalSweep("0 * * * *"))
	assert.Equal(t, "0 * * * *", sched.cadenceOf("weather-sweep-all"))
}
