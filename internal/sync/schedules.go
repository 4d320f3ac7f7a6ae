package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/cadence"
	"github.com/eugenenyathi/weatherapp-sub000/internal/jobs"
	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
)

// globalSweepJobID names the system-wide recurring sweep registration.
const globalSweepJobID = "weather-sweep-all"

// SyncJobID derives the deterministic recurring-job id for a (user, location)
// pair. Re-registering the same pair always targets the same job.
func SyncJobID(userID, locationID int64) string {
	return fmt.Sprintf("weather-sync-%d-%d", userID, locationID)
}

// ScheduleManager owns per-(user, location) sync schedules: it registers,
// re-registers, and removes the recurring fetch jobs and keeps the schedule
// rows in step with them.
type ScheduleManager struct {
	schedules store.ScheduleRepository
	tracks    store.TrackRepository
	prefs     store.PreferenceRepository
	locations store.LocationRepository
	weather   store.WeatherRepository
	sched     jobs.Scheduler
	pipeline  *Pipeline
	status    *StatusTracker
	log       *zap.Logger
	now       func() time.Time

	// defaultMinutes is the cadence for users without a preference row.
	defaultMinutes int
}

// NewScheduleManager wires the schedule manager. A non-positive
// defaultMinutes falls back to the package default cadence.
func NewScheduleManager(
	repos *store.Container,
	sched jobs.Scheduler,
	pipeline *Pipeline,
	status *StatusTracker,
	defaultMinutes int,
	log *zap.Logger,
) *ScheduleManager {
	if defaultMinutes <= 0 {
		defaultMinutes = cadence.DefaultMinutes
	}
	return &ScheduleManager{
		schedules:      repos.Schedules,
		tracks:         repos.Tracks,
		prefs:          repos.Preferences,
		locations:      repos.Locations,
		weather:        repos.Weather,
		sched:          sched,
		pipeline:       pipeline,
		status:         status,
		log:            log,
		now:            time.Now,
		defaultMinutes: defaultMinutes,
	}
}

// InitializeForUser registers one recurring fetch job per tracked location
// and inserts the schedule rows. Registration failures propagate: they
// indicate a durable misconfiguration, not a transient fetch problem.
func (m *ScheduleManager) InitializeForUser(ctx context.Context, userID int64, refreshIntervalMinutes int) error {
	expr := cadence.Translate(refreshIntervalMinutes)

	locs, err := m.tracks.LocationsForUser(ctx, userID)
	if err != nil {
		return err
	}

	for i := range locs {
		loc := locs[i]
		if err := m.registerSchedule(ctx, userID, &loc, expr); err != nil {
			return fmt.Errorf("failed to register sync schedule for location %d: %w", loc.ID, err)
		}
	}

	m.log.Info("sync schedules initialized",
		zap.Int64("userID", userID), zap.String("cadence", expr), zap.Int("locations", len(locs)))
	return nil
}

// UpdateForUser re-registers every existing recurring job under the same id
// with the new cadence and bumps nextSyncAt. A user with no schedules is
// handled as a first-time initialization.
func (m *ScheduleManager) UpdateForUser(ctx context.Context, userID int64, refreshIntervalMinutes int) error {
	rows, err := m.schedules.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return m.InitializeForUser(ctx, userID, refreshIntervalMinutes)
	}

	expr := cadence.Translate(refreshIntervalMinutes)
	for _, row := range rows {
		loc, err := m.locations.GetByID(ctx, row.LocationID)
		if err != nil {
			return err
		}
		if err := m.sched.RegisterRecurring(row.JobID, expr, m.locationWork(userID, loc)); err != nil {
			return fmt.Errorf("failed to re-register job %s: %w", row.JobID, err)
		}

		next, err := cadence.Next(expr, m.now().UTC())
		if err != nil {
			return err
		}
		if err := m.schedules.SetNextSync(ctx, userID, row.LocationID, next); err != nil {
			return err
		}
	}

	m.log.Info("sync schedules updated",
		zap.Int64("userID", userID), zap.String("cadence", expr), zap.Int("schedules", len(rows)))
	return nil
}

// RemoveForUser unregisters every recurring job for the user and deletes the
// schedule rows. Removing when none exist is a no-op.
func (m *ScheduleManager) RemoveForUser(ctx context.Context, userID int64) error {
	rows, err := m.schedules.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := m.sched.RemoveRecurring(row.JobID); err != nil {
			return fmt.Errorf("failed to remove job %s: %w", row.JobID, err)
		}
	}

	return m.schedules.DeleteByUser(ctx, userID)
}

// InitializeAll rebuilds every user's recurring-job registrations from their
// stored preferences. Run once at process start: registrations are not
// assumed to survive a restart in the scheduler's own store, so desired state
// is re-asserted rather than trusted.
func (m *ScheduleManager) InitializeAll(ctx context.Context) error {
	prefs, err := m.prefs.List(ctx)
	if err != nil {
		return err
	}

	for _, pref := range prefs {
		if err := m.UpdateForUser(ctx, pref.UserID, pref.RefreshIntervalMinutes); err != nil {
			return fmt.Errorf("failed to initialize schedules for user %d: %w", pref.UserID, err)
		}
	}

	m.log.Info("all user sync schedules initialized", zap.Int("users", len(prefs)))
	return nil
}

// TriggerImmediateSync enqueues one fire-and-forget fetch sweep over the
// user's tracked locations, bypassing cadence. The handle is recorded per
// location so read paths can wait on it.
func (m *ScheduleManager) TriggerImmediateSync(ctx context.Context, userID int64) error {
	locs, err := m.tracks.LocationsForUser(ctx, userID)
	if err != nil {
		return err
	}

	handle, err := m.sched.Enqueue(func(jobCtx context.Context) {
		if err := m.pipeline.SweepForUser(jobCtx, userID); err != nil {
			m.log.Error("immediate sync sweep failed", zap.Int64("userID", userID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	for _, loc := range locs {
		if err := m.status.RecordEnqueued(ctx, loc.ID, handle); err != nil {
			return err
		}
	}

	// Close out the job rows once the sweep settles, so they never linger
	// as Pending for readers that do not wait.
	locIDs := make([]int64, 0, len(locs))
	for _, loc := range locs {
		locIDs = append(locIDs, loc.ID)
	}
	if _, err := m.sched.EnqueueContinuation(handle, func(jobCtx context.Context) {
		for _, id := range locIDs {
			if err := m.status.MarkCompleted(jobCtx, id); err != nil {
				m.log.Error("failed to close fetch job row",
					zap.Int64("locationID", id), zap.Error(err))
			}
		}
	}); err != nil {
		return err
	}

	m.log.Info("immediate sync enqueued",
		zap.Int64("userID", userID), zap.String("jobID", handle), zap.Int("locations", len(locs)))
	return nil
}

// TrackLocation provisions the sync schedule for a newly tracked location.
// If the location already has a pending fetch, only the schedule row is
// provisioned; the existing job's completion populates lastSyncAt. A fresh
// fetch is enqueued only when the location has neither data nor an active
// job.
func (m *ScheduleManager) TrackLocation(ctx context.Context, userID, locationID int64) error {
	loc, err := m.locations.GetByID(ctx, locationID)
	if err != nil {
		return err
	}

	minutes := m.defaultMinutes
	pref, err := m.prefs.Get(ctx, userID)
	if err == nil {
		minutes = pref.RefreshIntervalMinutes
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	expr := cadence.Translate(minutes)
	if err := m.registerSchedule(ctx, userID, loc, expr); err != nil {
		return err
	}

	has, err := m.weather.HasData(ctx, locationID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	if _, err := m.status.jobRepo.LatestActive(ctx, locationID); err == nil {
		// A fetch is already in flight; do not double-enqueue.
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	handle, err := m.sched.Enqueue(func(jobCtx context.Context) {
		if _, err := m.pipeline.SyncLocation(jobCtx, loc); err != nil {
			m.log.Error("initial fetch failed", zap.Int64("locationID", loc.ID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	if err := m.status.RecordEnqueued(ctx, locationID, handle); err != nil {
		return err
	}
	_, err = m.sched.EnqueueContinuation(handle, func(jobCtx context.Context) {
		if err := m.status.MarkCompleted(jobCtx, locationID); err != nil {
			m.log.Error("failed to close fetch job row",
				zap.Int64("locationID", locationID), zap.Error(err))
		}
	})
	return err
}

// UntrackLocation removes the recurring job and schedule row for a pair the
// user stopped tracking. Idempotent.
func (m *ScheduleManager) UntrackLocation(ctx context.Context, userID, locationID int64) error {
	if err := m.sched.RemoveRecurring(SyncJobID(userID, locationID)); err != nil {
		return err
	}
	return m.schedules.Delete(ctx, userID, locationID)
}

// RegisterGlobalSweep registers the system-wide recurring sweep over all
// locations, a safety net independent of per-user cadences.
func (m *ScheduleManager) RegisterGlobalSweep(expr string) error {
	return m.sched.RegisterRecurring(globalSweepJobID, expr, func(jobCtx context.Context) {
		if err := m.pipeline.SweepAll(jobCtx); err != nil {
			m.log.Error("global sweep failed", zap.Error(err))
		}
	})
}

// registerSchedule registers the recurring job for one pair and upserts its
// schedule row. lastSyncAt starts at the epoch unless the location already
// has weather data.
func (m *ScheduleManager) registerSchedule(ctx context.Context, userID int64, loc *model.Location, expr string) error {
	jobID := SyncJobID(userID, loc.ID)
	if err := m.sched.RegisterRecurring(jobID, expr, m.locationWork(userID, loc)); err != nil {
		return err
	}

	lastSync := time.Unix(0, 0).UTC()
	has, err := m.weather.HasData(ctx, loc.ID)
	if err != nil {
		return err
	}
	if has {
		lastSync = m.now().UTC()
	}

	next, err := cadence.Next(expr, m.now().UTC())
	if err != nil {
		return err
	}

	return m.schedules.Upsert(ctx, &model.LocationSyncSchedule{
		UserID:     userID,
		LocationID: loc.ID,
		JobID:      jobID,
		LastSyncAt: lastSync,
		NextSyncAt: next,
	})
}

// locationWork builds the recurring fetch closure for one pair: both
// forecast horizons plus the freshness touch on the schedule row.
func (m *ScheduleManager) locationWork(userID int64, loc *model.Location) jobs.Work {
	locCopy := *loc
	return func(jobCtx context.Context) {
		synced, err := m.pipeline.SyncLocation(jobCtx, &locCopy)
		if err != nil {
			m.log.Error("scheduled fetch failed",
				zap.Int64("userID", userID), zap.Int64("locationID", locCopy.ID), zap.Error(err))
			return
		}
		if !synced {
			return
		}
		if err := m.schedules.Touch(jobCtx, userID, locCopy.ID, m.now().UTC()); err != nil {
			m.log.Error("failed to update schedule freshness",
				zap.Int64("userID", userID), zap.Int64("locationID", locCopy.ID), zap.Error(err))
		}
	}
}
