package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
)

type locationRepository struct {
	db *sqlx.DB
}

func (r *locationRepository) Create(ctx context.Context, loc *model.Location) error {
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO locations (name, country, lat, lon, created_at)
		VALUES (:name, :country, :lat, :lon, :created_at)`, loc)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	loc.ID = id
	return nil
}

func (r *locationRepository) GetByID(ctx context.Context, id int64) (*model.Location, error) {
	var loc model.Location
	err := r.db.GetContext(ctx, &loc, "SELECT * FROM locations WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (r *locationRepository) GetByName(ctx context.Context, name, country string) (*model.Location, error) {
	var loc model.Location
	err := r.db.GetContext(ctx, &loc,
		"SELECT * FROM locations WHERE LOWER(name) = LOWER(?) AND LOWER(country) = LOWER(?)",
		name, country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (r *locationRepository) List(ctx context.Context) ([]model.Location, error) {
	var locs []model.Location
	if err := r.db.SelectContext(ctx, &locs, "SELECT * FROM locations ORDER BY id"); err != nil {
		return nil, err
	}
	return locs, nil
}

func (r *locationRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id)
	return err
}

type trackRepository struct {
	db *sqlx.DB
}

func (r *trackRepository) Create(ctx context.Context, track *model.TrackLocation) error {
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO track_locations (user_id, location_id, favorite, display_name, created_at)
		VALUES (:user_id, :location_id, :favorite, :display_name, :created_at)`, track)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	track.ID = id
	return nil
}

func (r *trackRepository) Delete(ctx context.Context, userID, locationID int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM track_locations WHERE user_id = ? AND location_id = ?", userID, locationID)
	return err
}

func (r *trackRepository) Exists(ctx context.Context, userID, locationID int64) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM track_locations WHERE user_id = ? AND location_id = ?",
		userID, locationID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *trackRepository) ListByUser(ctx context.Context, userID int64) ([]model.TrackLocation, error) {
	var tracks []model.TrackLocation
	err := r.db.SelectContext(ctx, &tracks,
		"SELECT * FROM track_locations WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

func (r *trackRepository) LocationsForUser(ctx context.Context, userID int64) ([]model.Location, error) {
	var locs []model.Location
	err := r.db.SelectContext(ctx, &locs, `
		SELECT l.*
		FROM locations l
		INNER JOIN track_locations t ON t.location_id = l.id
		WHERE t.user_id = ?
		ORDER BY l.id`, userID)
	if err != nil {
		return nil, err
	}
	return locs, nil
}

type preferenceRepository struct {
	db *sqlx.DB
}

func (r *preferenceRepository) Get(ctx context.Context, userID int64) (*model.UserPreference, error) {
	var pref model.UserPreference
	err := r.db.GetContext(ctx, &pref, "SELECT * FROM user_preferences WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, pref *model.UserPreference) error {
	if pref.LastManualRefreshAt.IsZero() {
		pref.LastManualRefreshAt = time.Unix(0, 0).UTC()
	}
	pref.UpdatedAt = time.Now().UTC()
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO user_preferences (user_id, units, refresh_interval_minutes, last_manual_refresh_at, updated_at)
		VALUES (:user_id, :units, :refresh_interval_minutes, :last_manual_refresh_at, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			units = excluded.units,
			refresh_interval_minutes = excluded.refresh_interval_minutes,
			updated_at = excluded.updated_at`, pref)
	return err
}

func (r *preferenceRepository) SetLastManualRefresh(ctx context.Context, userID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE user_preferences SET last_manual_refresh_at = ?, updated_at = ? WHERE user_id = ?",
		at, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *preferenceRepository) List(ctx context.Context) ([]model.UserPreference, error) {
	var prefs []model.UserPreference
	if err := r.db.SelectContext(ctx, &prefs, "SELECT * FROM user_preferences ORDER BY user_id"); err != nil {
		return nil, err
	}
	return prefs, nil
}

type scheduleRepository struct {
	db *sqlx.DB
}

func (r *scheduleRepository) Upsert(ctx context.Context, schedule *model.LocationSyncSchedule) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO sync_schedules (user_id, location_id, job_id, last_sync_at, next_sync_at)
		VALUES (:user_id, :location_id, :job_id, :last_sync_at, :next_sync_at)
		ON CONFLICT (user_id, location_id) DO UPDATE SET
			job_id = excluded.job_id,
			next_sync_at = excluded.next_sync_at`, schedule)
	return err
}

func (r *scheduleRepository) Get(ctx context.Context, userID, locationID int64) (*model.LocationSyncSchedule, error) {
	var schedule model.LocationSyncSchedule
	err := r.db.GetContext(ctx, &schedule,
		"SELECT * FROM sync_schedules WHERE user_id = ? AND location_id = ?", userID, locationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepository) ListByUser(ctx context.Context, userID int64) ([]model.LocationSyncSchedule, error) {
	var schedules []model.LocationSyncSchedule
	err := r.db.SelectContext(ctx, &schedules,
		"SELECT * FROM sync_schedules WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepository) Delete(ctx context.Context, userID, locationID int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM sync_schedules WHERE user_id = ? AND location_id = ?", userID, locationID)
	return err
}

func (r *scheduleRepository) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sync_schedules WHERE user_id = ?", userID)
	return err
}

func (r *scheduleRepository) SetNextSync(ctx context.Context, userID, locationID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sync_schedules SET next_sync_at = ? WHERE user_id = ? AND location_id = ?",
		at, userID, locationID)
	return err
}

func (r *scheduleRepository) Touch(ctx context.Context, userID, locationID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sync_schedules SET last_sync_at = ? WHERE user_id = ? AND location_id = ?",
		at, userID, locationID)
	return err
}

func (r *scheduleRepository) TouchByLocation(ctx context.Context, locationID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sync_schedules SET last_sync_at = ? WHERE location_id = ?", at, locationID)
	return err
}

func (r *scheduleRepository) LatestSyncForUser(ctx context.Context, userID int64) (time.Time, error) {
	var latest time.Time
	err := r.db.GetContext(ctx, &latest, `
		SELECT last_sync_at FROM sync_schedules
		WHERE user_id = ?
		ORDER BY last_sync_at DESC
		LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return latest, nil
}

type jobRepository struct {
	db *sqlx.DB
}

func (r *jobRepository) Insert(ctx context.Context, job *model.LocationJob) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO location_jobs (location_id, job_id, status, created_at, updated_at)
		VALUES (:location_id, :job_id, :status, :created_at, :updated_at)`, job)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	job.ID = id
	return nil
}

func (r *jobRepository) LatestActive(ctx context.Context, locationID int64) (*model.LocationJob, error) {
	var job model.LocationJob
	err := r.db.GetContext(ctx, &job, `
		SELECT * FROM location_jobs
		WHERE location_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, locationID, model.JobPending, model.JobProcessing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE location_jobs SET status = ?, updated_at = ? WHERE id = ?", status, at, id)
	return err
}

type weatherRepository struct {
	db *sqlx.DB
}

// ReplaceHourly removes existing rows whose timestamp matches an incoming row
// and inserts the new rows, as one transaction. The provider may shift
// forecast boundaries between calls, so key collisions are resolved here
// rather than by a uniqueness constraint.
func (r *weatherRepository) ReplaceHourly(ctx context.Context, locationID int64, rows []model.HourWeather) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM hour_weather WHERE location_id = ? AND timestamp = ?",
			locationID, row.Timestamp); err != nil {
			return fmt.Errorf("failed to clear hourly row: %w", err)
		}
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO hour_weather (location_id, timestamp, temp_c, temp_f, humidity, wind_speed, condition)
		VALUES (:location_id, :timestamp, :temp_c, :temp_f, :humidity, :wind_speed, :condition)`,
		rows); err != nil {
		return fmt.Errorf("failed to insert hourly rows: %w", err)
	}

	return tx.Commit()
}

// ReplaceDaily is the daily counterpart of ReplaceHourly, keyed by date.
func (r *weatherRepository) ReplaceDaily(ctx context.Context, locationID int64, rows []model.DayWeather) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM day_weather WHERE location_id = ? AND date = ?",
			locationID, row.Date); err != nil {
			return fmt.Errorf("failed to clear daily row: %w", err)
		}
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO day_weather (location_id, date, min_temp_c, max_temp_c, min_temp_f, max_temp_f, humidity, condition)
		VALUES (:location_id, :date, :min_temp_c, :max_temp_c, :min_temp_f, :max_temp_f, :humidity, :condition)`,
		rows); err != nil {
		return fmt.Errorf("failed to insert daily rows: %w", err)
	}

	return tx.Commit()
}

func (r *weatherRepository) ListHourly(ctx context.Context, locationID int64) ([]model.HourWeather, error) {
	var rows []model.HourWeather
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM hour_weather WHERE location_id = ? ORDER BY timestamp", locationID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *weatherRepository) ListDaily(ctx context.Context, locationID int64) ([]model.DayWeather, error) {
	var rows []model.DayWeather
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM day_weather WHERE location_id = ? ORDER BY date", locationID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *weatherRepository) HasData(ctx context.Context, locationID int64) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT
			(SELECT COUNT(*) FROM hour_weather WHERE location_id = ?) +
			(SELECT COUNT(*) FROM day_weather WHERE location_id = ?)`,
		locationID, locationID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
