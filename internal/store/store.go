package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// LocationRepository defines operations for locations.
type LocationRepository interface {
	Create(ctx context.Context, loc *model.Location) error
	GetByID(ctx context.Context, id int64) (*model.Location, error)
	GetByName(ctx context.Context, name, country string) (*model.Location, error)
	List(ctx context.Context) ([]model.Location, error)
	Delete(ctx context.Context, id int64) error
}

// TrackRepository defines operations for (user, location) tracking relations.
type TrackRepository interface {
	Create(ctx context.Context, track *model.TrackLocation) error
	Delete(ctx context.Context, userID, locationID int64) error
	Exists(ctx context.Context, userID, locationID int64) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]model.TrackLocation, error)
	LocationsForUser(ctx context.Context, userID int64) ([]model.Location, error)
}

// PreferenceRepository defines operations for per-user preferences.
type PreferenceRepository interface {
	Get(ctx context.Context, userID int64) (*model.UserPreference, error)
	Upsert(ctx context.Context, pref *model.UserPreference) error
	SetLastManualRefresh(ctx context.Context, userID int64, at time.Time) error
	List(ctx context.Context) ([]model.UserPreference, error)
}

// ScheduleRepository defines operations for location sync schedules.
// The (user_id, location_id) uniqueness constraint lives in the schema; Upsert
// relies on it so racing registrations can never produce duplicate rows.
type ScheduleRepository interface {
	Upsert(ctx context.Context, schedule *model.LocationSyncSchedule) error
	Get(ctx context.Context, userID, locationID int64) (*model.LocationSyncSchedule, error)
	ListByUser(ctx context.Context, userID int64) ([]model.LocationSyncSchedule, error)
	Delete(ctx context.Context, userID, locationID int64) error
	DeleteByUser(ctx context.Context, userID int64) error
	SetNextSync(ctx context.Context, userID, locationID int64, at time.Time) error
	Touch(ctx context.Context, userID, locationID int64, at time.Time) error
	TouchByLocation(ctx context.Context, locationID int64, at time.Time) error
	LatestSyncForUser(ctx context.Context, userID int64) (time.Time, error)
}

// JobRepository defines operations for location fetch-job history rows.
type JobRepository interface {
	Insert(ctx context.Context, job *model.LocationJob) error
	LatestActive(ctx context.Context, locationID int64) (*model.LocationJob, error)
	UpdateStatus(ctx context.Context, id int64, status model.JobStatus, at time.Time) error
}

// WeatherRepository defines operations for forecast time-series rows.
type WeatherRepository interface {
	ReplaceHourly(ctx context.Context, locationID int64, rows []model.HourWeather) error
	ReplaceDaily(ctx context.Context, locationID int64, rows []model.DayWeather) error
	ListHourly(ctx context.Context, locationID int64) ([]model.HourWeather, error)
	ListDaily(ctx context.Context, locationID int64) ([]model.DayWeather, error)
	HasData(ctx context.Context, locationID int64) (bool, error)
}

// Container holds all repositories.
type Container struct {
	Locations   LocationRepository
	Tracks      TrackRepository
	Preferences PreferenceRepository
	Schedules   ScheduleRepository
	Jobs        JobRepository
	Weather     WeatherRepository
}

// NewRepositories creates the SQLite repository implementations.
func NewRepositories(db *sqlx.DB) *Container {
	return &Container{
		Locations:   &locationRepository{db: db},
		Tracks:      &trackRepository{db: db},
		Preferences: &preferenceRepository{db: db},
		Schedules:   &scheduleRepository{db: db},
		Jobs:        &jobRepository{db: db},
		Weather:     &weatherRepository{db: db},
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	country    TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (name, country)
);

CREATE TABLE IF NOT EXISTS track_locations (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL,
	location_id  INTEGER NOT NULL REFERENCES locations (id) ON DELETE CASCADE,
	favorite     INTEGER NOT NULL DEFAULT 0,
	display_name TEXT,
	created_at   TIMESTAMP NOT NULL,
	UNIQUE (user_id, location_id)
);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id                  INTEGER PRIMARY KEY,
	units                    TEXT NOT NULL DEFAULT 'metric',
	refresh_interval_minutes INTEGER NOT NULL DEFAULT 30,
	last_manual_refresh_at   TIMESTAMP NOT NULL,
	updated_at               TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_schedules (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL,
	location_id  INTEGER NOT NULL REFERENCES locations (id) ON DELETE CASCADE,
	job_id       TEXT NOT NULL,
	last_sync_at TIMESTAMP NOT NULL,
	next_sync_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, location_id)
);

CREATE TABLE IF NOT EXISTS location_jobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL REFERENCES locations (id) ON DELETE CASCADE,
	job_id      TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_location_jobs_location_status
	ON location_jobs (location_id, status);

CREATE TABLE IF NOT EXISTS hour_weather (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL REFERENCES locations (id) ON DELETE CASCADE,
	timestamp   TIMESTAMP NOT NULL,
	temp_c      REAL NOT NULL,
	temp_f      REAL NOT NULL,
	humidity    REAL NOT NULL DEFAULT 0,
	wind_speed  REAL NOT NULL DEFAULT 0,
	condition   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_hour_weather_location_ts
	ON hour_weather (location_id, timestamp);

CREATE TABLE IF NOT EXISTS day_weather (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL REFERENCES locations (id) ON DELETE CASCADE,
	date        TEXT NOT NULL,
	min_temp_c  REAL NOT NULL,
	max_temp_c  REAL NOT NULL,
	min_temp_f  REAL NOT NULL,
	max_temp_f  REAL NOT NULL,
	humidity    REAL NOT NULL DEFAULT 0,
	condition   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_day_weather_location_date
	ON day_weather (location_id, date);
`

// Connect opens a SQLite database with sqlx and bootstraps the schema.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}
