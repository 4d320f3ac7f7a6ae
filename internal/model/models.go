package model

import (
	"time"
)

// Units is the measurement system a user prefers for weather values.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// JobStatus is the lifecycle state of a location fetch job.
// Pending -> Processing -> one of Succeeded/Failed/Deleted.
type JobStatus string

const (
	JobPending    JobStatus = "Pending"
	JobProcessing JobStatus = "Processing"
	JobSucceeded  JobStatus = "Succeeded"
	JobFailed     JobStatus = "Failed"
	JobDeleted    JobStatus = "Deleted"
)

// Terminal reports whether no further transition can occur from this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobDeleted:
		return true
	}
	return false
}

// Location is a geographic place weather is tracked for.
// Created once per unique (name, country); never mutated afterwards.
type Location struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Country   string    `db:"country" json:"country"`
	Lat       float64   `db:"lat" json:"lat"`
	Lon       float64   `db:"lon" json:"lon"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TrackLocation is the (user, location) tracking relation. Creating one
// provisions a sync schedule for the pair; deleting one removes it.
type TrackLocation struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"userId"`
	LocationID  int64     `db:"location_id" json:"locationId"`
	Favorite    bool      `db:"favorite" json:"favorite"`
	DisplayName *string   `db:"display_name" json:"displayName,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// UserPreference holds per-user settings. Exactly one row per user; the
// refresh interval is the single source of cadence for all of the user's
// sync schedules.
type UserPreference struct {
	UserID                 int64     `db:"user_id" json:"userId"`
	Units                  Units     `db:"units" json:"units"`
	RefreshIntervalMinutes int       `db:"refresh_interval_minutes" json:"refreshIntervalMinutes"`
	LastManualRefreshAt    time.Time `db:"last_manual_refresh_at" json:"lastManualRefreshAt"`
	UpdatedAt              time.Time `db:"updated_at" json:"updatedAt"`
}

// LocationSyncSchedule pairs a (user, location) with its recurring fetch job.
// At most one row per pair, enforced by a uniqueness constraint.
type LocationSyncSchedule struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"userId"`
	LocationID int64     `db:"location_id" json:"locationId"`
	JobID      string    `db:"job_id" json:"jobId"`
	LastSyncAt time.Time `db:"last_sync_at" json:"lastSyncAt"`
	NextSyncAt time.Time `db:"next_sync_at" json:"nextSyncAt"`
}

// LocationJob records one in-flight or completed fetch attempt for a
// location. Rows are append-only history; only the most recent non-terminal
// row matters to waiters.
type LocationJob struct {
	ID         int64     `db:"id" json:"id"`
	LocationID int64     `db:"location_id" json:"locationId"`
	JobID      string    `db:"job_id" json:"jobId"`
	Status     JobStatus `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// HourWeather is one hourly forecast point for a location.
// At most one row per (location, timestamp).
type HourWeather struct {
	ID         int64     `db:"id" json:"id"`
	LocationID int64     `db:"location_id" json:"locationId"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	TempC      float64   `db:"temp_c" json:"tempC"`
	TempF      float64   `db:"temp_f" json:"tempF"`
	Humidity   float64   `db:"humidity" json:"humidityPercent"`
	WindSpeed  float64   `db:"wind_speed" json:"windSpeed"`
	Condition  string    `db:"condition" json:"condition"`
}

// DayWeather is one daily forecast row for a location.
// At most one row per (location, date); Date is formatted as 2006-01-02.
type DayWeather struct {
	ID         int64   `db:"id" json:"id"`
	LocationID int64   `db:"location_id" json:"locationId"`
	Date       string  `db:"date" json:"date"`
	MinTempC   float64 `db:"min_temp_c" json:"minTempC"`
	MaxTempC   float64 `db:"max_temp_c" json:"maxTempC"`
	MinTempF   float64 `db:"min_temp_f" json:"minTempF"`
	MaxTempF   float64 `db:"max_temp_f" json:"maxTempF"`
	Humidity   float64 `db:"humidity" json:"humidityPercent"`
	Condition  string  `db:"condition" json:"condition"`
}

// DateFormat is the canonical key format for DayWeather rows.
const DateFormat = "2006-01-02"
