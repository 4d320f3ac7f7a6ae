// Package sync implements the synchronization scheduling subsystem: the
// fetch-and-normalize pipeline, per-(user, location) sync schedules, the
// global sweep, job status tracking with bounded waits, and manual refresh
// throttling.
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
	"github.com/eugenenyathi/weatherapp-sub000/internal/weather"
)

const (
	hourlyHorizon = 24
	dailyHorizon  = 5
)

// Pipeline fetches forecasts from the provider, normalizes units,
// de-duplicates by timestamp/date, and upserts the time-series rows.
type Pipeline struct {
	client    weather.Client
	locations store.LocationRepository
	tracks    store.TrackRepository
	schedules store.ScheduleRepository
	weather   store.WeatherRepository
	log       *zap.Logger
	now       func() time.Time
}

// NewPipeline creates the fetch-and-normalize pipeline.
func NewPipeline(
	client weather.Client,
	repos *store.Container,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		client:    client,
		locations: repos.Locations,
		tracks:    repos.Tracks,
		schedules: repos.Schedules,
		weather:   repos.Weather,
		log:       log,
		now:       time.Now,
	}
}

// FetchHourly pulls the next 24 hourly points for the location and replaces
// the matching rows. Provider failures and empty payloads are logged and
// swallowed; the stale cache stays untouched. The bool reports whether rows
// were actually written, so callers only advance freshness on success.
func (p *Pipeline) FetchHourly(ctx context.Context, loc *model.Location) (bool, error) {
	points, err := p.client.FetchHourly(ctx, loc.Lat, loc.Lon)
	if err != nil {
		p.log.Warn("hourly fetch failed",
			zap.Int64("locationID", loc.ID), zap.String("location", loc.Name), zap.Error(err))
		return false, nil
	}
	if len(points) == 0 {
		p.log.Warn("hourly fetch returned no data",
			zap.Int64("locationID", loc.ID), zap.String("location", loc.Name))
		return false, nil
	}

	if len(points) > hourlyHorizon {
		points = points[:hourlyHorizon]
	}

	rows := make([]model.HourWeather, 0, len(points))
	for _, pt := range points {
		rows = append(rows, model.HourWeather{
			LocationID: loc.ID,
			Timestamp:  pt.Timestamp.UTC(),
			TempC:      pt.TempC,
			TempF:      weather.CToF(pt.TempC),
			Humidity:   pt.Humidity,
			WindSpeed:  pt.WindSpeed,
			Condition:  pt.Condition,
		})
	}

	if err := p.weather.ReplaceHourly(ctx, loc.ID, rows); err != nil {
		return false, err
	}
	return true, nil
}

// FetchDaily pulls the next 5 daily points for the location and replaces the
// matching rows. Failure handling matches FetchHourly.
func (p *Pipeline) FetchDaily(ctx context.Context, loc *model.Location) (bool, error) {
	points, err := p.client.FetchDaily(ctx, loc.Lat, loc.Lon)
	if err != nil {
		p.log.Warn("daily fetch failed",
			zap.Int64("locationID", loc.ID), zap.String("location", loc.Name), zap.Error(err))
		return false, nil
	}
	if len(points) == 0 {
		p.log.Warn("daily fetch returned no data",
			zap.Int64("locationID", loc.ID), zap.String("location", loc.Name))
		return false, nil
	}

	if len(points) > dailyHorizon {
		points = points[:dailyHorizon]
	}

	rows := make([]model.DayWeather, 0, len(points))
	for _, pt := range points {
		rows = append(rows, model.DayWeather{
			LocationID: loc.ID,
			Date:       pt.Date.UTC().Format(model.DateFormat),
			MinTempC:   pt.MinTempC,
			MaxTempC:   pt.MaxTempC,
			MinTempF:   weather.CToF(pt.MinTempC),
			MaxTempF:   weather.CToF(pt.MaxTempC),
			Humidity:   pt.Humidity,
			Condition:  pt.Condition,
		})
	}

	if err := p.weather.ReplaceDaily(ctx, loc.ID, rows); err != nil {
		return false, err
	}
	return true, nil
}

// SyncLocation fetches both horizons for a single location. The bool is true
// only when both horizons were written.
func (p *Pipeline) SyncLocation(ctx context.Context, loc *model.Location) (bool, error) {
	hourly, err := p.FetchHourly(ctx, loc)
	if err != nil {
		return false, err
	}
	daily, err := p.FetchDaily(ctx, loc)
	if err != nil {
		return false, err
	}
	return hourly && daily, nil
}

// SweepAll fetches hourly and daily data for every known location. One bad
// location never blocks the others; per-location failures are logged and the
// sweep moves on.
func (p *Pipeline) SweepAll(ctx context.Context) error {
	locs, err := p.locations.List(ctx)
	if err != nil {
		return err
	}

	p.log.Info("starting global weather sweep", zap.Int("locations", len(locs)))
	for i := range locs {
		loc := locs[i]
		synced, err := p.SyncLocation(ctx, &loc)
		if err != nil {
			p.log.Error("sweep failed for location",
				zap.Int64("locationID", loc.ID), zap.String("location", loc.Name), zap.Error(err))
			continue
		}
		if !synced {
			continue
		}
		if err := p.schedules.TouchByLocation(ctx, loc.ID, p.now().UTC()); err != nil {
			p.log.Error("failed to update schedule freshness",
				zap.Int64("locationID", loc.ID), zap.Error(err))
		}
	}
	return nil
}

// SweepForUser fetches hourly and daily data for every location the user
// tracks, with the same per-location failure isolation as SweepAll.
func (p *Pipeline) SweepForUser(ctx context.Context, userID int64) error {
	locs, err := p.tracks.LocationsForUser(ctx, userID)
	if err != nil {
		return err
	}

	p.log.Info("starting user weather sweep",
		zap.Int64("userID", userID), zap.Int("locations", len(locs)))
	for i := range locs {
		loc := locs[i]
		synced, err := p.SyncLocation(ctx, &loc)
		if err != nil {
			p.log.Error("sweep failed for location",
				zap.Int64("userID", userID), zap.Int64("locationID", loc.ID), zap.Error(err))
			continue
		}
		if !synced {
			continue
		}
		if err := p.schedules.Touch(ctx, userID, loc.ID, p.now().UTC()); err != nil {
			p.log.Error("failed to update schedule freshness",
				zap.Int64("userID", userID), zap.Int64("locationID", loc.ID), zap.Error(err))
		}
	}
	return nil
}
