// Package location manages the tracked-location surface: creating locations
// (geocoding names to coordinates when needed) and the (user, location)
// tracking relations that drive sync schedule provisioning.
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/kelvins/geocoder"
	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
)

// ErrNotTracked is returned when a user requests data for a location they do
// not track.
var ErrNotTracked = errors.New("location is not tracked by user")

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(name, country string) (lat, lon float64, err error)
}

// GoogleGeocoder resolves coordinates through the kelvins/geocoder Google
// Maps client.
type GoogleGeocoder struct{}

// NewGoogleGeocoder configures the shared geocoder API key and returns the
// resolver.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

func (g *GoogleGeocoder) Geocode(name, country string) (float64, float64, error) {
	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    name,
		Country: country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to geocode %s, %s: %w", name, country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}

// ScheduleProvisioner is the slice of the schedule manager this service
// needs when tracking relations change.
type ScheduleProvisioner interface {
	TrackLocation(ctx context.Context, userID, locationID int64) error
	UntrackLocation(ctx context.Context, userID, locationID int64) error
}

// Service provides location CRUD and tracking operations.
type Service struct {
	locations store.LocationRepository
	tracks    store.TrackRepository
	schedules ScheduleProvisioner
	geo       Geocoder
	log       *zap.Logger
}

// NewService wires the location service.
func NewService(
	repos *store.Container,
	schedules ScheduleProvisioner,
	geo Geocoder,
	log *zap.Logger,
) *Service {
	return &Service{
		locations: repos.Locations,
		tracks:    repos.Tracks,
		schedules: schedules,
		geo:       geo,
		log:       log,
	}
}

// Create returns the existing location for (name, country) or creates a new
// one, geocoding the name when coordinates are not supplied. Locations are
// created once per unique name and never mutated afterwards.
func (s *Service) Create(ctx context.Context, name, country string, lat, lon *float64) (*model.Location, error) {
	existing, err := s.locations.GetByName(ctx, name, country)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	loc := &model.Location{Name: name, Country: country}
	if lat != nil && lon != nil {
		loc.Lat = *lat
		loc.Lon = *lon
	} else {
		loc.Lat, loc.Lon, err = s.geo.Geocode(name, country)
		if err != nil {
			return nil, err
		}
	}

	if err := s.locations.Create(ctx, loc); err != nil {
		return nil, err
	}

	s.log.Info("location created",
		zap.Int64("locationID", loc.ID), zap.String("name", loc.Name), zap.String("country", loc.Country))
	return loc, nil
}

// Track creates the (user, location) relation and provisions its sync
// schedule.
func (s *Service) Track(ctx context.Context, userID, locationID int64, favorite bool, displayName *string) (*model.TrackLocation, error) {
	if _, err := s.locations.GetByID(ctx, locationID); err != nil {
		return nil, err
	}

	track := &model.TrackLocation{
		UserID:      userID,
		LocationID:  locationID,
		Favorite:    favorite,
		DisplayName: displayName,
	}
	if err := s.tracks.Create(ctx, track); err != nil {
		return nil, err
	}

	if err := s.schedules.TrackLocation(ctx, userID, locationID); err != nil {
		return nil, fmt.Errorf("failed to provision sync schedule: %w", err)
	}

	return track, nil
}

// Untrack removes the tracking relation and its sync schedule. Idempotent.
func (s *Service) Untrack(ctx context.Context, userID, locationID int64) error {
	if err := s.tracks.Delete(ctx, userID, locationID); err != nil {
		return err
	}
	return s.schedules.UntrackLocation(ctx, userID, locationID)
}

// ListForUser returns the user's tracking relations.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]model.TrackLocation, error) {
	return s.tracks.ListByUser(ctx, userID)
}

// List returns all known locations.
func (s *Service) List(ctx context.Context) ([]model.Location, error) {
	return s.locations.List(ctx)
}

// EnsureTracked verifies the user tracks the location; read paths call this
// before serving forecast data.
func (s *Service) EnsureTracked(ctx context.Context, userID, locationID int64) error {
	ok, err := s.tracks.Exists(ctx, userID, locationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotTracked
	}
	return nil
}
