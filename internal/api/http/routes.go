package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/eugenenyathi/weatherapp-sub000/internal/location"
	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
	syncsvc "github.com/eugenenyathi/weatherapp-sub000/internal/sync"
)

var validate = validator.New()

// Services bundles everything the HTTP layer exposes.
type Services struct {
	Locations   *location.Service
	Schedules   *syncsvc.ScheduleManager
	Refresh     *syncsvc.RefreshService
	Status      *syncsvc.StatusTracker
	Preferences store.PreferenceRepository
	Weather     store.WeatherRepository
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc Services) {
	v1 := app.Group("/api/v1")

	v1.Post("/locations", func(c *fiber.Ctx) error {
		var req createLocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc, err := svc.Locations.Create(c.Context(), req.Name, req.Country, req.Lat, req.Lon)
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(loc)
	})

	v1.Get("/locations", func(c *fiber.Ctx) error {
		locs, err := svc.Locations.List(c.Context())
		if err != nil {
			return mapError(err)
		}
		return c.JSON(locs)
	})

	users := v1.Group("/users/:userID")

	users.Get("/locations", func(c *fiber.Ctx) error {
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}
		tracks, err := svc.Locations.ListForUser(c.Context(), userID)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(tracks)
	})

	users.Post("/locations", func(c *fiber.Ctx) error {
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}

		var req trackLocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		track, err := svc.Locations.Track(c.Context(), userID, req.LocationID, req.Favorite, req.DisplayName)
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(track)
	})

	users.Delete("/locations/:locationID", func(c *fiber.Ctx) error {
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}
		locationID, err := paramID(c, "locationID")
		if err != nil {
			return err
		}

		if err := svc.Locations.Untrack(c.Context(), userID, locationID); err != nil {
			return mapError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	users.Get("/preferences", func(c *fiber.Ctx) error {
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}
		pref, err := svc.Preferences.Get(c.Context(), userID)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(pref)
	})

	users.Put("/preferences", func(c *fiber.Ctx) error {
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}

		var req preferencesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		pref := &model.UserPreference{
			UserID:                 userID,
			Units:                  model.Units(req.Units),
			RefreshIntervalMinutes: req.RefreshIntervalMinutes,
		}
		if err := svc.Preferences.Upsert(c.Context(), pref); err != nil {
			return mapError(err)
		}

		// The stored interval is the single source of cadence for all of
		// the user's schedules.
		if err := svc.Schedules.UpdateForUser(c.Context(), userID, req.RefreshIntervalMinutes); err != nil {
			return mapError(err)
		}
		return c.JSON(pref)
	})

	users.Post("/refresh", func(c *fiber.Ctx) error {
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}

		result, err := svc.Refresh.Refresh(c.Context(), userID)
		if err != nil {
			var rle *syncsvc.RateLimitError
			if errors.As(err, &rle) {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rle.RetryAfter.Seconds())+1))
				return fiber.NewError(fiber.StatusTooManyRequests, rle.Error())
			}
			return mapError(err)
		}
		return c.JSON(result)
	})

	users.Get("/weather/:locationID/hourly", func(c *fiber.Ctx) error {
		locationID, err := weatherParams(c, svc)
		if err != nil {
			return err
		}

		rows, err := svc.Weather.ListHourly(c.Context(), locationID)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{"locationId": locationID, "hourly": rows})
	})

	users.Get("/weather/:locationID/daily", func(c *fiber.Ctx) error {
		locationID, err := weatherParams(c, svc)
		if err != nil {
			return err
		}

		rows, err := svc.Weather.ListDaily(c.Context(), locationID)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{"locationId": locationID, "daily": rows})
	})
}

// weatherParams authorizes a forecast read and waits out any in-flight fetch
// so a location tracked moments ago can serve fresh data instead of an empty
// result.
func weatherParams(c *fiber.Ctx, svc Services) (int64, error) {
	userID, err := paramID(c, "userID")
	if err != nil {
		return 0, err
	}
	locationID, err := paramID(c, "locationID")
	if err != nil {
		return 0, err
	}

	if err := svc.Locations.EnsureTracked(c.Context(), userID, locationID); err != nil {
		return 0, mapError(err)
	}
	if err := svc.Status.WaitForCompletion(c.Context(), locationID); err != nil {
		return 0, mapError(err)
	}
	return locationID, nil
}

type createLocationRequest struct {
	Name    string   `json:"name" validate:"required"`
	Country string   `json:"country" validate:"required"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

type trackLocationRequest struct {
	LocationID  int64   `json:"locationId" validate:"required"`
	Favorite    bool    `json:"favorite"`
	DisplayName *string `json:"displayName"`
}

type preferencesRequest struct {
	Units                  string `json:"units" validate:"required,oneof=metric imperial"`
	RefreshIntervalMinutes int    `json:"refreshIntervalMinutes" validate:"required,min=1"`
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// mapError converts domain errors into HTTP responses.
func mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, syncsvc.ErrPreferencesMissing):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, location.ErrNotTracked):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
