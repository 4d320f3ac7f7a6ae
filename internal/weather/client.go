// Package weather implements the external forecast provider client.
// The provider is consumed as a black box: pre-built query parameters in,
// typed hourly or daily payloads out.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// HourlyPoint is one normalized hourly forecast point, metric units.
type HourlyPoint struct {
	Timestamp time.Time
	TempC     float64
	Humidity  float64
	WindSpeed float64
	Condition string
}

// DailyPoint is one normalized daily forecast point, metric units.
type DailyPoint struct {
	Date     time.Time
	MinTempC float64
	MaxTempC float64
	Humidity float64
	Condition string
}

// Client abstracts the forecast provider.
type Client interface {
	FetchHourly(ctx context.Context, lat, lon float64) ([]HourlyPoint, error)
	FetchDaily(ctx context.Context, lat, lon float64) ([]DailyPoint, error)
}

// HTTPClient is an OpenWeatherMap one-call client with retries, exponential
// backoff, and a circuit breaker around the outbound requests.
type HTTPClient struct {
	apiKey  string
	baseURL string
	httpCfg transportConfig
	circuit *gobreaker.CircuitBreaker
}

// NewHTTPClient creates a provider client. baseURL may be empty to use the
// production endpoint.
func NewHTTPClient(client *http.Client, apiKey, baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org/data/3.0/onecall"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &HTTPClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpCfg: transportConfig{
			client:          client,
			maxRetries:      3,
			initialInterval: 500 * time.Millisecond,
			maxInterval:     5 * time.Second,
		},
		circuit: cb,
	}
}

// onecallPayload mirrors the subset of the provider response we consume.
type onecallPayload struct {
	Hourly []struct {
		Dt        int64   `json:"dt"`
		Temp      float64 `json:"temp"`
		Humidity  float64 `json:"humidity"`
		WindSpeed float64 `json:"wind_speed"`
		Weather   []struct {
			Main string `json:"main"`
		} `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Humidity float64 `json:"humidity"`
		Weather  []struct {
			Main string `json:"main"`
		} `json:"weather"`
	} `json:"daily"`
}

// FetchHourly requests the hourly forecast horizon, excluding every other
// response section.
func (c *HTTPClient) FetchHourly(ctx context.Context, lat, lon float64) ([]HourlyPoint, error) {
	payload, err := c.fetch(ctx, lat, lon, "current,minutely,daily,alerts")
	if err != nil {
		return nil, err
	}

	points := make([]HourlyPoint, 0, len(payload.Hourly))
	for _, h := range payload.Hourly {
		points = append(points, HourlyPoint{
			Timestamp: time.Unix(h.Dt, 0).UTC(),
			TempC:     h.Temp,
			Humidity:  h.Humidity,
			WindSpeed: h.WindSpeed,
			Condition: mapCondition(conditionText(h.Weather)),
		})
	}
	return points, nil
}

// FetchDaily requests the daily forecast horizon, excluding every other
// response section.
func (c *HTTPClient) FetchDaily(ctx context.Context, lat, lon float64) ([]DailyPoint, error) {
	payload, err := c.fetch(ctx, lat, lon, "current,minutely,hourly,alerts")
	if err != nil {
		return nil, err
	}

	points := make([]DailyPoint, 0, len(payload.Daily))
	for _, d := range payload.Daily {
		points = append(points, DailyPoint{
			Date:      time.Unix(d.Dt, 0).UTC(),
			MinTempC:  d.Temp.Min,
			MaxTempC:  d.Temp.Max,
			Humidity:  d.Humidity,
			Condition: mapCondition(conditionText(d.Weather)),
		})
	}
	return points, nil
}

func (c *HTTPClient) fetch(ctx context.Context, lat, lon float64, exclude string) (*onecallPayload, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("weather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))
		values.Set("units", "metric")
		values.Set("exclude", exclude)
		values.Set("appid", c.apiKey)

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := c.httpCfg.do(ctx, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload onecallPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode provider payload: %w", err)
	}
	return &payload, nil
}

func conditionText(items []struct {
	Main string `json:"main"`
}) string {
	if len(items) == 0 {
		return ""
	}
	return items[0].Main
}
