package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds every runtime setting, loaded from the environment.
type AppConfig struct {
	Port   string
	DBPath string

	WeatherAPIKey  string
	WeatherBaseURL string
	GeocoderAPIKey string

	// HTTPTimeout bounds outbound provider calls.
	HTTPTimeout time.Duration

	// RefreshCooldown is the manual-refresh rate-limit window.
	RefreshCooldown time.Duration

	// WaitTimeout and PollInterval bound the read path's wait for an
	// in-flight fetch.
	WaitTimeout  time.Duration
	PollInterval time.Duration

	// GlobalSweepCron is the cadence of the system-wide sweep fallback.
	GlobalSweepCron string

	// DefaultRefreshMinutes is used for users without a preference row.
	DefaultRefreshMinutes int
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		Port:           getenvDefault("PORT", "8080"),
		DBPath:         getenvDefault("DB_PATH", "weatherapp.db"),
		WeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		WeatherBaseURL: os.Getenv("OPENWEATHER_BASE_URL"),
		GeocoderAPIKey: os.Getenv("GEOCODER_API_KEY"),

		GlobalSweepCron:       getenvDefault("GLOBAL_SWEEP_CRON", "0 * * * *"),
		DefaultRefreshMinutes: getenvInt("DEFAULT_REFRESH_MINUTES", 30),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.RefreshCooldown, err = getenvDuration("REFRESH_COOLDOWN", "10m"); err != nil {
		return nil, err
	}
	if cfg.WaitTimeout, err = getenvDuration("SYNC_WAIT_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getenvDuration("SYNC_POLL_INTERVAL", "500ms"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
