package weather

import "github.com/eugenenyathi/weatherapp-sub000/internal/common"

// CToF converts a metric temperature to imperial.
func CToF(c float64) float64 {
	return c*9/5 + 32
}

// mapCondition normalizes a provider condition string to a small stable set.
func mapCondition(text string) string {
	switch {
	case text == "":
		return "unknown"
	case common.HasAnyFold(text, "rain", "drizzle", "shower"):
		return "rain"
	case common.HasAnyFold(text, "snow", "sleet", "blizzard"):
		return "snow"
	case common.HasAnyFold(text, "thunder", "storm"):
		return "storm"
	case common.HasAnyFold(text, "cloud"):
		return "cloudy"
	case common.HasAnyFold(text, "clear", "sunny"):
		return "clear"
	default:
		return "unknown"
	}
}
