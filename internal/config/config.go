package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-station-sync/internal/common"
	"github.com/i474232898/weather-station-sync/internal/weather"
)

// MapBounds is the lon/lat box a location may be selected in.
type MapBounds struct {
	SouthWest weather.Coordinates
	NorthEast weather.Coordinates
}

// Contains reports whether c lies inside the box, edges included.
func (b MapBounds) Contains(c weather.Coordinates) bool {
	return c.Lon >= b.SouthWest.Lon && c.Lon <= b.NorthEast.Lon &&
		c.Lat >= b.SouthWest.Lat && c.Lat <= b.NorthEast.Lat
}

type AppConfig struct {
	Port     string
	LogLevel string

	FrostBaseURL    string
	FrostClientID   string
	ForecastBaseURL string
	UserAgent       string
	HTTPTimeout     time.Duration

	// NearestMaxCount caps the stations returned for one location.
	NearestMaxCount int

	// DefaultElements is used for stations the backend lists without elements.
	DefaultElements []string

	Window weather.TimeWindow

	DateLabels weather.DateLabeler

	RefreshInterval time.Duration
	Bounds          MapBounds

	GeocoderAPIKey string
	SentryDSN      string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, []string, error) {
	var notes []string
	if err := godotenv.Load(); err != nil {
		notes = append(notes, fmt.Sprintf("no .env file loaded: %v", err))
	}
	cfg, err := FromEnv()
	return cfg, notes, err
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:            getenvDefault("PORT", "8080"),
		LogLevel:        getenvDefault("LOG_LEVEL", "info"),
		FrostBaseURL:    strings.TrimRight(getenvDefault("FROST_BASE_URL", "https://frost.met.no"), "/"),
		FrostClientID:   os.Getenv("FROST_CLIENT_ID"),
		ForecastBaseURL: strings.TrimRight(getenvDefault("FORECAST_BASE_URL", "https://api.met.no/weatherapi/locationforecast/2.0"), "/"),
		UserAgent:       getenvDefault("USER_AGENT", "weather-station-sync/dev"),
		NearestMaxCount: getenvInt("NEAREST_MAX_COUNT", 5),
		GeocoderAPIKey:  os.Getenv("GEOCODER_API_KEY"),
		SentryDSN:       os.Getenv("SENTRY_DSN"),
	}

	var err error
	if cfg.HTTPTimeout, err = time.ParseDuration(getenvDefault("HTTP_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	if cfg.RefreshInterval, err = time.ParseDuration(getenvDefault("REFRESH_INTERVAL", "15m")); err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}

	cfg.DefaultElements = common.SplitTrim(os.Getenv("DEFAULT_ELEMENTS"), ",")
	if len(cfg.DefaultElements) == 0 {
		cfg.DefaultElements = weather.StandardElements(weather.Monthly)
	}

	cfg.Window, err = weather.ParseTimeWindow(
		getenvDefault("WINDOW_START", "2000-01-01"),
		getenvDefault("WINDOW_END", "2024-01-01"),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid WINDOW_START/WINDOW_END: %w", err)
	}

	zone, err := time.LoadLocation(getenvDefault("TIMEZONE", "Europe/Oslo"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	layout := getenvDefault("DATE_LABEL_LAYOUT", "02.01.2006")
	if !strings.ContainsAny(layout, "02") {
		return nil, fmt.Errorf("invalid DATE_LABEL_LAYOUT %q: no day or year field", layout)
	}
	cfg.DateLabels = weather.DateLabeler{Layout: layout, Location: zone}

	cfg.Bounds, err = parseBounds(getenvDefault("MAP_BOUNDS", "4.63,57.9776,31.078,71.1851"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAP_BOUNDS: %w", err)
	}

	return cfg, nil
}

func parseBounds(s string) (MapBounds, error) {
	parts := common.SplitTrim(s, ",")
	if len(parts) != 4 {
		return MapBounds{}, fmt.Errorf("want 4 numbers, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return MapBounds{}, err
		}
		v[i] = f
	}
	b := MapBounds{
		SouthWest: weather.Coordinates{Lon: v[0], Lat: v[1]},
		NorthEast: weather.Coordinates{Lon: v[2], Lat: v[3]},
	}
	if b.SouthWest.Lon > b.NorthEast.Lon || b.SouthWest.Lat > b.NorthEast.Lat {
		return MapBounds{}, fmt.Errorf("south-west corner %v is not below north-east corner %v", b.SouthWest, b.NorthEast)
	}
	return b, nil
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
