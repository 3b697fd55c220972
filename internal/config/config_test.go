package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "HTTP_TIMEOUT", "REFRESH_INTERVAL", "DEFAULT_ELEMENTS",
		"WINDOW_START", "WINDOW_END", "TIMEZONE", "DATE_LABEL_LAYOUT", "MAP_BOUNDS", "NEAREST_MAX_COUNT"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 5, cfg.NearestMaxCount)
	assert.Equal(t, "2000-01-01%2F2024-01-01", cfg.Window.String())
	assert.Equal(t, "02.01.2006", cfg.DateLabels.Layout)
	assert.Equal(t, "Europe/Oslo", cfg.DateLabels.Location.String())
	assert.Equal(t, weather.StandardElements(weather.Monthly), cfg.DefaultElements)
	assert.True(t, cfg.Bounds.Contains(weather.Coordinates{Lon: 10.75, Lat: 59.91}), "Oslo")
	assert.False(t, cfg.Bounds.Contains(weather.Coordinates{Lon: 2.35, Lat: 48.85}), "Paris")
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DEFAULT_ELEMENTS", "air_temperature, wind_speed")
	t.Setenv("NEAREST_MAX_COUNT", "3")
	t.Setenv("WINDOW_START", "2010-01-01")
	t.Setenv("WINDOW_END", "2011-01-01")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"air_temperature", "wind_speed"}, cfg.DefaultElements)
	assert.Equal(t, 3, cfg.NearestMaxCount)
	assert.Equal(t, "2010-01-01%2F2011-01-01", cfg.Window.String())
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"HTTP_TIMEOUT", "soon"},
		{"REFRESH_INTERVAL", "15"},
		{"WINDOW_END", "1999-01-01"},
		{"TIMEZONE", "Mars/Olympus"},
		{"MAP_BOUNDS", "1,2,3"},
		{"MAP_BOUNDS", "31,71,4,57"},
		{"DATE_LABEL_LAYOUT", "day"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
