package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

// openMeteoDetails maps Open-Meteo current variables to locationforecast
// detail names so both sources fill the popup the same way.
var openMeteoDetails = map[string]string{
	"temperature_2m":       "air_temperature",
	"relative_humidity_2m": "relative_humidity",
	"wind_speed_10m":       "wind_speed",
	"wind_direction_10m":   "wind_from_direction",
	"pressure_msl":         "air_pressure_at_sea_level",
	"cloud_cover":          "cloud_area_fraction",
}

// OpenMeteoProvider implements weather.ForecastSource for Open-Meteo. It
// returns a single step holding the current conditions and needs no key.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, baseURL string) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1/forecast"
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuit("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// FetchForecast implements weather.ForecastSource.
func (p *OpenMeteoProvider) FetchForecast(ctx context.Context, point weather.Coordinates) (weather.ForecastDocument, error) {
	vars := make([]string, 0, len(openMeteoDetails))
	for v := range openMeteoDetails {
		vars = append(vars, v)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", point.Lat))
		values.Set("longitude", fmt.Sprintf("%f", point.Lon))
		values.Set("current", strings.Join(vars, ","))
		values.Set("wind_speed_unit", "ms")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ForecastDocument{}, fmt.Errorf("openmeteo forecast: %w", err)
	}

	payload, err := decodeJSON[struct {
		Current map[string]any `json:"current"`
	}](resp)
	if err != nil {
		return weather.ForecastDocument{}, fmt.Errorf("openmeteo forecast: %w", err)
	}

	var doc weather.ForecastDocument
	if payload.Current == nil {
		return doc, nil
	}

	// Open-Meteo reports GMT times without a zone suffix.
	ts := time.Now().UTC()
	if s, ok := payload.Current["time"].(string); ok {
		if parsed, err := time.Parse("2006-01-02T15:04", s); err == nil {
			ts = parsed
		}
	}

	details := make(map[string]float64)
	for from, to := range openMeteoDetails {
		if v, ok := payload.Current[from].(float64); ok {
			details[to] = v
		}
	}

	doc.Properties.Timeseries = []weather.ForecastStep{{
		Time: ts,
		Data: weather.ForecastData{Instant: &weather.InstantForecast{Details: details}},
	}}
	return doc, nil
}
