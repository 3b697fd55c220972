package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

// MetNoProvider implements weather.ForecastSource for the MET Norway
// locationforecast API.
type MetNoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewMetNoProvider(client *http.Client, baseURL, userAgent string) *MetNoProvider {
	return &MetNoProvider{
		name:    "metno",
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:    client,
			Backoff:   DefaultBackoff,
			UserAgent: userAgent,
		},
		circuit: newCircuit("metno"),
	}
}

func (p *MetNoProvider) Name() string {
	return p.name
}

// FetchForecast implements weather.ForecastSource.
func (p *MetNoProvider) FetchForecast(ctx context.Context, point weather.Coordinates) (weather.ForecastDocument, error) {
	if p.httpCfg.UserAgent == "" {
		return weather.ForecastDocument{}, errors.New("metno requires a User-Agent")
	}

	buildRequest := func() (*http.Request, error) {
		// MET asks for at most four decimals.
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(point.Lat, 'f', 4, 64))
		values.Set("lon", strconv.FormatFloat(point.Lon, 'f', 4, 64))

		u := fmt.Sprintf("%s/compact?%s", p.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ForecastDocument{}, fmt.Errorf("metno forecast: %w", err)
	}

	doc, err := decodeJSON[weather.ForecastDocument](resp)
	if err != nil {
		return weather.ForecastDocument{}, fmt.Errorf("metno forecast: %w", err)
	}
	return doc, nil
}
