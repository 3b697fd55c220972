package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

var errNoAddress = errors.New("no address found")

// geocoderMu guards the package-level API key of the geocoder library.
var geocoderMu sync.Mutex

// GeocoderProvider implements weather.AddressResolver with the Google
// reverse geocoding API.
type GeocoderProvider struct {
	name   string
	apiKey string

	// reverse is geocoder.GeocodingReverse; replaced in tests.
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

func NewGeocoderProvider(apiKey string) *GeocoderProvider {
	return &GeocoderProvider{
		name:    "geocoder",
		apiKey:  apiKey,
		reverse: geocoder.GeocodingReverse,
	}
}

func (p *GeocoderProvider) Name() string {
	return p.name
}

// ReverseGeocode implements weather.AddressResolver. The library call does
// not take a context; a cancelled ctx is only honoured before the call.
func (p *GeocoderProvider) ReverseGeocode(ctx context.Context, point weather.Coordinates) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("geocoder api key is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	geocoderMu.Lock()
	geocoder.ApiKey = p.apiKey
	addresses, err := p.reverse(geocoder.Location{Latitude: point.Lat, Longitude: point.Lon})
	geocoderMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("reverse geocode %s: %w", point, err)
	}

	for _, a := range addresses {
		if a.FormattedAddress != "" {
			return a.FormattedAddress, nil
		}
	}
	return "", errNoAddress
}
