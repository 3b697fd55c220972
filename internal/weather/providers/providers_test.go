package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

var fastBackoff = BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func testWindow(t *testing.T) weather.TimeWindow {
	t.Helper()
	w, err := weather.ParseTimeWindow("2000-01-01", "2024-01-01")
	require.NoError(t, err)
	return w
}

func newFrost(t *testing.T, h http.HandlerFunc) *FrostProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p := NewFrostProvider(srv.Client(), FrostOptions{
		BaseURL:         srv.URL,
		ClientID:        "client-id",
		UserAgent:       "wss-test",
		NearestMaxCount: 3,
		DefaultElements: []string{"mean(air_temperature P1M)", "sum(precipitation_amount P1Y)"},
	}, quietLogger())
	p.httpCfg.Backoff = fastBackoff
	return p
}

const sourcesBody = `{"data":[
	{"id":"SN18700","name":"OSLO - BLINDERN","shortName":"Oslo (Blindern)","distance":1.5,
	 "geometry":{"@type":"Point","coordinates":[10.72,59.9423]},"elementId":"a, b"},
	{"id":"SN18950","name":"OSLO - TRYVANNSHØGDA","shortName":"Tryvann","distance":6.2,
	 "geometry":{"@type":"Point","coordinates":[10.6693,59.9849]}},
	{"id":"SN99999","name":"NO GEOMETRY"},
	{"name":"NO ID"}
]}`

func TestFrost_NearestStations(t *testing.T) {
	var gotQuery string
	var gotUser string
	p := newFrost(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sources/v0.jsonld", r.URL.Path)
		assert.Equal(t, "wss-test", r.Header.Get("User-Agent"))
		gotUser, _, _ = r.BasicAuth()
		gotQuery = r.URL.Query().Get("geometry") + "|" + r.URL.Query().Get("nearestmaxcount")
		_, _ = io.WriteString(w, sourcesBody)
	})

	stations, err := p.NearestStations(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	require.NoError(t, err)

	assert.Equal(t, "nearest(POINT(10.7500 59.9100))|3", gotQuery)
	assert.Equal(t, "client-id", gotUser)
	require.Len(t, stations, 3)

	assert.Equal(t, weather.Station{
		ID:          "SN18700",
		Name:        "OSLO - BLINDERN",
		ShortName:   "Oslo (Blindern)",
		Coordinates: weather.Coordinates{Lon: 10.72, Lat: 59.9423},
		DistanceKm:  1.5,
		ElementIDs:  "a, b",
		Located:     true,
	}, stations[0])
	assert.Equal(t, "mean(air_temperature P1M),sum(precipitation_amount P1Y)", stations[1].ElementIDs)
	assert.False(t, stations[2].Located)
}

func TestFrost_FetchObservationsUsesKnownSource(t *testing.T) {
	var observationQuery string
	p := newFrost(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sources/v0.jsonld":
			_, _ = io.WriteString(w, sourcesBody)
		case "/observations/v0.jsonld":
			observationQuery = r.URL.RawQuery
			_, _ = io.WriteString(w, `{"data":[
				{"sourceId":"SN18700:0","referenceTime":"2020-01-01T00:00:00.000Z",
				 "observations":[{"elementId":"a","value":-2.5}]},
				{"referenceTime":"2020-02-01T00:00:00.000Z","observations":[]}
			]}`)
		default:
			http.NotFound(w, r)
		}
	})

	_, err := p.NearestStations(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	require.NoError(t, err)

	records, err := p.FetchObservations(context.Background(), weather.Coordinates{Lon: 10.72, Lat: 59.9423}, testWindow(t), "a,b")
	require.NoError(t, err)

	assert.Contains(t, observationQuery, "referencetime=2000-01-01%2F2024-01-01")
	assert.NotContains(t, observationQuery, "%252F")
	assert.Contains(t, observationQuery, "sources=SN18700")
	assert.Contains(t, observationQuery, "elements=a%2Cb")

	require.Len(t, records, 1, "records without a sourceId are dropped")
	assert.Equal(t, "SN18700:0", records[0].SourceID)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), records[0].ReferenceTime.UTC())
	assert.Equal(t, []weather.Observation{{ElementID: "a", Value: -2.5}}, records[0].Observations)
}

func TestFrost_FetchObservationsResolvesUnknownSource(t *testing.T) {
	var nearestCount string
	p := newFrost(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sources/v0.jsonld":
			nearestCount = r.URL.Query().Get("nearestmaxcount")
			_, _ = io.WriteString(w, `{"data":[{"id":"SN4780","distance":0.1}]}`)
		case "/observations/v0.jsonld":
			assert.Equal(t, "SN4780", r.URL.Query().Get("sources"))
			_, _ = io.WriteString(w, `{"data":[]}`)
		}
	})

	records, err := p.FetchObservations(context.Background(), weather.Coordinates{Lon: 11, Lat: 60}, testWindow(t), "a")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "1", nearestCount)
}

func TestFrost_NotFoundIsEmpty(t *testing.T) {
	var calls atomic.Int32
	p := newFrost(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sources/v0.jsonld" {
			_, _ = io.WriteString(w, sourcesBody)
			return
		}
		calls.Add(1)
		http.Error(w, `{"error":{"reason":"No data found"}}`, http.StatusNotFound)
	})
	_, err := p.NearestStations(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	require.NoError(t, err)

	records, err := p.FetchObservations(context.Background(), weather.Coordinates{Lon: 10.72, Lat: 59.9423}, testWindow(t), "a")
	require.NoError(t, err)
	assert.Nil(t, records)
	assert.Equal(t, int32(1), calls.Load(), "404 is not retried")
}

func TestFrost_ServerErrorRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	p := newFrost(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.NearestStations(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	require.Error(t, err)
	assert.ErrorIs(t, err, errServerError)
	assert.Equal(t, int32(3), calls.Load(), "one try plus two retries")
}

func TestFrost_BadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := newFrost(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := p.NearestStations(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMetNo_FetchForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compact", r.URL.Path)
		assert.Equal(t, "59.9100", r.URL.Query().Get("lat"))
		assert.Equal(t, "10.7500", r.URL.Query().Get("lon"))
		assert.Equal(t, "wss-test", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `{"type":"Feature","properties":{"timeseries":[
			{"time":"2024-05-01T12:00:00Z","data":{"instant":{"details":{"air_temperature":11.2,"wind_speed":3.4}}}},
			{"time":"2024-05-01T13:00:00Z","data":{}}
		]}}`)
	}))
	defer srv.Close()

	p := NewMetNoProvider(srv.Client(), srv.URL+"/", "wss-test")
	doc, err := p.FetchForecast(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	require.NoError(t, err)

	steps := doc.Properties.Timeseries
	require.Len(t, steps, 2)
	assert.Equal(t, 11.2, steps[0].Data.Instant.Details["air_temperature"])
	assert.Nil(t, steps[1].Data.Instant)
}

func TestMetNo_RequiresUserAgent(t *testing.T) {
	p := NewMetNoProvider(http.DefaultClient, "http://127.0.0.1:1", "")
	_, err := p.FetchForecast(context.Background(), weather.Coordinates{})
	assert.Error(t, err)
}

func TestOpenMeteo_FetchForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("current"), "temperature_2m")
		_, _ = io.WriteString(w, `{"current":{"time":"2024-05-01T12:15","interval":900,
			"temperature_2m":9.5,"relative_humidity_2m":71,"wind_speed_10m":2.1}}`)
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(srv.Client(), srv.URL)
	doc, err := p.FetchForecast(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	require.NoError(t, err)

	require.Len(t, doc.Properties.Timeseries, 1)
	step := doc.Properties.Timeseries[0]
	assert.Equal(t, time.Date(2024, 5, 1, 12, 15, 0, 0, time.UTC), step.Time)
	assert.Equal(t, map[string]float64{
		"air_temperature":   9.5,
		"relative_humidity": 71,
		"wind_speed":        2.1,
	}, step.Data.Instant.Details)
}

func TestGeocoder_ReverseGeocode(t *testing.T) {
	p := NewGeocoderProvider("key")
	var got geocoder.Location
	p.reverse = func(l geocoder.Location) ([]geocoder.Address, error) {
		got = l
		return []geocoder.Address{{}, {FormattedAddress: "Karl Johans gate 1, 0154 Oslo, Norway"}}, nil
	}

	addr, err := p.ReverseGeocode(context.Background(), weather.Coordinates{Lon: 10.75, Lat: 59.91})
	require.NoError(t, err)
	assert.Equal(t, "Karl Johans gate 1, 0154 Oslo, Norway", addr)
	assert.Equal(t, geocoder.Location{Latitude: 59.91, Longitude: 10.75}, got)

	p.reverse = func(geocoder.Location) ([]geocoder.Address, error) { return nil, nil }
	_, err = p.ReverseGeocode(context.Background(), weather.Coordinates{})
	assert.ErrorIs(t, err, errNoAddress)

	p.reverse = func(geocoder.Location) ([]geocoder.Address, error) { return nil, errors.New("quota") }
	_, err = p.ReverseGeocode(context.Background(), weather.Coordinates{})
	assert.Error(t, err)
}

func TestGeocoder_RequiresKey(t *testing.T) {
	_, err := NewGeocoderProvider("").ReverseGeocode(context.Background(), weather.Coordinates{})
	assert.Error(t, err)
}

func TestDoRequestWithResilience_CircuitOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cb := newCircuit("test-open")
	cfg := HTTPClientConfig{Client: srv.Client(), Backoff: BackoffConfig{MaxRetries: 0, InitialInterval: time.Millisecond}}
	build := func() (*http.Request, error) { return http.NewRequest(http.MethodGet, srv.URL, nil) }

	var err error
	for i := 0; i < 10 && !strings.Contains(errString(err), "circuit"); i++ {
		_, err = doRequestWithResilience(context.Background(), cfg, cb, build)
	}
	assert.ErrorIs(t, err, errCircuitOpen)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
