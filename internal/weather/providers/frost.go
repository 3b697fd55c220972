package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

// FrostProvider implements weather.StationSource and weather.ObservationSource
// against the MET Norway Frost API.
type FrostProvider struct {
	name     string
	baseURL  string
	clientID string
	maxCount int
	elements []string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	validate *validator.Validate
	logger   *log.Logger

	mu      sync.RWMutex
	sources map[string]string // coordinate key -> source id
}

// FrostOptions configures a FrostProvider.
type FrostOptions struct {
	BaseURL   string
	ClientID  string
	UserAgent string

	// NearestMaxCount caps NearestStations results.
	NearestMaxCount int

	// DefaultElements is used for stations listed without elements.
	DefaultElements []string
}

func NewFrostProvider(client *http.Client, opts FrostOptions, logger *log.Logger) *FrostProvider {
	if opts.NearestMaxCount <= 0 {
		opts.NearestMaxCount = 5
	}
	return &FrostProvider{
		name:     "frost",
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		clientID: opts.ClientID,
		maxCount: opts.NearestMaxCount,
		elements: opts.DefaultElements,
		httpCfg: HTTPClientConfig{
			Client:    client,
			Backoff:   DefaultBackoff,
			UserAgent: opts.UserAgent,
		},
		circuit:  newCircuit("frost"),
		validate: validator.New(),
		logger:   logger,
		sources:  make(map[string]string),
	}
}

func (p *FrostProvider) Name() string {
	return p.name
}

type frostResponse[T any] struct {
	Data []T `json:"data"`
}

type frostSource struct {
	ID        string   `json:"id" validate:"required"`
	Name      string   `json:"name"`
	ShortName string   `json:"shortName"`
	Distance  *float64 `json:"distance"`
	ElementID string   `json:"elementId"`
	Geometry  *struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// NearestStations implements weather.StationSource.
func (p *FrostProvider) NearestStations(ctx context.Context, point weather.Coordinates) ([]weather.Station, error) {
	sources, err := p.nearest(ctx, point, p.maxCount)
	if err != nil {
		return nil, err
	}

	stations := make([]weather.Station, 0, len(sources))
	for _, s := range sources {
		if err := p.validate.Struct(s); err != nil {
			p.logger.Warn("frost source skipped", "err", err)
			continue
		}
		st := weather.Station{
			ID:         s.ID,
			Name:       s.Name,
			ShortName:  s.ShortName,
			ElementIDs: s.ElementID,
		}
		if st.ElementIDs == "" {
			st.ElementIDs = strings.Join(p.elements, ",")
		}
		if s.Geometry != nil && len(s.Geometry.Coordinates) == 2 && s.Distance != nil {
			st.Coordinates = weather.Coordinates{Lon: s.Geometry.Coordinates[0], Lat: s.Geometry.Coordinates[1]}
			st.DistanceKm = *s.Distance
			st.Located = true
			p.remember(st.Coordinates, st.ID)
		}
		stations = append(stations, st)
	}
	return stations, nil
}

func (p *FrostProvider) nearest(ctx context.Context, point weather.Coordinates, count int) ([]frostSource, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("types", "SensorSystem")
		values.Set("geometry", fmt.Sprintf("nearest(POINT(%s %s))", formatCoord(point.Lon), formatCoord(point.Lat)))
		values.Set("nearestmaxcount", strconv.Itoa(count))
		return p.newRequest("/sources/v0.jsonld?" + values.Encode())
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest, http.StatusNotFound)
	if errors.Is(err, errNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("frost sources: %w", err)
	}

	body, err := decodeJSON[frostResponse[frostSource]](resp)
	if err != nil {
		return nil, fmt.Errorf("frost sources: %w", err)
	}
	return body.Data, nil
}

// FetchObservations implements weather.ObservationSource. The station at
// `at` is resolved to its Frost source id, from the last NearestStations
// answer when possible. The window is sent as is, already encoded.
func (p *FrostProvider) FetchObservations(ctx context.Context, at weather.Coordinates, window weather.TimeWindow, elements string) ([]weather.ObservationRecord, error) {
	sourceID, err := p.sourceAt(ctx, at)
	if err != nil {
		return nil, err
	}
	if sourceID == "" {
		return nil, nil
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("sources", sourceID)
		values.Set("elements", elements)
		return p.newRequest("/observations/v0.jsonld?" + values.Encode() + "&referencetime=" + window.String())
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest, http.StatusNotFound)
	if errors.Is(err, errNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("frost observations: %w", err)
	}

	body, err := decodeJSON[frostResponse[weather.ObservationRecord]](resp)
	if err != nil {
		return nil, fmt.Errorf("frost observations: %w", err)
	}

	records := body.Data[:0]
	for _, r := range body.Data {
		if err := p.validate.Struct(r); err != nil {
			p.logger.Warn("frost record skipped", "source", sourceID, "err", err)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (p *FrostProvider) sourceAt(ctx context.Context, at weather.Coordinates) (string, error) {
	p.mu.RLock()
	id, ok := p.sources[coordKey(at)]
	p.mu.RUnlock()
	if ok {
		return id, nil
	}

	sources, err := p.nearest(ctx, at, 1)
	if err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return "", nil
	}
	p.remember(at, sources[0].ID)
	return sources[0].ID, nil
}

func (p *FrostProvider) remember(at weather.Coordinates, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[coordKey(at)] = id
}

func (p *FrostProvider) newRequest(pathAndQuery string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, p.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, err
	}
	if p.clientID != "" {
		req.SetBasicAuth(p.clientID, "")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func coordKey(c weather.Coordinates) string {
	return formatCoord(c.Lon) + "," + formatCoord(c.Lat)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
