package weather

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/weather-station-sync/internal/common"
)

// Coordinates is a lon/lat pair in the order map toolkits use.
type Coordinates struct {
	Lon float64 `json:"lon" validate:"longitude"`
	Lat float64 `json:"lat" validate:"latitude"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lon)
}

// Station is a weather-observation site returned by a nearest-station query.
// It is treated as immutable for the duration of one synchronization pass.
type Station struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name"`
	ShortName   string      `json:"shortName"`
	Coordinates Coordinates `json:"coordinates"`
	DistanceKm  float64     `json:"distanceKm" validate:"gte=0"`

	// ElementIDs is the comma-joined element list as delivered by the backend.
	ElementIDs string `json:"elementId"`

	// Located is false until both coordinates and distance are known.
	Located bool `json:"located"`
}

// Elements splits the comma-joined element list and trims each entry.
func (s Station) Elements() []string {
	return common.SplitTrim(s.ElementIDs, ",")
}

// SortByDistance returns a copy of stations ordered closest first.
// Ties keep their input order so repeated runs over the same list agree.
func SortByDistance(stations []Station) []Station {
	sorted := make([]Station, len(stations))
	copy(sorted, stations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DistanceKm < sorted[j].DistanceKm
	})
	return sorted
}

// TimeWindow is the inclusive date range observations are requested for.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

const dateLayout = "2006-01-02"

// ParseTimeWindow builds a window from two YYYY-MM-DD dates.
func ParseTimeWindow(start, end string) (TimeWindow, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid window start %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid window end %q: %w", end, err)
	}
	if e.Before(s) {
		return TimeWindow{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	return TimeWindow{Start: s, End: e}, nil
}

// String renders the window as the backend expects it: start%2Fend.
// The separator is already URL-encoded and must be sent verbatim.
func (w TimeWindow) String() string {
	return w.Start.Format(dateLayout) + "%2F" + w.End.Format(dateLayout)
}

// Observation is one measured element value inside a record.
type Observation struct {
	ElementID string  `json:"elementId"`
	Value     float64 `json:"value"`
}

// ObservationRecord groups the values one source produced at a reference time.
type ObservationRecord struct {
	SourceID      string        `json:"sourceId" validate:"required"`
	ReferenceTime time.Time     `json:"referenceTime"`
	Observations  []Observation `json:"observations"`
}

// NormalizeSourceID strips any suffix after the first ':' so "SN18700:0"
// compares equal to the station id "SN18700".
func NormalizeSourceID(sourceID string) string {
	if i := strings.IndexByte(sourceID, ':'); i >= 0 {
		return sourceID[:i]
	}
	return sourceID
}

// Bounds is the numeric range of a series.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ChartSeries is a chart-ready, date-deduplicated series for one element.
type ChartSeries struct {
	ElementID string    `json:"elementId"`
	Labels    []string  `json:"labels"`
	Values    []float64 `json:"values"`
	Bounds    Bounds    `json:"bounds"`
	SourceID  string    `json:"sourceId"`
	Color     string    `json:"color"`
	Legend    string    `json:"legend"`
}

// SuggestedMin pads the lower bound by 10% of the range.
func (c ChartSeries) SuggestedMin() float64 {
	return c.Bounds.Min - (c.Bounds.Max-c.Bounds.Min)*0.1
}

// SuggestedMax pads the upper bound by 10% of the range.
func (c ChartSeries) SuggestedMax() float64 {
	return c.Bounds.Max + (c.Bounds.Max-c.Bounds.Min)*0.1
}

// MarkerColor records the color a station's marker was given at placement.
type MarkerColor struct {
	StationID string `json:"id"`
	Color     string `json:"color"`
}

// ColorSet is a read-only snapshot of the marker colors. Version changes
// whenever the owning reconciler appends or resets colors.
type ColorSet struct {
	Version uint64        `json:"version"`
	Colors  []MarkerColor `json:"colors"`
}

// Lookup returns the color recorded for stationID.
func (c ColorSet) Lookup(stationID string) (string, bool) {
	for _, mc := range c.Colors {
		if mc.StationID == stationID {
			return mc.Color, true
		}
	}
	return "", false
}

// ForecastDocument is the subset of a locationforecast response the popup needs.
type ForecastDocument struct {
	Properties struct {
		Timeseries []ForecastStep `json:"timeseries"`
	} `json:"properties"`
}

// ForecastStep is one forecast time step.
type ForecastStep struct {
	Time time.Time    `json:"time"`
	Data ForecastData `json:"data"`
}

// ForecastData holds the instant block of a step; Instant is nil when absent.
type ForecastData struct {
	Instant *InstantForecast `json:"instant"`
}

// InstantForecast carries the instantaneous values, keyed by parameter name.
type InstantForecast struct {
	Details map[string]float64 `json:"details"`
}

// SyncState is what the UI binds to while observations load.
type SyncState struct {
	Generation uint64 `json:"generation"`
	Loading    bool   `json:"loading"`
	Error      string `json:"error,omitempty"`
}
