package weather

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/i474232898/weather-station-sync/internal/metrics"
)

// DefaultSeriesColor is used when the representative source has no marker color.
const DefaultSeriesColor = "rgb(75, 192, 192)"

// DateLabeler turns a reference time into a calendar-day label.
type DateLabeler struct {
	Layout   string
	Location *time.Location
}

// Label formats t as a day in the labeler's zone.
func (d DateLabeler) Label(t time.Time) string {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := d.Layout
	if layout == "" {
		layout = dateLayout
	}
	return t.In(loc).Format(layout)
}

// ExtractSeries builds the chart series for elementID from index.
//
// Stations are visited in index order, then their records, then the
// observations of each record. Only exact element matches count, and a day
// that already has a value keeps the first one. The first matching entry
// decides the series source, its color and its legend.
func ExtractSeries(index *ObservationIndex, elementID string, colors ColorSet, labeler DateLabeler) ChartSeries {
	series := ChartSeries{
		ElementID: elementID,
		Labels:    []string{},
		Values:    []float64{},
		Color:     DefaultSeriesColor,
	}
	seen := make(map[string]struct{})

	for _, entry := range index.Entries() {
		for _, rec := range entry.Records {
			for _, obs := range rec.Observations {
				if obs.ElementID != elementID {
					continue
				}
				if series.SourceID == "" {
					series.SourceID = rec.SourceID
				}
				label := labeler.Label(rec.ReferenceTime)
				if _, dup := seen[label]; dup {
					continue
				}
				seen[label] = struct{}{}
				series.Labels = append(series.Labels, label)
				series.Values = append(series.Values, obs.Value)
			}
		}
	}

	series.Bounds = ComputeBounds(series.Values)
	if series.SourceID != "" {
		if c, ok := colors.Lookup(NormalizeSourceID(series.SourceID)); ok {
			series.Color = c
		}
		series.Legend = "kilde " + series.SourceID
	}
	return series
}

// ComputeBounds returns the min and max of values, or {0,1} when empty.
func ComputeBounds(values []float64) Bounds {
	if len(values) == 0 {
		return Bounds{Min: 0, Max: 1}
	}
	b := Bounds{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range values {
		b.Min = math.Min(b.Min, v)
		b.Max = math.Max(b.Max, v)
	}
	return b
}

// SeriesAggregator memoizes ExtractSeries. Entries are keyed on the index
// generation, the element and the color set version; a new generation or
// color version drops everything cached before it.
type SeriesAggregator struct {
	labeler DateLabeler

	mu      sync.Mutex
	gen     uint64
	version uint64
	cache   map[uint64]ChartSeries
}

// NewSeriesAggregator creates an aggregator labelling days with labeler.
func NewSeriesAggregator(labeler DateLabeler) *SeriesAggregator {
	return &SeriesAggregator{
		labeler: labeler,
		cache:   make(map[uint64]ChartSeries),
	}
}

// Series returns the chart series for elementID, computing it only if the
// inputs changed since the last call with the same element.
func (a *SeriesAggregator) Series(index *ObservationIndex, elementID string, colors ColorSet) ChartSeries {
	var gen uint64
	if index != nil {
		gen = index.Generation
	}
	key := seriesKey(gen, elementID, colors.Version)

	a.mu.Lock()
	if gen != a.gen || colors.Version != a.version {
		a.gen, a.version = gen, colors.Version
		a.cache = make(map[uint64]ChartSeries)
	}
	if s, ok := a.cache[key]; ok {
		a.mu.Unlock()
		metrics.SeriesCacheTotal.WithLabelValues("hit").Inc()
		return s
	}
	a.mu.Unlock()

	metrics.SeriesCacheTotal.WithLabelValues("miss").Inc()
	s := ExtractSeries(index, elementID, colors, a.labeler)

	a.mu.Lock()
	if gen == a.gen && colors.Version == a.version {
		a.cache[key] = s
	}
	a.mu.Unlock()
	return s
}

func seriesKey(gen uint64, elementID string, version uint64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatUint(gen, 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(elementID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatUint(version, 10))
	return d.Sum64()
}

// TimeFrame is the aggregation period of the standard metrics.
type TimeFrame string

const (
	Monthly TimeFrame = "P1M"
	Yearly  TimeFrame = "P1Y"
)

// Valid reports whether t is a supported time frame.
func (t TimeFrame) Valid() bool {
	return t == Monthly || t == Yearly
}

// Metric names one of the standard charts.
type Metric string

const (
	MetricTemperature   Metric = "temperature"
	MetricHumidity      Metric = "humidity"
	MetricSunshine      Metric = "sunshine"
	MetricPrecipitation Metric = "precipitation"
)

// StandardMetrics lists the charts in display order.
var StandardMetrics = []Metric{MetricSunshine, MetricHumidity, MetricTemperature, MetricPrecipitation}

// MetricElement returns the element id charted for m at time frame tf.
// Precipitation is always yearly.
func MetricElement(m Metric, tf TimeFrame) (string, error) {
	switch m {
	case MetricTemperature:
		return fmt.Sprintf("mean(air_temperature %s)", tf), nil
	case MetricHumidity:
		return fmt.Sprintf("mean(relative_humidity %s)", tf), nil
	case MetricSunshine:
		return fmt.Sprintf("sum(duration_of_sunshine %s)", tf), nil
	case MetricPrecipitation:
		return "sum(precipitation_amount P1Y)", nil
	default:
		return "", fmt.Errorf("unknown metric %q", m)
	}
}

// StandardElements returns the element ids of every standard metric at tf.
func StandardElements(tf TimeFrame) []string {
	out := make([]string, 0, len(StandardMetrics))
	for _, m := range StandardMetrics {
		el, _ := MetricElement(m, tf)
		out = append(out, el)
	}
	return out
}
