package mapview

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/hashstructure"

	"github.com/i474232898/weather-station-sync/internal/metrics"
	"github.com/i474232898/weather-station-sync/internal/weather"
)

// StationFingerprint hashes the set of station ids. Order and every other
// field are ignored, so a list re-sorted or with updated distances keeps its
// fingerprint.
func StationFingerprint(stations []weather.Station) (uint64, error) {
	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = s.ID
	}
	sort.Strings(ids)
	return hashstructure.Hash(struct {
		IDs []string `hash:"set"`
	}{ids}, nil)
}

// PlacedMarker is a station marker as seen from outside the reconciler.
type PlacedMarker struct {
	StationID string              `json:"stationId"`
	HandleID  string              `json:"handleId"`
	Position  weather.Coordinates `json:"position"`
	Color     string              `json:"color"`
	Label     string              `json:"label"`
	Tooltip   string              `json:"tooltip"`
}

type stationMarker struct {
	handle MarkerHandle
	color  string
	label  string
	tip    string
}

// MarkerReconciler owns the station markers and their colors. Each station
// goes from absent to placed once; a different station set removes every
// marker and starts over.
type MarkerReconciler struct {
	m      Map
	steps  int
	logger *log.Logger

	mu          sync.RWMutex
	initialized bool
	fingerprint uint64
	order       []string
	markers     map[string]*stationMarker
	colors      []weather.MarkerColor
	version     uint64
}

// NewMarkerReconciler creates a reconciler placing markers on m with a color
// ramp of `steps` colors.
func NewMarkerReconciler(m Map, steps int, logger *log.Logger) *MarkerReconciler {
	if steps <= 0 {
		steps = DefaultRampSteps
	}
	return &MarkerReconciler{
		m:       m,
		steps:   steps,
		logger:  logger,
		markers: make(map[string]*stationMarker),
	}
}

// Reconcile brings the markers in line with stations. Stations are placed in
// distance order, so colors follow the same order the coordinator fetches in.
// It reports whether the station set changed and forced a rebuild.
func (r *MarkerReconciler) Reconcile(stations []weather.Station) (bool, error) {
	fp, err := StationFingerprint(stations)
	if err != nil {
		return false, fmt.Errorf("fingerprint stations: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rebuilt := false
	if !r.initialized || fp != r.fingerprint {
		r.clearLocked()
		r.fingerprint = fp
		r.initialized = true
		rebuilt = true
		metrics.MarkerRebuildsTotal.Inc()
	}

	appended := false
	for _, st := range weather.SortByDistance(stations) {
		if existing, ok := r.markers[st.ID]; ok {
			existing.handle.SetPosition(st.Coordinates)
			if tip := tooltip(st); tip != existing.tip {
				existing.tip = tip
				existing.handle.SetTooltip(tip)
			}
			continue
		}
		if !st.Located {
			continue
		}
		r.placeLocked(st)
		appended = true
	}
	if rebuilt || appended {
		r.version++
	}

	r.logger.Debug("markers reconciled", "stations", len(stations), "placed", len(r.order), "rebuilt", rebuilt)
	return rebuilt, nil
}

func (r *MarkerReconciler) placeLocked(st weather.Station) {
	color := RampColor(len(r.colors)+1, r.steps)
	label := st.ID
	tip := tooltip(st)

	h := r.m.AddStationMarker(StationMarkerOptions{
		StationID: st.ID,
		Position:  st.Coordinates,
		Color:     color,
		Label:     label,
		Tooltip:   tip,
	})

	r.markers[st.ID] = &stationMarker{handle: h, color: color, label: label, tip: tip}
	r.order = append(r.order, st.ID)
	r.colors = append(r.colors, weather.MarkerColor{StationID: st.ID, Color: color})
	metrics.MarkersPlacedTotal.Inc()
}

func tooltip(st weather.Station) string {
	return fmt.Sprintf("%.1f km \n%s", st.DistanceKm, st.ShortName)
}

func (r *MarkerReconciler) clearLocked() {
	for _, id := range r.order {
		r.markers[id].handle.Remove()
	}
	r.order = nil
	r.markers = make(map[string]*stationMarker)
	r.colors = nil
}

// Colors returns a snapshot of the assigned colors in placement order.
func (r *MarkerReconciler) Colors() weather.ColorSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return weather.ColorSet{
		Version: r.version,
		Colors:  append([]weather.MarkerColor(nil), r.colors...),
	}
}

// Markers returns the placed markers in placement order.
func (r *MarkerReconciler) Markers() []PlacedMarker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PlacedMarker, 0, len(r.order))
	for _, id := range r.order {
		m := r.markers[id]
		out = append(out, PlacedMarker{
			StationID: id,
			HandleID:  m.handle.ID(),
			Position:  m.handle.Position(),
			Color:     m.color,
			Label:     m.label,
			Tooltip:   m.tip,
		})
	}
	return out
}
