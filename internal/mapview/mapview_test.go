package mapview

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func located(id string, km float64, lon, lat float64) weather.Station {
	return weather.Station{
		ID:          id,
		ShortName:   "Station " + id,
		DistanceKm:  km,
		Coordinates: weather.Coordinates{Lon: lon, Lat: lat},
		Located:     true,
	}
}

func TestRampColor(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "rgb(255, 0, 0)"},
		{2, "rgb(191, 0, 64)"},
		{3, "rgb(128, 0, 128)"},
		{4, "rgb(64, 0, 191)"},
		{5, "rgb(0, 0, 255)"},
		{6, "rgb(0, 0, 255)"},
		{0, "rgb(255, 0, 0)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RampColor(tt.n, DefaultRampSteps), "n=%d", tt.n)
	}
}

func TestStationFingerprint(t *testing.T) {
	a, err := StationFingerprint([]weather.Station{{ID: "A", DistanceKm: 1}, {ID: "B", DistanceKm: 2}})
	require.NoError(t, err)
	b, err := StationFingerprint([]weather.Station{{ID: "B", DistanceKm: 9}, {ID: "A"}})
	require.NoError(t, err)
	c, err := StationFingerprint([]weather.Station{{ID: "A"}, {ID: "C"}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestMarkerReconciler_PlacesInDistanceOrder(t *testing.T) {
	m := NewMemoryMap()
	r := NewMarkerReconciler(m, DefaultRampSteps, quietLogger())

	rebuilt, err := r.Reconcile([]weather.Station{
		located("far", 9.26, 10, 60),
		located("near", 1.04, 11, 61),
	})
	require.NoError(t, err)
	assert.True(t, rebuilt)

	colors := r.Colors()
	assert.Equal(t, []weather.MarkerColor{
		{StationID: "near", Color: "rgb(255, 0, 0)"},
		{StationID: "far", Color: "rgb(191, 0, 64)"},
	}, colors.Colors)

	onMap := m.StationMarkers()
	require.Len(t, onMap, 2)
	assert.Equal(t, "near", onMap[0].Label)
	assert.Equal(t, "1.0 km \nStation near", onMap[0].Tooltip)
	assert.Equal(t, "9.3 km \nStation far", onMap[1].Tooltip)
}

func TestMarkerReconciler_DeterministicColors(t *testing.T) {
	stations := []weather.Station{
		located("A", 3, 0, 0),
		located("B", 1, 0, 0),
		located("C", 2, 0, 0),
	}

	first := NewMarkerReconciler(NewMemoryMap(), DefaultRampSteps, quietLogger())
	_, err := first.Reconcile(stations)
	require.NoError(t, err)

	second := NewMarkerReconciler(NewMemoryMap(), DefaultRampSteps, quietLogger())
	_, err = second.Reconcile([]weather.Station{stations[2], stations[0], stations[1]})
	require.NoError(t, err)

	assert.Equal(t, first.Colors().Colors, second.Colors().Colors)
}

func TestMarkerReconciler_SameSetMovesInPlace(t *testing.T) {
	m := NewMemoryMap()
	r := NewMarkerReconciler(m, DefaultRampSteps, quietLogger())
	_, err := r.Reconcile([]weather.Station{located("A", 1, 10, 60), located("B", 2, 11, 61)})
	require.NoError(t, err)
	before := r.Markers()
	version := r.Colors().Version

	rebuilt, err := r.Reconcile([]weather.Station{located("B", 2, 12, 62), located("A", 1, 10, 60)})
	require.NoError(t, err)
	assert.False(t, rebuilt)

	after := r.Markers()
	require.Len(t, after, 2)
	assert.Equal(t, before[0].HandleID, after[0].HandleID)
	assert.Equal(t, before[1].HandleID, after[1].HandleID)
	assert.Equal(t, weather.Coordinates{Lon: 12, Lat: 62}, after[1].Position)
	assert.Equal(t, version, r.Colors().Version, "no colors were added")
	assert.Len(t, m.StationMarkers(), 2)
}

func TestMarkerReconciler_SameSetRefreshesTooltips(t *testing.T) {
	m := NewMemoryMap()
	r := NewMarkerReconciler(m, DefaultRampSteps, quietLogger())
	_, err := r.Reconcile([]weather.Station{located("A", 1, 10, 60), located("B", 2, 11, 61)})
	require.NoError(t, err)
	colors := r.Colors()

	rebuilt, err := r.Reconcile([]weather.Station{located("A", 7, 10, 60), located("B", 0.5, 11, 61)})
	require.NoError(t, err)
	assert.False(t, rebuilt)

	tips := map[string]string{}
	for _, pm := range r.Markers() {
		tips[pm.StationID] = pm.Tooltip
	}
	assert.Equal(t, "7.0 km \nStation A", tips["A"])
	assert.Equal(t, "0.5 km \nStation B", tips["B"])

	onMap := map[string]string{}
	for _, opts := range m.StationMarkers() {
		onMap[opts.StationID] = opts.Tooltip
	}
	assert.Equal(t, tips, onMap)
	assert.Equal(t, colors, r.Colors(), "colors stay with their stations")
}

func TestMarkerReconciler_NewSetRebuilds(t *testing.T) {
	m := NewMemoryMap()
	r := NewMarkerReconciler(m, DefaultRampSteps, quietLogger())
	_, err := r.Reconcile([]weather.Station{located("A", 1, 0, 0), located("B", 2, 0, 0)})
	require.NoError(t, err)
	version := r.Colors().Version

	rebuilt, err := r.Reconcile([]weather.Station{located("C", 5, 0, 0)})
	require.NoError(t, err)
	assert.True(t, rebuilt)

	assert.Equal(t, []weather.MarkerColor{{StationID: "C", Color: "rgb(255, 0, 0)"}}, r.Colors().Colors)
	assert.Greater(t, r.Colors().Version, version)
	onMap := m.StationMarkers()
	require.Len(t, onMap, 1)
	assert.Equal(t, "C", onMap[0].StationID)
}

func TestMarkerReconciler_PlacesOnceLocated(t *testing.T) {
	m := NewMemoryMap()
	r := NewMarkerReconciler(m, DefaultRampSteps, quietLogger())
	pending := weather.Station{ID: "B", DistanceKm: 2}

	_, err := r.Reconcile([]weather.Station{located("A", 1, 0, 0), pending})
	require.NoError(t, err)
	assert.Len(t, r.Markers(), 1)

	pending = located("B", 2, 5, 5)
	rebuilt, err := r.Reconcile([]weather.Station{located("A", 1, 0, 0), pending})
	require.NoError(t, err)
	assert.False(t, rebuilt)

	assert.Equal(t, []weather.MarkerColor{
		{StationID: "A", Color: "rgb(255, 0, 0)"},
		{StationID: "B", Color: "rgb(191, 0, 64)"},
	}, r.Colors().Colors)
}

func TestMarkerReconciler_ClampsPastRamp(t *testing.T) {
	r := NewMarkerReconciler(NewMemoryMap(), DefaultRampSteps, quietLogger())
	var stations []weather.Station
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		stations = append(stations, located(id, float64(i+1), 0, 0))
	}
	_, err := r.Reconcile(stations)
	require.NoError(t, err)

	colors := r.Colors().Colors
	require.Len(t, colors, 7)
	assert.Equal(t, "rgb(0, 0, 255)", colors[4].Color)
	assert.Equal(t, "rgb(0, 0, 255)", colors[5].Color)
	assert.Equal(t, "rgb(0, 0, 255)", colors[6].Color)
}

func TestPopupReconciler_UpsertTwiceKeepsOneHandle(t *testing.T) {
	m := NewMemoryMap()
	p := NewPopupReconciler(m, quietLogger())
	at := weather.Coordinates{Lon: 10.75, Lat: 59.91}

	p.Upsert(at, Content{Address: "first"})
	id := p.HandleID()
	require.NotEmpty(t, id)
	require.True(t, p.State().Open)

	p.Upsert(at, Content{Address: "second"})

	assert.Equal(t, 1, m.LocationMarkers())
	assert.Equal(t, id, p.HandleID())
	state := p.State()
	assert.True(t, state.Open)
	assert.Equal(t, "second", state.Content.Address)
}

func TestPopupReconciler_ReopensAndMoves(t *testing.T) {
	m := NewMemoryMap()
	p := NewPopupReconciler(m, quietLogger())
	p.Upsert(weather.Coordinates{Lon: 1, Lat: 1}, Content{Address: "a"})
	p.Close()
	require.False(t, p.State().Open)

	p.Upsert(weather.Coordinates{Lon: 2, Lat: 2}, Content{Address: "b"})

	state := p.State()
	assert.True(t, state.Open)
	assert.Equal(t, weather.Coordinates{Lon: 2, Lat: 2}, state.Position)
	assert.Equal(t, 1, m.LocationMarkers())
}

func TestPopupReconciler_ClickTogglesWithoutReachingMap(t *testing.T) {
	m := NewMemoryMap()
	mapClicks := 0
	m.OnMapClick(func(weather.Coordinates) { mapClicks++ })
	p := NewPopupReconciler(m, quietLogger())
	p.Upsert(weather.Coordinates{Lon: 1, Lat: 1}, Content{})

	propagated, err := m.ClickMarker(p.HandleID())
	require.NoError(t, err)
	assert.False(t, propagated)
	assert.False(t, p.State().Open)

	propagated, err = m.ClickMarker(p.HandleID())
	require.NoError(t, err)
	assert.False(t, propagated)
	assert.True(t, p.State().Open)
	assert.Zero(t, mapClicks)
}

func TestMemoryMap_StationClickReachesMap(t *testing.T) {
	m := NewMemoryMap()
	var clicked []weather.Coordinates
	m.OnMapClick(func(at weather.Coordinates) { clicked = append(clicked, at) })
	h := m.AddStationMarker(StationMarkerOptions{StationID: "A", Position: weather.Coordinates{Lon: 3, Lat: 4}})

	propagated, err := m.ClickMarker(h.ID())
	require.NoError(t, err)
	assert.True(t, propagated)
	assert.Equal(t, []weather.Coordinates{{Lon: 3, Lat: 4}}, clicked)

	h.Remove()
	_, err = m.ClickMarker(h.ID())
	assert.ErrorIs(t, err, ErrUnknownHandle)
}
