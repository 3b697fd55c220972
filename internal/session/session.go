// Package session ties the synchronization components to the outside world:
// a selected location drives station markers, an observation run and the
// location popup.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/i474232898/weather-station-sync/internal/events"
	"github.com/i474232898/weather-station-sync/internal/logger"
	"github.com/i474232898/weather-station-sync/internal/mapview"
	"github.com/i474232898/weather-station-sync/internal/store"
	"github.com/i474232898/weather-station-sync/internal/weather"
)

var (
	// ErrNoSelection is returned by operations that need a selected location.
	ErrNoSelection = errors.New("no location selected")

	// ErrInvalidTimeFrame is returned for time frames other than P1M and P1Y.
	ErrInvalidTimeFrame = errors.New("time frame must be P1M or P1Y")
)

// Bounds limits where a location can be selected.
type Bounds interface {
	Contains(c weather.Coordinates) bool
}

// Deps are the collaborators of a Session. Addresses, Events and Bounds are optional.
type Deps struct {
	Stations     weather.StationSource
	Observations weather.ObservationSource
	Forecasts    weather.ForecastSource
	Addresses    weather.AddressResolver

	Store  *store.MemoryStore
	Map    mapview.Map
	Events events.Broadcaster
	Bounds Bounds
}

// Options are the initial settings of a Session.
type Options struct {
	Window     weather.TimeWindow
	TimeFrame  weather.TimeFrame
	DateLabels weather.DateLabeler
	RampSteps  int

	// Now is used to pick the forecast step; defaults to time.Now.
	Now func() time.Time
}

// Chart is one standard metric chart.
type Chart struct {
	Metric       weather.Metric      `json:"metric"`
	Series       weather.ChartSeries `json:"series"`
	SuggestedMin float64             `json:"suggestedMin"`
	SuggestedMax float64             `json:"suggestedMax"`
}

// MarkerView lists placed station markers and their colors.
type MarkerView struct {
	Markers []mapview.PlacedMarker `json:"markers"`
	Colors  []weather.MarkerColor  `json:"colors"`
}

// View is everything a renderer needs to draw the current selection.
type View struct {
	Location  *weather.Coordinates `json:"location,omitempty"`
	Window    string               `json:"window"`
	TimeFrame weather.TimeFrame    `json:"timeFrame"`
	Stations  []weather.Station    `json:"stations"`
	State     weather.SyncState    `json:"state"`
}

type runKey struct {
	fingerprint uint64
	window      string
}

// Session is one user's view of the map. All marker and popup mutation is
// serialized behind mu; observation runs execute on their own goroutines.
type Session struct {
	deps        Deps
	now         func() time.Time
	logger      *log.Logger
	coordinator *weather.Coordinator
	aggregator  *weather.SeriesAggregator
	markers     *mapview.MarkerReconciler
	popup       *mapview.PopupReconciler

	baseCtx context.Context
	stop    context.CancelFunc
	runs    sync.WaitGroup

	mu          sync.Mutex
	location    *weather.Coordinates
	stations    []weather.Station
	fingerprint uint64
	window      weather.TimeWindow
	timeFrame   weather.TimeFrame
	lastRun     *runKey
	cancelRun   context.CancelFunc
	runDone     chan struct{}
	popupSeq    uint64
}

// New creates a Session.
func New(deps Deps, opts Options, logger *log.Logger) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if !opts.TimeFrame.Valid() {
		opts.TimeFrame = weather.Monthly
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Session{
		deps:        deps,
		now:         opts.Now,
		logger:      logger,
		coordinator: weather.NewCoordinator(deps.Observations, deps.Store, logger),
		aggregator:  weather.NewSeriesAggregator(opts.DateLabels),
		markers:     mapview.NewMarkerReconciler(deps.Map, opts.RampSteps, logger),
		popup:       mapview.NewPopupReconciler(deps.Map, logger),
		baseCtx:     ctx,
		stop:        stop,
		window:      opts.Window,
		timeFrame:   opts.TimeFrame,
	}

	deps.Store.OnPublish(func(index *weather.ObservationIndex, state weather.SyncState) {
		s.broadcast(events.TypeObservations, map[string]any{
			"generation": index.Generation,
			"stations":   index.Stations(),
		})
		s.broadcast(events.TypeState, state)
	})
	return s
}

// Close cancels any running observation fetch and waits for it to return.
func (s *Session) Close() {
	s.stop()
	s.runs.Wait()
}

// SelectLocation makes point the current location: it looks up the nearest
// stations, reconciles their markers, starts an observation run if the
// stations or window changed, and updates the location popup.
func (s *Session) SelectLocation(ctx context.Context, point weather.Coordinates) error {
	if s.deps.Bounds != nil && !s.deps.Bounds.Contains(point) {
		return fmt.Errorf("%w: %s", weather.ErrOutOfBounds, point)
	}

	stations, err := s.deps.Stations.NearestStations(ctx, point)
	if err != nil {
		return fmt.Errorf("nearest stations: %w", err)
	}

	s.mu.Lock()
	fp, err := mapview.StationFingerprint(stations)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, err := s.markers.Reconcile(stations); err != nil {
		s.mu.Unlock()
		return err
	}
	loc := point
	s.location = &loc
	s.stations = weather.SortByDistance(stations)
	s.fingerprint = fp
	s.startRunLocked(false)
	s.popupSeq++
	seq := s.popupSeq
	s.mu.Unlock()

	s.broadcast(events.TypeMarkers, s.Markers())
	s.logger.Info("location selected", "at", point, "stations", len(stations))

	if err := s.updatePopup(ctx, point, seq); err != nil {
		logger.Error(s.logger, err, "popup update skipped", "at", point)
	}
	return nil
}

// SetWindow changes the observation window and re-syncs the current stations.
func (s *Session) SetWindow(w weather.TimeWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = w
	if len(s.stations) > 0 {
		s.startRunLocked(false)
	}
}

// SetTimeFrame switches the standard charts between monthly and yearly.
func (s *Session) SetTimeFrame(tf weather.TimeFrame) error {
	if !tf.Valid() {
		return ErrInvalidTimeFrame
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeFrame = tf
	return nil
}

// Refresh re-runs the observation sync for the current stations, even if
// nothing changed, and waits for the run to finish.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if len(s.stations) == 0 {
		s.mu.Unlock()
		return ErrNoSelection
	}
	done := s.startRunLocked(true)
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshPopup fetches a new forecast for the selected location.
func (s *Session) RefreshPopup(ctx context.Context) error {
	s.mu.Lock()
	loc := s.location
	s.popupSeq++
	seq := s.popupSeq
	s.mu.Unlock()

	if loc == nil {
		return weather.ErrMissingCoordinates
	}
	return s.updatePopup(ctx, *loc, seq)
}

// Wait blocks until the latest observation run has finished.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startRunLocked starts an observation run for the current stations and
// window unless the same pair already ran and force is false. The previous
// run is cancelled and the new one waits for it to return, so generations
// are taken in start order.
func (s *Session) startRunLocked(force bool) <-chan struct{} {
	key := runKey{fingerprint: s.fingerprint, window: s.window.String()}
	if !force && s.lastRun != nil && *s.lastRun == key {
		s.logger.Debug("selection unchanged, run skipped", "window", key.window)
		return s.runDone
	}
	if s.cancelRun != nil {
		s.cancelRun()
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	prev := s.runDone
	stations := s.stations
	window := s.window

	s.lastRun = &key
	s.cancelRun = cancel
	s.runDone = done

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		s.coordinator.Run(ctx, stations, window)
	}()

	_, state := s.deps.Store.Latest()
	state.Loading = true
	s.broadcast(events.TypeState, state)
	return done
}

func (s *Session) updatePopup(ctx context.Context, point weather.Coordinates, seq uint64) error {
	doc, err := s.deps.Forecasts.FetchForecast(ctx, point)
	if err != nil {
		return fmt.Errorf("fetch forecast: %w", err)
	}
	step, err := weather.ClosestStep(doc, s.now())
	if err != nil {
		return err
	}

	content := mapview.Content{
		Address: point.String(),
		Time:    step.Time,
		Details: step.Data.Instant.Details,
	}
	if s.deps.Addresses != nil {
		if addr, err := s.deps.Addresses.ReverseGeocode(ctx, point); err == nil {
			content.Address = addr
		} else {
			s.logger.Debug("reverse geocode failed", "at", point, "err", err)
		}
	}

	s.mu.Lock()
	if seq != s.popupSeq {
		s.mu.Unlock()
		s.logger.Debug("stale popup content dropped", "at", point)
		return nil
	}
	s.popup.Upsert(point, content)
	s.mu.Unlock()

	s.broadcast(events.TypePopup, s.popup.State())
	return nil
}

// Series returns the chart series of one element from the latest published index.
func (s *Session) Series(elementID string) weather.ChartSeries {
	index, _ := s.deps.Store.Latest()
	return s.aggregator.Series(index, elementID, s.markers.Colors())
}

// Charts returns the standard metric charts for the current time frame.
func (s *Session) Charts() []Chart {
	s.mu.Lock()
	tf := s.timeFrame
	s.mu.Unlock()

	charts := make([]Chart, 0, len(weather.StandardMetrics))
	for _, m := range weather.StandardMetrics {
		el, err := weather.MetricElement(m, tf)
		if err != nil {
			continue
		}
		series := s.Series(el)
		charts = append(charts, Chart{
			Metric:       m,
			Series:       series,
			SuggestedMin: series.SuggestedMin(),
			SuggestedMax: series.SuggestedMax(),
		})
	}
	return charts
}

// Markers returns the placed station markers and their colors.
func (s *Session) Markers() MarkerView {
	return MarkerView{
		Markers: s.markers.Markers(),
		Colors:  s.markers.Colors().Colors,
	}
}

// Popup returns the location popup state.
func (s *Session) Popup() mapview.PopupState {
	return s.popup.State()
}

// ClickMap delivers a click to the map, whose click handler selects the
// clicked point. Points outside the bounds are rejected before dispatch.
func (s *Session) ClickMap(at weather.Coordinates) error {
	if s.deps.Bounds != nil && !s.deps.Bounds.Contains(at) {
		return fmt.Errorf("%w: %s", weather.ErrOutOfBounds, at)
	}
	clicker, err := s.clicker()
	if err != nil {
		return err
	}
	clicker.ClickMap(at)
	return nil
}

// ClickStationMarker clicks a station marker. Station markers have no handler
// of their own, so the click falls through to the map at the station.
func (s *Session) ClickStationMarker(handleID string) (bool, error) {
	clicker, err := s.clicker()
	if err != nil {
		return false, err
	}
	return clicker.ClickMarker(handleID)
}

// Observations returns the published records of one station.
func (s *Session) Observations(stationID string) ([]weather.ObservationRecord, error) {
	return s.deps.Store.Records(stationID)
}

func (s *Session) clicker() (mapview.Clicker, error) {
	clicker, ok := s.deps.Map.(mapview.Clicker)
	if !ok {
		return nil, errors.New("map does not dispatch clicks")
	}
	return clicker, nil
}

// ClickLocationMarker clicks the location marker, which toggles the popup
// without selecting a new location.
func (s *Session) ClickLocationMarker() (mapview.PopupState, error) {
	id := s.popup.HandleID()
	if id == "" {
		return mapview.PopupState{}, weather.ErrMissingCoordinates
	}
	clicker, err := s.clicker()
	if err != nil {
		return mapview.PopupState{}, err
	}
	if _, err := clicker.ClickMarker(id); err != nil {
		return mapview.PopupState{}, err
	}
	state := s.popup.State()
	s.broadcast(events.TypePopup, state)
	return state, nil
}

// ClosePopup closes the location popup, keeping its marker and content.
func (s *Session) ClosePopup() mapview.PopupState {
	s.mu.Lock()
	s.popup.Close()
	s.mu.Unlock()

	state := s.popup.State()
	s.broadcast(events.TypePopup, state)
	return state
}

// State returns the observation sync state.
func (s *Session) State() weather.SyncState {
	_, state := s.deps.Store.Latest()
	return state
}

// View returns the current selection.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Window:    s.window.String(),
		TimeFrame: s.timeFrame,
		Stations:  append([]weather.Station(nil), s.stations...),
	}
	if s.location != nil {
		loc := *s.location
		v.Location = &loc
	}
	_, v.State = s.deps.Store.Latest()
	return v
}

func (s *Session) broadcast(typ string, data interface{}) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Broadcast(events.Message{Type: typ, Data: data})
}
