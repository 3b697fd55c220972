package mapview

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

var (
	// ErrUnknownHandle is returned when a click targets a marker that is not on the map.
	ErrUnknownHandle = errors.New("unknown marker handle")
)

// MemoryMap is an in-memory Map. It records what a toolkit would render and
// dispatches clicks the way a browser map does: marker handlers first, then
// the map unless a handler stopped the event.
type MemoryMap struct {
	mu       sync.Mutex
	markers  map[string]*memoryMarker
	order    []string
	mapClick func(at weather.Coordinates)
}

// NewMemoryMap creates an empty map.
func NewMemoryMap() *MemoryMap {
	return &MemoryMap{markers: make(map[string]*memoryMarker)}
}

// OnMapClick sets the handler for clicks that reach the map.
func (m *MemoryMap) OnMapClick(fn func(at weather.Coordinates)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapClick = fn
}

// AddStationMarker implements Map.
func (m *MemoryMap) AddStationMarker(opts StationMarkerOptions) MarkerHandle {
	return m.add(opts.Position, &opts)
}

// AddLocationMarker implements Map.
func (m *MemoryMap) AddLocationMarker(at weather.Coordinates) LocationHandle {
	return m.add(at, nil)
}

func (m *MemoryMap) add(at weather.Coordinates, opts *StationMarkerOptions) *memoryMarker {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk := &memoryMarker{
		owner:    m,
		id:       uuid.NewString(),
		position: at,
		station:  opts,
	}
	m.markers[mk.id] = mk
	m.order = append(m.order, mk.id)
	return mk
}

// ClickMarker simulates a click on the marker with the given handle id and
// reports whether the click reached the map.
func (m *MemoryMap) ClickMarker(handleID string) (bool, error) {
	m.mu.Lock()
	mk, ok := m.markers[handleID]
	if !ok {
		m.mu.Unlock()
		return false, ErrUnknownHandle
	}
	handlers := append([]func(*ClickEvent){}, mk.handlers...)
	ev := &ClickEvent{At: mk.position}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
	if ev.Stopped() {
		return false, nil
	}
	m.ClickMap(ev.At)
	return true, nil
}

// ClickMap simulates a click on the map itself.
func (m *MemoryMap) ClickMap(at weather.Coordinates) {
	m.mu.Lock()
	fn := m.mapClick
	m.mu.Unlock()
	if fn != nil {
		fn(at)
	}
}

// StationMarkers returns the options of every station marker on the map, in
// creation order.
func (m *MemoryMap) StationMarkers() []StationMarkerOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StationMarkerOptions
	for _, id := range m.order {
		if mk := m.markers[id]; mk.station != nil {
			opts := *mk.station
			opts.Position = mk.position
			out = append(out, opts)
		}
	}
	return out
}

// LocationMarkers returns the number of location markers on the map.
func (m *MemoryMap) LocationMarkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mk := range m.markers {
		if mk.station == nil {
			n++
		}
	}
	return n
}

type memoryMarker struct {
	owner    *MemoryMap
	id       string
	position weather.Coordinates
	station  *StationMarkerOptions
	popup    *memoryPopup
	handlers []func(*ClickEvent)
}

func (mk *memoryMarker) ID() string { return mk.id }

func (mk *memoryMarker) Position() weather.Coordinates {
	mk.owner.mu.Lock()
	defer mk.owner.mu.Unlock()
	return mk.position
}

func (mk *memoryMarker) SetPosition(at weather.Coordinates) {
	mk.owner.mu.Lock()
	defer mk.owner.mu.Unlock()
	mk.position = at
}

func (mk *memoryMarker) SetTooltip(text string) {
	mk.owner.mu.Lock()
	defer mk.owner.mu.Unlock()
	if mk.station != nil {
		mk.station.Tooltip = text
	}
}

func (mk *memoryMarker) Remove() {
	m := mk.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markers[mk.id]; !ok {
		return
	}
	delete(m.markers, mk.id)
	for i, id := range m.order {
		if id == mk.id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (mk *memoryMarker) AttachPopup(opts PopupOptions) Popup {
	mk.owner.mu.Lock()
	defer mk.owner.mu.Unlock()
	mk.popup = &memoryPopup{owner: mk.owner, opts: opts}
	return mk.popup
}

func (mk *memoryMarker) Popup() Popup {
	mk.owner.mu.Lock()
	defer mk.owner.mu.Unlock()
	if mk.popup == nil {
		return nil
	}
	return mk.popup
}

func (mk *memoryMarker) OnClick(fn func(ev *ClickEvent)) {
	mk.owner.mu.Lock()
	defer mk.owner.mu.Unlock()
	mk.handlers = append(mk.handlers, fn)
}

type memoryPopup struct {
	owner   *MemoryMap
	opts    PopupOptions
	content Content
	open    bool
}

func (p *memoryPopup) SetContent(c Content) {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	p.content = c
}

func (p *memoryPopup) Content() Content {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.content
}

func (p *memoryPopup) Open() {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	p.open = true
}

// Close is what the popup's close button does.
func (p *memoryPopup) Close() {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	p.open = false
}

func (p *memoryPopup) IsOpen() bool {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.open
}
