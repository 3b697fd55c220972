// Package mapview keeps map markers and the location popup in step with the
// station list and forecast data, without depending on a particular map
// toolkit.
package mapview

import (
	"time"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

// Map is the map toolkit the reconcilers drive.
type Map interface {
	// AddStationMarker creates and shows a station marker.
	AddStationMarker(opts StationMarkerOptions) MarkerHandle

	// AddLocationMarker creates and shows the selected-location marker.
	AddLocationMarker(at weather.Coordinates) LocationHandle
}

// MarkerHandle is a marker owned by exactly one reconciler.
type MarkerHandle interface {
	ID() string
	Position() weather.Coordinates
	SetPosition(at weather.Coordinates)

	// SetTooltip replaces the hover text. Markers without one ignore it.
	SetTooltip(text string)
	Remove()
}

// LocationHandle is the marker of the selected location. It carries at most
// one popup and receives clicks before the map does.
type LocationHandle interface {
	MarkerHandle
	AttachPopup(opts PopupOptions) Popup
	Popup() Popup
	OnClick(fn func(ev *ClickEvent))
}

// Popup is a toolkit popup bound to a location marker.
type Popup interface {
	SetContent(c Content)
	Content() Content
	Open()
	Close()
	IsOpen() bool
}

// StationMarkerOptions describes how a station marker renders.
type StationMarkerOptions struct {
	StationID string
	Position  weather.Coordinates
	Color     string

	// Label is shown under the marker, Tooltip on hover.
	Label   string
	Tooltip string
}

// PopupOptions configures a popup at creation.
type PopupOptions struct {
	CloseButton bool
	Offset      int
	ClassName   string
}

// Content is what the location popup shows.
type Content struct {
	Address string             `json:"address"`
	Time    time.Time          `json:"time"`
	Details map[string]float64 `json:"details"`
}

// ClickEvent is delivered to marker click handlers before the map sees it.
type ClickEvent struct {
	At      weather.Coordinates
	stopped bool
}

// StopPropagation keeps the click from reaching the map.
func (e *ClickEvent) StopPropagation() {
	e.stopped = true
}

// Stopped reports whether a handler stopped the click.
func (e *ClickEvent) Stopped() bool {
	return e.stopped
}

// Clicker is implemented by maps that can deliver clicks on request.
type Clicker interface {
	// ClickMarker clicks a marker and reports whether the click reached the map.
	ClickMarker(handleID string) (bool, error)
	ClickMap(at weather.Coordinates)
}
