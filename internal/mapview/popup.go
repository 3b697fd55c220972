package mapview

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/i474232898/weather-station-sync/internal/metrics"
	"github.com/i474232898/weather-station-sync/internal/weather"
)

// PopupState is the location popup as seen from outside the reconciler.
type PopupState struct {
	Present  bool                `json:"present"`
	HandleID string              `json:"handleId,omitempty"`
	Position weather.Coordinates `json:"position"`
	Open     bool                `json:"open"`
	Content  Content             `json:"content"`
}

// PopupReconciler owns the single location marker and its popup. The first
// Upsert creates them, later ones move the marker and swap the content in
// place.
type PopupReconciler struct {
	m      Map
	logger *log.Logger

	mu     sync.Mutex
	handle LocationHandle
}

// NewPopupReconciler creates a reconciler for m.
func NewPopupReconciler(m Map, logger *log.Logger) *PopupReconciler {
	return &PopupReconciler{m: m, logger: logger}
}

// Upsert shows content at coordinates.
func (p *PopupReconciler) Upsert(at weather.Coordinates, content Content) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		h := p.m.AddLocationMarker(at)
		popup := h.AttachPopup(PopupOptions{CloseButton: true, Offset: 35, ClassName: "customPopup"})
		popup.SetContent(content)
		popup.Open()
		h.OnClick(func(ev *ClickEvent) {
			ev.StopPropagation()
			if popup.IsOpen() {
				popup.Close()
			} else {
				popup.Open()
			}
		})
		p.handle = h
		metrics.PopupUpsertsTotal.WithLabelValues("create").Inc()
		p.logger.Debug("location marker created", "at", at, "handle", h.ID())
		return
	}

	p.handle.SetPosition(at)
	popup := p.handle.Popup()
	popup.SetContent(content)
	if !popup.IsOpen() {
		popup.Open()
	}
	metrics.PopupUpsertsTotal.WithLabelValues("update").Inc()
	p.logger.Debug("location marker updated", "at", at, "handle", p.handle.ID())
}

// Close closes the popup as its close button would. The marker stays.
func (p *PopupReconciler) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		p.handle.Popup().Close()
	}
}

// HandleID returns the id of the location marker, or "" before the first Upsert.
func (p *PopupReconciler) HandleID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return ""
	}
	return p.handle.ID()
}

// State returns the current marker and popup state.
func (p *PopupReconciler) State() PopupState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return PopupState{}
	}
	popup := p.handle.Popup()
	return PopupState{
		Present:  true,
		HandleID: p.handle.ID(),
		Position: p.handle.Position(),
		Open:     popup.IsOpen(),
		Content:  popup.Content(),
	}
}
