package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedForecast is returned when a forecast lacks timeseries or
	// instant details. The popup keeps its previous content.
	ErrMalformedForecast = errors.New("forecast data is missing or incomplete")

	// ErrMissingCoordinates is returned when a popup update is attempted
	// without a selected location.
	ErrMissingCoordinates = errors.New("coordinates are missing for the popup")

	// ErrOutOfBounds is returned for selections outside the configured map bounds.
	ErrOutOfBounds = errors.New("location is outside the map bounds")
)

// FetchError is a per-station observation fetch failure. It is recorded and
// never aborts the rest of the batch.
type FetchError struct {
	StationID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch observations for %s: %v", e.StationID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
