package weather

import (
	"context"
)

// StationSource finds the stations nearest to a point. Distances are
// precomputed by the source but the order is not guaranteed.
type StationSource interface {
	NearestStations(ctx context.Context, point Coordinates) ([]Station, error)
}

// ObservationSource fetches observation records for one station.
// window is sent verbatim and elements is a single comma-joined parameter.
type ObservationSource interface {
	FetchObservations(ctx context.Context, at Coordinates, window TimeWindow, elements string) ([]ObservationRecord, error)
}

// ForecastSource fetches the point forecast shown in the location popup.
type ForecastSource interface {
	FetchForecast(ctx context.Context, point Coordinates) (ForecastDocument, error)
}

// AddressResolver turns a point into a human readable address.
type AddressResolver interface {
	ReverseGeocode(ctx context.Context, point Coordinates) (string, error)
}

// Store receives coordinator runs. Begin announces a new generation; Publish
// hands over a completed index and reports whether it was accepted. Results
// from a generation older than the newest begun one are rejected.
type Store interface {
	Begin(gen uint64)
	Publish(gen uint64, index *ObservationIndex, lastErr string) bool
	Latest() (*ObservationIndex, SyncState)
}

// Named is implemented by sources that can identify themselves in logs.
type Named interface {
	Name() string
}

func sourceName(v any) string {
	if n, ok := v.(Named); ok {
		return n.Name()
	}
	return "unnamed"
}
