package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// ClosestStep returns the forecast step whose time is nearest to now; on a
// tie the later step wins.
// A document without steps or whose chosen step lacks instant details is
// reported as ErrMalformedForecast.
func ClosestStep(doc ForecastDocument, now time.Time) (ForecastStep, error) {
	steps := doc.Properties.Timeseries
	if len(steps) == 0 {
		return ForecastStep{}, ErrMalformedForecast
	}

	best := 0
	bestDiff := absDuration(steps[0].Time.Sub(now))
	for i := 1; i < len(steps); i++ {
		if d := absDuration(steps[i].Time.Sub(now)); d <= bestDiff {
			best, bestDiff = i, d
		}
	}

	step := steps[best]
	if step.Data.Instant == nil || step.Data.Instant.Details == nil {
		return ForecastStep{}, ErrMalformedForecast
	}
	return step, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// FallbackForecast tries its sources in order and returns the first document
// that has at least one time step.
type FallbackForecast struct {
	sources []ForecastSource
	logger  *log.Logger
}

// NewFallbackForecast creates a FallbackForecast over sources.
func NewFallbackForecast(logger *log.Logger, sources ...ForecastSource) *FallbackForecast {
	return &FallbackForecast{sources: sources, logger: logger}
}

// FetchForecast implements ForecastSource.
func (f *FallbackForecast) FetchForecast(ctx context.Context, point Coordinates) (ForecastDocument, error) {
	if len(f.sources) == 0 {
		return ForecastDocument{}, fmt.Errorf("no forecast sources configured")
	}

	var lastErr error
	for _, src := range f.sources {
		doc, err := src.FetchForecast(ctx, point)
		if err != nil {
			// Log and continue; a later source may still answer.
			f.logger.Warn("forecast source failed", "source", sourceName(src), "at", point, "err", err)
			lastErr = err
			continue
		}
		if len(doc.Properties.Timeseries) == 0 {
			f.logger.Warn("forecast source returned no steps", "source", sourceName(src), "at", point)
			lastErr = ErrMalformedForecast
			continue
		}
		return doc, nil
	}
	return ForecastDocument{}, lastErr
}
