package weather

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/i474232898/weather-station-sync/internal/common"
	"github.com/i474232898/weather-station-sync/internal/metrics"
)

// RunResult describes one coordinator run.
type RunResult struct {
	Generation uint64
	Index      *ObservationIndex
	LastError  string
	Published  bool

	// Requested lists the element batches sent, in request order.
	Requested []StationRequest
}

// StationRequest is one batched request issued for a station.
type StationRequest struct {
	StationID string
	Elements  []string
}

// Coordinator fetches observations for a station list, one station at a
// time in distance order, and publishes the merged index to its Store.
type Coordinator struct {
	source ObservationSource
	store  Store
	logger *log.Logger
	gen    atomic.Uint64
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(source ObservationSource, store Store, logger *log.Logger) *Coordinator {
	return &Coordinator{
		source: source,
		store:  store,
		logger: logger,
	}
}

// Generation returns the newest generation handed out.
func (c *Coordinator) Generation() uint64 {
	return c.gen.Load()
}

// Run performs one synchronization pass. Every run takes a fresh generation
// and a fresh Deduplicator; its index is published only if no newer run has
// started in the meantime. A failing station is recorded and the pass moves
// on, so one bad station never empties the whole index.
func (c *Coordinator) Run(ctx context.Context, stations []Station, window TimeWindow) RunResult {
	gen := c.gen.Add(1)
	c.store.Begin(gen)
	start := time.Now()

	res := RunResult{Generation: gen, Index: NewObservationIndex(gen)}
	dedup := NewDeduplicator()

	for _, st := range SortByDistance(stations) {
		if ctx.Err() != nil {
			c.logger.Debug("run abandoned", "gen", gen, "err", ctx.Err())
			metrics.RunsTotal.WithLabelValues("abandoned").Inc()
			return res
		}

		// Observations are requested by position, so a station without one
		// would fetch for 0,0 and use up its elements for the stations behind it.
		if !st.Located {
			c.logger.Debug("unlocated station skipped", "gen", gen, "station", st.ID)
			continue
		}

		elements := st.Elements()
		toFetch := dedup.Filter(elements, window)
		if skipped := len(elements) - len(toFetch); skipped > 0 {
			metrics.DedupSkippedTotal.Add(float64(skipped))
		}
		if len(toFetch) == 0 {
			continue
		}

		res.Requested = append(res.Requested, StationRequest{StationID: st.ID, Elements: toFetch})
		records, err := c.fetch(ctx, st, window, toFetch)

		// Marked whatever the outcome so a failing station is not retried
		// by later stations listing the same element.
		for _, el := range toFetch {
			dedup.MarkFetched(FetchIdentifier(el, window))
		}

		if err != nil {
			fe := &FetchError{StationID: st.ID, Err: err}
			res.LastError = common.ErrorMessage(fe.Err)
			metrics.ObservationRequestsTotal.WithLabelValues("error").Inc()
			c.logger.Warn("observation fetch failed", "gen", gen, "station", st.ID, "err", fe)
			continue
		}

		metrics.ObservationRequestsTotal.WithLabelValues("success").Inc()
		res.Index.Set(st.ID, records)
		c.logger.Debug("observations fetched", "gen", gen, "station", st.ID,
			"elements", len(toFetch), "records", len(records))
	}

	if ctx.Err() != nil {
		c.logger.Debug("run abandoned", "gen", gen, "err", ctx.Err())
		metrics.RunsTotal.WithLabelValues("abandoned").Inc()
		return res
	}
	metrics.RunDuration.Observe(time.Since(start).Seconds())

	res.Published = c.store.Publish(gen, res.Index, res.LastError)
	if res.Published {
		metrics.RunsTotal.WithLabelValues("published").Inc()
		c.logger.Info("observations published", "gen", gen, "stations", res.Index.Len(),
			"took", time.Since(start).Round(time.Millisecond))
	} else {
		metrics.RunsTotal.WithLabelValues("stale").Inc()
		c.logger.Debug("stale run dropped", "gen", gen, "latest", c.gen.Load())
	}
	return res
}

// fetch calls the source for one station. A panic inside the source is
// turned into an error so the rest of the batch still runs.
func (c *Coordinator) fetch(ctx context.Context, st Station, window TimeWindow, elements []string) (records []ObservationRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(common.ErrorMessage(r))
		}
	}()
	return c.source.FetchObservations(ctx, st.Coordinates, window, strings.Join(elements, ","))
}
