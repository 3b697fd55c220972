package weather

import "strings"

// ObservationIndex maps station ids to the records fetched for them,
// remembering the order stations were added. It is built by one coordinator
// run and read-only once published.
type ObservationIndex struct {
	Generation uint64

	order   []string
	records map[string][]ObservationRecord
}

// NewObservationIndex returns an empty index for generation gen.
func NewObservationIndex(gen uint64) *ObservationIndex {
	return &ObservationIndex{
		Generation: gen,
		records:    make(map[string][]ObservationRecord),
	}
}

// Set stores the records for stationID, keeping only those whose sourceId
// belongs to the station ("<stationID>:..."). A shared backend may return
// unrelated sources and those never enter the index.
func (ix *ObservationIndex) Set(stationID string, records []ObservationRecord) {
	prefix := stationID + ":"
	kept := make([]ObservationRecord, 0, len(records))
	for _, r := range records {
		if strings.HasPrefix(r.SourceID, prefix) {
			kept = append(kept, r)
		}
	}
	if _, ok := ix.records[stationID]; !ok {
		ix.order = append(ix.order, stationID)
	}
	ix.records[stationID] = kept
}

// Stations returns the station ids in insertion order.
func (ix *ObservationIndex) Stations() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Records returns the records for stationID and whether the station has been
// fetched at all.
func (ix *ObservationIndex) Records(stationID string) ([]ObservationRecord, bool) {
	if ix == nil {
		return nil, false
	}
	r, ok := ix.records[stationID]
	return r, ok
}

// Len is the number of stations with an entry.
func (ix *ObservationIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.order)
}

// Entries returns the index as an ordered list of station entries.
func (ix *ObservationIndex) Entries() []IndexEntry {
	entries := make([]IndexEntry, 0, ix.Len())
	for _, id := range ix.Stations() {
		entries = append(entries, IndexEntry{StationID: id, Records: ix.records[id]})
	}
	return entries
}

// IndexEntry is one station's slice of an index, for serialization.
type IndexEntry struct {
	StationID string              `json:"stationId"`
	Records   []ObservationRecord `json:"records"`
}
