package weather

// FetchIdentifier builds the dedup key for an element requested over a window.
func FetchIdentifier(elementID string, window TimeWindow) string {
	return elementID + ":" + window.String()
}

// Deduplicator remembers which (element, window) identifiers one coordinator
// run has already requested. A new one is made for every run and dropped
// afterwards, so nothing leaks between runs.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator returns an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// ShouldFetch reports whether id has not been requested yet in this run.
func (d *Deduplicator) ShouldFetch(id string) bool {
	_, ok := d.seen[id]
	return !ok
}

// MarkFetched records id as requested.
func (d *Deduplicator) MarkFetched(id string) {
	d.seen[id] = struct{}{}
}

// Filter returns the elements whose identifiers over window have not been
// requested yet, in their original order and without repeats.
func (d *Deduplicator) Filter(elements []string, window TimeWindow) []string {
	var out []string
	picked := make(map[string]struct{}, len(elements))
	for _, el := range elements {
		if _, dup := picked[el]; dup {
			continue
		}
		if d.ShouldFetch(FetchIdentifier(el, window)) {
			picked[el] = struct{}{}
			out = append(out, el)
		}
	}
	return out
}
