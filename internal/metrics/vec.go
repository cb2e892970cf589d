package metrics

import (
	"sort"
	"sync"
)

// counterEntry is one labeled counter series.
type counterEntry struct {
	labels map[string]string
	value  int64
}

// counterVec is a mutex-guarded set of labeled counters keyed by their
// formatted label string.
type counterVec struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

func newCounterVec() *counterVec {
	return &counterVec{entries: make(map[string]*counterEntry)}
}

func (cv *counterVec) inc(labels map[string]string) {
	cv.add(labels, 1)
}

func (cv *counterVec) add(labels map[string]string, delta int64) {
	key := formatLabels(labels)

	cv.mu.Lock()
	defer cv.mu.Unlock()
	e, ok := cv.entries[key]
	if !ok {
		e = &counterEntry{labels: copyLabels(labels)}
		cv.entries[key] = e
	}
	e.value += delta
}

// snapshot returns the current series in a stable order.
func (cv *counterVec) snapshot() []counterEntry {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	keys := make([]string, 0, len(cv.entries))
	for k := range cv.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]counterEntry, 0, len(keys))
	for _, k := range keys {
		e := cv.entries[k]
		out = append(out, counterEntry{labels: copyLabels(e.labels), value: e.value})
	}
	return out
}

// gaugeEntry is one labeled gauge series.
type gaugeEntry struct {
	labels map[string]string
	value  float64
}

// gaugeVec is a mutex-guarded set of labeled gauges.
type gaugeVec struct {
	mu      sync.Mutex
	entries map[string]*gaugeEntry
}

func newGaugeVec() *gaugeVec {
	return &gaugeVec{entries: make(map[string]*gaugeEntry)}
}

func (gv *gaugeVec) set(labels map[string]string, value float64) {
	key := formatLabels(labels)

	gv.mu.Lock()
	defer gv.mu.Unlock()
	e, ok := gv.entries[key]
	if !ok {
		e = &gaugeEntry{labels: copyLabels(labels)}
		gv.entries[key] = e
	}
	e.value = value
}

func (gv *gaugeVec) snapshot() []gaugeEntry {
	gv.mu.Lock()
	defer gv.mu.Unlock()

	keys := make([]string, 0, len(gv.entries))
	for k := range gv.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]gaugeEntry, 0, len(keys))
	for _, k := range keys {
		e := gv.entries[k]
		out = append(out, gaugeEntry{labels: copyLabels(e.labels), value: e.value})
	}
	return out
}

// histogram is one labeled histogram series. counts holds per-bucket
// (non-cumulative) observation counts aligned with buckets; observations
// above the last bound only affect sum and count.
type histogram struct {
	labels  map[string]string
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

// histogramVec is a mutex-guarded set of labeled histograms sharing one
// bucket layout.
type histogramVec struct {
	mu      sync.Mutex
	buckets []float64
	entries map[string]*histogram
}

func newHistogramVec(buckets []float64) *histogramVec {
	return &histogramVec{
		buckets: buckets,
		entries: make(map[string]*histogram),
	}
}

func (hv *histogramVec) observe(labels map[string]string, value float64) {
	key := formatLabels(labels)

	hv.mu.Lock()
	defer hv.mu.Unlock()
	h, ok := hv.entries[key]
	if !ok {
		h = &histogram{
			labels:  copyLabels(labels),
			buckets: hv.buckets,
			counts:  make([]int64, len(hv.buckets)),
		}
		hv.entries[key] = h
	}

	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
	h.sum += value
	h.count++
}

func (hv *histogramVec) snapshot() []histogram {
	hv.mu.Lock()
	defer hv.mu.Unlock()

	keys := make([]string, 0, len(hv.entries))
	for k := range hv.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]histogram, 0, len(keys))
	for _, k := range keys {
		h := hv.entries[k]
		counts := make([]int64, len(h.counts))
		copy(counts, h.counts)
		out = append(out, histogram{
			labels:  copyLabels(h.labels),
			buckets: h.buckets,
			counts:  counts,
			sum:     h.sum,
			count:   h.count,
		})
	}
	return out
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
