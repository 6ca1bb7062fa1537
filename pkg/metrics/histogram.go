package metrics

import (
	"math"
	"sort"
	"sync"
)

// summaryQuantiles are the quantiles reported by Summary.
var summaryQuantiles = []float64{0.5, 0.9, 0.95, 0.99}

// Histogram is a fixed-bucket distribution, used for firewall inspection
// latency and the bench command. Safe for concurrent use.
type Histogram struct {
	mu     sync.RWMutex
	bounds []float64 // ascending upper bounds, inclusive
	counts []uint64  // len(bounds)+1; the last slot is +Inf
	stats  runningStats
}

type runningStats struct {
	n       uint64
	sum     float64
	lo, hi  float64
	touched bool
}

func (s *runningStats) add(v float64) {
	s.n++
	s.sum += v
	if !s.touched || v < s.lo {
		s.lo = v
	}
	if !s.touched || v > s.hi {
		s.hi = v
	}
	s.touched = true
}

func (s runningStats) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

// NewHistogram returns a histogram over bounds. bounds is copied and sorted.
func NewHistogram(bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &Histogram{
		bounds: b,
		counts: make([]uint64, len(b)+1),
	}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.counts[sort.SearchFloat64s(h.bounds, v)]++
	h.stats.add(v)
	h.mu.Unlock()
}

// HistogramSummary is a point-in-time view of a Histogram.
type HistogramSummary struct {
	Count       uint64              `json:"count"`
	Sum         float64             `json:"sum"`
	Min         float64             `json:"min"`
	Max         float64             `json:"max"`
	Mean        float64             `json:"mean"`
	Buckets     []BucketCount       `json:"buckets"`
	Percentiles map[float64]float64 `json:"-"`
}

// BucketCount is one cumulative bucket. The last bucket of a summary has
// UpperBound +Inf.
type BucketCount struct {
	UpperBound float64 `json:"le"`
	Count      uint64  `json:"count"`
}

// Summary returns cumulative buckets, running stats and the p50, p90, p95
// and p99 estimates. Buckets are always present, with zero counts for an
// empty histogram.
func (h *Histogram) Summary() HistogramSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buckets := make([]BucketCount, 0, len(h.counts))
	var running uint64
	for i, c := range h.counts {
		running += c
		le := math.Inf(1)
		if i < len(h.bounds) {
			le = h.bounds[i]
		}
		buckets = append(buckets, BucketCount{UpperBound: le, Count: running})
	}

	quantiles := make(map[float64]float64, len(summaryQuantiles))
	if h.stats.n > 0 {
		for _, q := range summaryQuantiles {
			quantiles[q] = h.quantile(q)
		}
	}

	return HistogramSummary{
		Count:       h.stats.n,
		Sum:         h.stats.sum,
		Min:         h.stats.lo,
		Max:         h.stats.hi,
		Mean:        h.stats.mean(),
		Buckets:     buckets,
		Percentiles: quantiles,
	}
}

// Percentile estimates the q-th quantile (0 < q <= 1). It returns 0 for an
// empty histogram.
func (h *Histogram) Percentile(q float64) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stats.n == 0 {
		return 0
	}
	return h.quantile(q)
}

// quantile interpolates linearly inside the bucket holding rank q*n. The
// first bucket starts at min(0, lo) and the overflow bucket ends at the
// largest observation. The estimate is clamped to [lo, hi]. h.mu must be
// held.
func (h *Histogram) quantile(q float64) float64 {
	rank := q * float64(h.stats.n)
	var below uint64
	for i, c := range h.counts {
		if c == 0 || float64(below+c) < rank {
			below += c
			continue
		}
		lower := math.Min(0, h.stats.lo)
		if i > 0 {
			lower = h.bounds[i-1]
		}
		upper := h.stats.hi
		if i < len(h.bounds) {
			upper = h.bounds[i]
		}
		est := lower + (rank-float64(below))/float64(c)*(upper-lower)
		return math.Max(h.stats.lo, math.Min(h.stats.hi, est))
	}
	return h.stats.hi
}

// Reset drops every observation.
func (h *Histogram) Reset() {
	h.mu.Lock()
	clear(h.counts)
	h.stats = runningStats{}
	h.mu.Unlock()
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats.n
}

// Mean returns the mean observation, or 0 when empty.
func (h *Histogram) Mean() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats.mean()
}
