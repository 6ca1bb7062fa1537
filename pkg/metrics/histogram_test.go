package metrics

import (
	"math"
	"sync"
	"testing"
)

func TestHistogramCountAndMean(t *testing.T) {
	h := NewHistogram(LatencyBuckets)

	samples := []float64{3, 8, 40, 300, 5000}
	var sum float64
	for _, v := range samples {
		h.Observe(v)
		sum += v
	}

	if h.Count() != uint64(len(samples)) {
		t.Errorf("Count() = %d, want %d", h.Count(), len(samples))
	}
	if want := sum / float64(len(samples)); h.Mean() != want {
		t.Errorf("Mean() = %.2f, want %.2f", h.Mean(), want)
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})

	h.Observe(5)
	h.Observe(10) // bounds are inclusive
	h.Observe(60)
	h.Observe(150)

	s := h.Summary()
	if s.Count != 4 || s.Sum != 225 || s.Min != 5 || s.Max != 150 {
		t.Fatalf("summary stats = %+v", s)
	}

	want := []BucketCount{
		{UpperBound: 10, Count: 2},
		{UpperBound: 50, Count: 2},
		{UpperBound: 100, Count: 3},
		{UpperBound: math.Inf(1), Count: 4},
	}
	if len(s.Buckets) != len(want) {
		t.Fatalf("got %d buckets, want %d", len(s.Buckets), len(want))
	}
	for i, b := range want {
		if s.Buckets[i] != b {
			t.Errorf("bucket %d = %+v, want %+v", i, s.Buckets[i], b)
		}
	}
}

func TestHistogramEmptySummary(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})

	s := h.Summary()
	if s.Count != 0 || s.Mean != 0 || s.Min != 0 || s.Max != 0 {
		t.Errorf("empty summary stats = %+v", s)
	}
	if len(s.Buckets) != 4 {
		t.Fatalf("expected zero-count buckets for export, got %d", len(s.Buckets))
	}
	for _, b := range s.Buckets {
		if b.Count != 0 {
			t.Errorf("bucket %g count = %d", b.UpperBound, b.Count)
		}
	}
	if len(s.Percentiles) != 0 {
		t.Errorf("expected no percentiles, got %v", s.Percentiles)
	}
	if h.Percentile(0.99) != 0 {
		t.Errorf("Percentile on empty histogram = %v", h.Percentile(0.99))
	}
}

func TestHistogramPercentile(t *testing.T) {
	h := NewHistogram([]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100})
	for i := 1; i <= 100; i++ {
		h.Observe(float64(i))
	}

	tests := []struct {
		q    float64
		want float64
	}{
		{0.5, 50},
		{0.9, 90},
		{0.99, 99},
		{1, 100},
	}
	for _, tt := range tests {
		if got := h.Percentile(tt.q); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}

	s := h.Summary()
	for _, q := range []float64{0.5, 0.9, 0.95, 0.99} {
		if _, ok := s.Percentiles[q]; !ok {
			t.Errorf("summary missing p%v", q*100)
		}
	}
}

func TestHistogramPercentileClamped(t *testing.T) {
	h := NewHistogram([]float64{10})
	h.Observe(7)

	if got := h.Percentile(0.5); got != 7 {
		t.Errorf("single observation p50 = %v, want 7", got)
	}

	h.Observe(1000)
	got := h.Percentile(0.99)
	if got <= 10 || got > 1000 {
		t.Errorf("overflow p99 = %v, want within (10, 1000]", got)
	}
}

func TestHistogramReset(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})
	h.Observe(25)
	h.Observe(75)

	h.Reset()

	if h.Count() != 0 || h.Mean() != 0 {
		t.Errorf("after reset count = %d, mean = %v", h.Count(), h.Mean())
	}

	h.Observe(40)
	s := h.Summary()
	if s.Min != 40 || s.Max != 40 {
		t.Errorf("stale min/max after reset: %v/%v", s.Min, s.Max)
	}
}

func TestHistogramSortsBounds(t *testing.T) {
	h := NewHistogram([]float64{100, 10, 50})
	h.Observe(5)

	s := h.Summary()
	for i, want := range []float64{10, 50, 100} {
		if s.Buckets[i].UpperBound != want {
			t.Errorf("bucket %d bound = %v, want %v", i, s.Buckets[i].UpperBound, want)
		}
	}
	if s.Buckets[0].Count != 1 {
		t.Errorf("5 should land in the first bucket")
	}
}

func TestHistogramConcurrentObserve(t *testing.T) {
	h := NewHistogram(LatencyBuckets)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Observe(float64(j))
				_ = h.Percentile(0.5)
			}
		}()
	}
	wg.Wait()

	if h.Count() != 1000 {
		t.Errorf("Count() = %d, want 1000", h.Count())
	}
}
