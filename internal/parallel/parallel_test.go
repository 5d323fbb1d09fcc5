package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_SmallChunk(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForEachBatch(t *testing.T) {
	tests := []struct {
		batch, workers int
		wantRanges     int
	}{
		{batch: 8, workers: 4, wantRanges: 4},
		{batch: 7, workers: 3, wantRanges: 3},
		{batch: 2, workers: 8, wantRanges: 2},
		{batch: 5, workers: 1, wantRanges: 1},
		{batch: 5, workers: 0, wantRanges: 1},
	}

	for _, tt := range tests {
		seen := make([]int32, tt.batch)
		workers := make([]int32, max(tt.workers, 1))
		var ranges int32

		ForEachBatch(tt.batch, tt.workers, func(w, beg, end int) {
			atomic.AddInt32(&ranges, 1)
			atomic.AddInt32(&workers[w], 1)
			for i := beg; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})

		if int(ranges) != tt.wantRanges {
			t.Errorf("batch %d workers %d: expected %d ranges, got %d", tt.batch, tt.workers, tt.wantRanges, ranges)
		}
		for w, n := range workers {
			if n > 1 {
				t.Errorf("batch %d: worker %d called %d times", tt.batch, w, n)
			}
		}
		for i, n := range seen {
			if n != 1 {
				t.Errorf("batch %d: item %d visited %d times", tt.batch, i, n)
			}
		}
	}
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(j int) {
				atomic.AddInt64(&sum, int64(j))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		seq := Config{Enabled: false}
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(j int) {
				atomic.AddInt64(&sum, int64(j))
			}, seq)
		}
	})
}
