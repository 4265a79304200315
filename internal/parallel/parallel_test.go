package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}

	var counter int64
	n := 1000
	seen := make([]int32, n)

	For(n, func(i int) {
		atomic.AddInt64(&counter, 1)
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
	for i, c := range seen {
		assert.Equal(t, int32(1), c, "index %d", i)
	}
}

func TestForRangeChunks(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 10}

	var mu sync.Mutex
	var chunks [][2]int
	ForRange(100, func(lo, hi int) {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, [2]int{lo, hi})
	}, cfg)

	covered := 0
	for _, c := range chunks {
		assert.Less(t, c[0], c[1])
		covered += c[1] - c[0]
	}
	assert.Equal(t, 100, covered)
	assert.Len(t, chunks, 3)
}

func TestForRange_Sequential(t *testing.T) {
	calls := 0
	ForRange(100, func(lo, hi int) {
		calls++
		assert.Equal(t, 0, lo)
		assert.Equal(t, 100, hi)
	}, Sequential())
	assert.Equal(t, 1, calls)
}

func TestForRange_SmallInput(t *testing.T) {
	// Small work units stay on one goroutine.
	cfg := DefaultConfig()
	calls := 0
	ForRange(cfg.MinChunkSize, func(lo, hi int) { calls++ }, cfg)
	assert.Equal(t, 1, calls)

	ForRange(0, func(lo, hi int) { t.Fatal("called for empty range") }, cfg)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 1 << 16

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, Sequential())
		}
	})
}
