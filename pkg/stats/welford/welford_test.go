package welford

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestMatchesBatch(t *testing.T) {
	tests := []struct {
		name string
		gen  func(rng *rand.Rand) float64
		n    int
	}{
		{name: "uniform", gen: func(r *rand.Rand) float64 { return r.Float64() * 1000 }, n: 10000},
		{name: "offset", gen: func(r *rand.Rand) float64 { return 1e4 + r.NormFloat64()*10 }, n: 5000},
		{name: "heavy tail", gen: func(r *rand.Rand) float64 { return r.ExpFloat64() * 250 }, n: 2000},
		{name: "small", gen: func(r *rand.Rand) float64 { return r.Float64() }, n: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			data := make([]float64, tt.n)
			var s Stats
			for i := range data {
				data[i] = tt.gen(rng)
				s.Update(data[i])
			}

			assertRelClose(t, stat.Mean(data, nil), s.Mean())
			assertRelClose(t, stat.Variance(data, nil), s.Variance())
			assertRelClose(t, stat.PopVariance(data, nil), s.PopulationVariance())
			assert.Equal(t, tt.n, s.Count())

			var sum float64
			lo, hi := data[0], data[0]
			for _, v := range data {
				sum += v
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			assertRelClose(t, sum, s.Sum())
			assert.Equal(t, lo, s.Min())
			assert.Equal(t, hi, s.Max())
		})
	}
}

func TestSmallCounts(t *testing.T) {
	var s Stats
	assert.Zero(t, s.Variance())
	assert.Zero(t, s.PopulationVariance())
	assert.Zero(t, s.ZScore(10))

	s.Update(5)
	assert.Equal(t, 5.0, s.Mean())
	assert.Zero(t, s.Variance())
	assert.Equal(t, 5.0, s.Min())
	assert.Equal(t, 5.0, s.Max())
}

func TestZScoreDegenerate(t *testing.T) {
	var s Stats
	for i := 0; i < 10; i++ {
		s.Update(42)
	}
	assert.Zero(t, s.ZScore(1e9))
	assert.False(t, s.IsAnomaly(1e9, 2))
}

func TestIsAnomaly(t *testing.T) {
	var s Stats
	s.Update(1200)
	s.Update(500)
	assert.False(t, s.IsAnomaly(50000, 2), "needs MinSamples history")

	s.Update(150)
	s.Update(80)
	assert.InDelta(t, 482.5, s.Mean(), 1e-9)
	assert.InDelta(t, 512.4, s.StdDev(), 0.05)
	assert.Greater(t, s.ZScore(50000), 90.0)

	assert.True(t, s.IsAnomaly(50000, 2))
	assert.True(t, s.IsAnomaly(-50000, 2))
	assert.False(t, s.IsAnomaly(600, 2))
	assert.Equal(t, 2, s.Anomalies())

	assert.False(t, s.IsAnomalyWith(50000, 2, 10))
	assert.Equal(t, 2, s.Anomalies())
}

func TestRemove(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]float64, 200)
	var s Stats
	for i := range data {
		data[i] = rng.Float64() * 100
		s.Update(data[i])
	}
	for _, v := range data[150:] {
		s.Remove(v)
	}

	kept := data[:150]
	assert.Equal(t, 150, s.Count())
	assert.InEpsilon(t, stat.Mean(kept, nil), s.Mean(), 1e-9)
	assert.InEpsilon(t, stat.Variance(kept, nil), s.Variance(), 1e-6)
}

func TestRemoveEdges(t *testing.T) {
	var s Stats
	s.Remove(3)
	assert.Zero(t, s.Count())

	s.Update(3)
	s.Remove(3)
	assert.Zero(t, s.Count())
	assert.Zero(t, s.Mean())

	s.Update(1)
	s.Update(1)
	s.Remove(5)
	assert.GreaterOrEqual(t, s.Variance(), 0.0)
}

func TestSnapshotAndReset(t *testing.T) {
	var s Stats
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Update(v)
	}
	sum := s.Snapshot()
	require.Equal(t, 8, sum.Count)
	assert.Equal(t, 5.0, sum.Mean)
	assert.Equal(t, 2.0, sum.Min)
	assert.Equal(t, 9.0, sum.Max)
	assert.Equal(t, 40.0, sum.Sum)
	assert.InDelta(t, math.Sqrt(32.0/7), sum.StdDev, 1e-12)

	s.Reset()
	assert.Equal(t, Summary{}, s.Snapshot())
	assert.Equal(t, 8, sum.Count, "snapshot is a copy")
}

func BenchmarkUpdate(b *testing.B) {
	var s Stats
	for i := 0; i < b.N; i++ {
		s.Update(float64(i % 1000))
	}
}

func assertRelClose(t *testing.T, want, got float64) {
	t.Helper()
	if want == 0 {
		assert.InDelta(t, want, got, 1e-12)
		return
	}
	assert.LessOrEqual(t, math.Abs(want-got)/math.Abs(want), 1e-9, "want %v got %v", want, got)
}
