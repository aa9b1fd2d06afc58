package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningStatPopulationMoments(t *testing.T) {
	rs := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	assert.EqualValues(t, 8, rs.Count)
	assert.InDelta(t, 5.0, rs.Mean, 1e-12)
	assert.InDelta(t, 4.0, rs.Variance(), 1e-12)
	assert.InDelta(t, 2.0, rs.StdDev(), 1e-12)
	assert.Equal(t, 2.0, rs.Min)
	assert.Equal(t, 9.0, rs.Max)
}

func TestRunningStatEmpty(t *testing.T) {
	var rs RunningStat
	assert.Zero(t, rs.Variance())
	assert.Zero(t, rs.StdDev())
}

func TestCumSumIsMonotoneAndExact(t *testing.T) {
	values := make([]float64, 10000)
	for i := range values {
		values[i] = 0.1
	}
	sums := CumSum(values)
	require.Len(t, sums, len(values))
	for i := 1; i < len(sums); i++ {
		require.GreaterOrEqual(t, sums[i], sums[i-1])
	}
	assert.InDelta(t, 1000.0, sums[len(sums)-1], 1e-9)
}

func TestPoissonPMFSumsToOne(t *testing.T) {
	total := 0.0
	for k := 0; k < 200; k++ {
		total += PoissonPMF(k, 12.5)
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.InDelta(t, math.Exp(-3), PoissonPMF(0, 3), 1e-12)
	assert.Equal(t, 1.0, PoissonPMF(0, 0))
	assert.Zero(t, PoissonPMF(2, 0))
	assert.False(t, math.IsInf(PoissonPMF(500, 480), 0))
}

func TestExponentialPDF(t *testing.T) {
	assert.InDelta(t, 2.0, ExponentialPDF(2, 0), 1e-12)
	assert.InDelta(t, 2*math.Exp(-2), ExponentialPDF(2, 1), 1e-12)
	assert.Zero(t, ExponentialPDF(2, -1))
}

func TestLinspace(t *testing.T) {
	pts := Linspace(1, 30, 100)
	require.Len(t, pts, 100)
	assert.Equal(t, 1.0, pts[0])
	assert.Equal(t, 30.0, pts[99])
	assert.Nil(t, Linspace(0, 1, 0))
}
