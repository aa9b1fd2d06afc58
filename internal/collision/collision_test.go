package collision

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/providers"
	"github.com/mwiater/stochprobe/internal/store"
)

func TestMain(m *testing.M) {
	logging.SetQuiet(true)
	_ = logging.Init("")
	os.Exit(m.Run())
}

func TestProbabilityBoundaryAndMonotonicity(t *testing.T) {
	for _, m := range []int{1, 30, 365, 10000} {
		assert.Zero(t, Probability(1, m), "N=1 must never collide (M=%d)", m)
		prev := 0.0
		for n := 1; n <= 200; n++ {
			p := Probability(float64(n), m)
			require.GreaterOrEqual(t, p, prev, "not monotone at N=%d M=%d", n, m)
			require.LessOrEqual(t, p, 1.0)
			prev = p
		}
	}
	assert.InDelta(t, 1-0.9672161004820059, Probability(2, 30), 1e-12)
}

func TestUniqueCountTreatsSentinelsAsDistinct(t *testing.T) {
	assert.Equal(t, 3, UniqueCount([]string{"4", "4", "INVALID", "ERROR"}))
	assert.Equal(t, 2, UniqueCount([]string{"INVALID", "INVALID"}))

	row := NewRow(3, 1, []string{"1", "INVALID", "INVALID"})
	assert.False(t, row.Collision)
	row = NewRow(3, 2, []string{"7", "7", "ERROR"})
	assert.True(t, row.Collision)
	assert.Equal(t, 2, row.UniqueCount)
}

func TestClassify(t *testing.T) {
	v, ok := Classify(" 17\n")
	assert.True(t, ok)
	assert.Equal(t, "17", v)
	for _, bad := range []string{"", "17.", "seventeen", "1 7", "-3"} {
		_, ok := Classify(bad)
		assert.False(t, ok, "%q should be invalid", bad)
	}
}

func TestAnalyzeRecomputesCollisionFromUniqueCount(t *testing.T) {
	rows := []Row{
		{N: 3, Trial: 1, UniqueCount: 3, Collision: true},
		{N: 3, Trial: 2, UniqueCount: 2},
		{N: 2, Trial: 1, UniqueCount: 1},
		{N: 2, Trial: 2, UniqueCount: 2},
		{N: 2, Trial: 3, UniqueCount: 1},
		{N: 2, Trial: 4, UniqueCount: 2},
	}
	res, err := Analyze(rows, 30)
	require.NoError(t, err)
	require.Len(t, res.Points, 2)

	assert.Equal(t, Point{N: 2, Trials: 4, Collisions: 2, Empirical: 0.5, Theoretical: Probability(2, 30)}, res.Points[0])
	assert.Equal(t, 3, res.Points[1].N)
	assert.InDelta(t, 0.5, res.Points[1].Empirical, 1e-12)

	require.Len(t, res.Curve, 100)
	assert.Equal(t, 2.0, res.Curve[0].N)
	assert.Equal(t, 3.0, res.Curve[99].N)
}

func TestAnalyzeWithoutRows(t *testing.T) {
	_, err := Analyze(nil, 30)
	assert.ErrorIs(t, err, ErrNoData)
}

type countingInvoker struct{ n int }

func (c *countingInvoker) Invoke(ctx context.Context, req providers.InvokeRequest) (string, error) {
	c.n++
	if c.n%5 == 0 {
		return "not a number", nil
	}
	return strconv.Itoa(c.n % 4), nil
}

// TestPlanRunAndAnalyze drives a small plan through the harness and store and
// checks the persisted rows round-trip into the analysis and derived files.
func TestPlanRunAndAnalyze(t *testing.T) {
	cfg := appconfig.Default().Experiments.Collision
	cfg.TrialSizes = []int{2, 4}
	cfg.Replicates = 3
	plan := Plan(cfg)
	require.Len(t, plan, 6)
	assert.Equal(t, "2:1", plan[0].Key)
	assert.Equal(t, 4, plan[5].Calls)

	dir := t.TempDir()
	path := filepath.Join(dir, "collision.csv")
	table, err := store.Open(path, Codec)
	require.NoError(t, err)

	inv := &countingInvoker{}
	report, err := harness.New(inv, table, harness.WithClassifier(Classify)).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 18, inv.n)
	assert.Equal(t, 3, report.Invalid)

	reloaded, err := store.Open(path, Codec)
	require.NoError(t, err)
	rows := reloaded.Rows()
	require.Len(t, rows, 6)
	for _, r := range rows {
		assert.Len(t, r.Responses, r.N)
		assert.Equal(t, UniqueCount(r.Responses), r.UniqueCount)
	}

	res, err := Analyze(rows, cfg.SampleSpace)
	require.NoError(t, err)
	files, err := WriteOutputs(path, res)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "collision_summary.csv"), filepath.Join(dir, "collision_curve.csv")}, files)
	for _, f := range files {
		assert.FileExists(t, f)
	}
}
