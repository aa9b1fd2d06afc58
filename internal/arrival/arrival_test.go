package arrival

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/store"
)

func TestMain(m *testing.M) {
	logging.SetQuiet(true)
	_ = logging.Init("")
	os.Exit(m.Run())
}

func okRows(latencies ...float64) []Row {
	rows := make([]Row, len(latencies))
	for i, l := range latencies {
		rows[i] = Row{RequestID: i + 1, LatencySeconds: l, Status: StatusOK}
	}
	return rows
}

// TestTruncationExcludesPartialBucket uses virtual completion times
// 0.5, 1.2, 2.9 and 3.1 with one-second buckets.
func TestTruncationExcludesPartialBucket(t *testing.T) {
	res, err := Analyze(okRows(0.5, 0.7, 1.7, 0.2), 1.0)
	require.NoError(t, err)

	assert.InDelta(t, 3.1, res.TRawMax, 1e-12)
	assert.Equal(t, 3.0, res.TMaxUsable)
	assert.Equal(t, 3, res.UsableEvents)
	require.Len(t, res.Timeline, 4)
	assert.False(t, res.Timeline[3].Usable, "event at 3.1 must be excluded")

	require.Len(t, res.Buckets, 3)
	for _, b := range res.Buckets {
		assert.Equal(t, 1, b.Count, "bucket %d", b.Index)
	}
	assert.Equal(t, 2.0, res.Buckets[2].Start)
	assert.Equal(t, 3.0, res.Buckets[2].End)

	assert.InDelta(t, 1.0, res.Lambda2, 1e-12)
	assert.InDelta(t, 1.0, res.MeanCount, 1e-12)
	assert.Zero(t, res.VarCount)
	assert.Zero(t, res.Dispersion)
	assert.InDelta(t, 1/0.775, res.Lambda1, 1e-12)
	assert.InDelta(t, abs(res.Lambda1-1)/res.Lambda1, res.RelativeDifference, 1e-12)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestTimelineIsCumulativeAndMonotone(t *testing.T) {
	latencies := []float64{0.31, 0.12, 0.95, 0.44, 0.07, 1.3, 0.6, 0.28, 0.5, 0.83}
	res, err := Analyze(okRows(latencies...), 0.5)
	require.NoError(t, err)

	sum := 0.0
	for i, ev := range res.Timeline {
		sum += latencies[i]
		if i > 0 {
			require.GreaterOrEqual(t, ev.Virtual, res.Timeline[i-1].Virtual)
		}
	}
	assert.InDelta(t, sum, res.Timeline[len(res.Timeline)-1].Virtual, 1e-12)

	usableSum := 0.0
	last := 0.0
	for _, ev := range res.Timeline {
		if ev.Usable {
			usableSum += ev.Latency
			last = ev.Virtual
		}
	}
	assert.InDelta(t, usableSum, last, 1e-12)

	counted := 0
	for _, b := range res.Buckets {
		counted += b.Count
	}
	assert.Equal(t, res.UsableEvents, counted)
}

func TestAnalyzeFiltersFailuresAndOrdersByRequestID(t *testing.T) {
	rows := []Row{
		{RequestID: 3, LatencySeconds: 2.0, Status: StatusOK},
		{RequestID: 1, LatencySeconds: 1.0, Status: StatusOK},
		{RequestID: 2, LatencySeconds: 30, Status: StatusError, ErrorType: "timeout"},
	}
	res, err := Analyze(rows, 1.0)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Requests)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Timeline[0].RequestID)
	assert.Equal(t, 3.0, res.Timeline[1].Virtual)
	assert.InDelta(t, 1.5, res.MeanLatency, 1e-12)
	assert.InDelta(t, 0.5, res.StdLatency, 1e-12)
}

func TestAnalyzePreconditions(t *testing.T) {
	_, err := Analyze(nil, 1)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = Analyze([]Row{{RequestID: 1, Status: StatusError}}, 1)
	assert.ErrorIs(t, err, ErrNoSuccessfulRequests)

	res, err := Analyze(okRows(0.2, 0.3), 1)
	assert.ErrorIs(t, err, ErrNoUsableTime)
	assert.InDelta(t, 4.0, res.Lambda1, 1e-12, "exponential fit is still reported")
	assert.Empty(t, res.Buckets)

	_, err = Analyze(okRows(1), 0)
	assert.Error(t, err)
}

func TestCountFrequenciesMatchBuckets(t *testing.T) {
	res, err := Analyze(okRows(0.25, 0.25, 0.25, 0.25, 1.0, 0.5, 0.5, 1.5), 1.0)
	require.NoError(t, err)

	// Virtual times 0.25 0.5 0.75 1.0 2.0 2.5 3.0 4.5; buckets over [0,4).
	require.Len(t, res.Buckets, 4)
	assert.Equal(t, []int{3, 1, 2, 1}, []int{res.Buckets[0].Count, res.Buckets[1].Count, res.Buckets[2].Count, res.Buckets[3].Count})

	require.Len(t, res.Frequencies, 5)
	total := 0.0
	for _, f := range res.Frequencies {
		total += f.Observed
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	assert.InDelta(t, 0.5, res.Frequencies[1].Observed, 1e-12)
	assert.InDelta(t, 1.75, res.Lambda2, 1e-12)
}

func TestRunRowsAndOutputs(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ok := NewRow(1, harness.Outcome{Start: start, End: start.Add(1500 * time.Millisecond), Status: harness.StatusOK})
	assert.Equal(t, StatusOK, ok.Status)
	assert.InDelta(t, 1.5, ok.LatencySeconds, 1e-9)
	assert.InDelta(t, ok.TEnd-ok.TStart, ok.LatencySeconds, 1e-6)

	failed := NewRow(2, harness.Outcome{Start: start, End: start.Add(time.Second), Status: harness.StatusError, ErrorType: "APIError"})
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, "APIError", failed.ErrorType)

	cfg := appconfig.Default().Experiments.Arrival
	cfg.Requests = 4
	plan := Plan(cfg)
	require.Len(t, plan, 4)
	assert.Len(t, plan[0].Request.Messages, 1)

	dir := t.TempDir()
	input := filepath.Join(dir, "latency.csv")
	table, err := store.Open(input, Codec)
	require.NoError(t, err)
	rows := []Row{
		{RequestID: 1, LatencySeconds: 0.6, Status: StatusOK},
		failed,
		{RequestID: 3, LatencySeconds: 0.6, Status: StatusOK},
		{RequestID: 4, LatencySeconds: 0.6, Status: StatusOK},
	}
	for _, r := range rows {
		require.NoError(t, table.Append(r))
	}
	reopened, err := store.Open(input, Codec)
	require.NoError(t, err)
	require.Equal(t, 4, reopened.Len())

	res, err := Analyze(reopened.Rows(), 1.0)
	require.NoError(t, err)
	files, err := WriteOutputs(input, res)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "latency_virtual_timeline.csv"),
		filepath.Join(dir, "latency_latency.csv"),
		filepath.Join(dir, "latency_buckets.csv"),
		filepath.Join(dir, "latency_counts.csv"),
	}, files)
}
