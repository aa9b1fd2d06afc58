package proportion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetQuiet(true)
	_ = logging.Init("")
	os.Exit(m.Run())
}

func TestIntervalBrackets(t *testing.T) {
	for n := 1; n <= 60; n++ {
		for events := 0; events <= n; events++ {
			e := NewEstimate(n, events)
			require.GreaterOrEqual(t, e.Lower, 0.0)
			require.LessOrEqual(t, e.Upper, 1.0)
			require.LessOrEqual(t, e.Lower, e.PHat, "n=%d events=%d", n, events)
			require.GreaterOrEqual(t, e.Upper, e.PHat, "n=%d events=%d", n, events)
		}
	}
}

func TestIntervalDegenerateAtZero(t *testing.T) {
	lower, upper := Interval(0, 0.3, Z95)
	assert.Zero(t, lower)
	assert.Zero(t, upper)

	e := NewEstimate(0, 0)
	assert.Equal(t, Estimate{}, e)
}

func TestIntervalKnownValue(t *testing.T) {
	lower, upper := Interval(100, 0.1, Z95)
	assert.InDelta(t, 0.0412, lower, 1e-4)
	assert.InDelta(t, 0.1588, upper, 1e-4)
}

func TestCurveIsCumulative(t *testing.T) {
	curve := Curve([]int{1, 0, 0, 1})
	require.Len(t, curve, 4)
	assert.Equal(t, 1.0, curve[0].PHat)
	assert.Equal(t, 0.5, curve[1].PHat)
	assert.Equal(t, 2, curve[3].Events)
	assert.Equal(t, 0.5, curve[3].PHat)
}

func TestIsCorrect(t *testing.T) {
	assert.True(t, IsCorrect("1713", "1713"))
	assert.True(t, IsCorrect(" 1713.\n", "1713"))
	assert.True(t, IsCorrect("<think>hmm</think>1713", "1713"))
	assert.False(t, IsCorrect("1713!", "1713"))
	assert.False(t, IsCorrect("El año fue 1713.", "1713"))
	assert.False(t, IsCorrect("1712", "1713"))
}

func TestNewRowScoresOutcomes(t *testing.T) {
	ok := NewRow(1, harness.Outcome{Value: " 1713 ", Status: harness.StatusOK}, "1713")
	assert.Equal(t, Row{RunID: 1, ResponseText: "1713", Event: 0}, ok)

	wrong := NewRow(2, harness.Outcome{Value: "1690", Status: harness.StatusOK}, "1713")
	assert.Equal(t, 1, wrong.Event)

	failed := NewRow(3, harness.Outcome{Value: harness.ErrorSentinel, Status: harness.StatusError}, "1713")
	assert.Equal(t, Row{RunID: 3, ResponseText: "ERROR", Event: 0}, failed)
}

func TestAnalyzeSortsByRunIDAndRanksResponses(t *testing.T) {
	rows := []Row{
		{RunID: 3, ResponseText: "1713", Event: 0},
		{RunID: 1, ResponseText: "1690", Event: 1},
		{RunID: 2, ResponseText: "1713.", Event: 0},
		{RunID: 4, ResponseText: "1713", Event: 0},
		{RunID: 5, ResponseText: "ERROR", Event: 0},
		{RunID: 6, ResponseText: "a", Event: 1},
		{RunID: 7, ResponseText: "b", Event: 1},
		{RunID: 8, ResponseText: "c", Event: 1},
	}
	res, err := Analyze(rows, "1713")
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Curve[0].PHat, "run 1 is the first prefix")
	assert.Equal(t, NewEstimate(8, 4), res.Final)
	assert.Equal(t, 1, res.Errors)

	require.Len(t, res.Top, 5)
	assert.Equal(t, ResponseCount{Text: "1713", Count: 2, Correct: true}, res.Top[0])
	assert.Equal(t, "1690", res.Top[1].Text)
	assert.True(t, res.Top[2].Correct)
}

func TestAnalyzeWithoutRows(t *testing.T) {
	_, err := Analyze(nil, "1713")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestPlanAndOutputs(t *testing.T) {
	cfg := appconfig.Default().Experiments.Proportion
	cfg.Runs = 3
	plan := Plan(cfg)
	require.Len(t, plan, 3)
	assert.Equal(t, "3", plan[2].Key)
	require.Len(t, plan[0].Request.Messages, 2)

	row := plan[1].Build([]harness.Outcome{{Value: "1713", Status: harness.StatusOK}})
	assert.Equal(t, 2, row.RunID)

	res, err := Analyze([]Row{row}, cfg.Expected)
	require.NoError(t, err)
	input := filepath.Join(t.TempDir(), "proportion.csv")
	files, err := WriteOutputs(input, res)
	require.NoError(t, err)
	for _, f := range files {
		assert.FileExists(t, f)
	}
}
