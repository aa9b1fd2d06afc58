package proportion

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/store"
)

// Z95 is the two-sided 95% normal quantile.
const Z95 = 1.96

const topResponses = 5

// ErrNoData is returned when there are no runs to analyse.
var ErrNoData = errors.New("no proportion runs recorded")

// Estimate is the cumulative proportion after N runs.
type Estimate struct {
	N      int     `yaml:"n"`
	Events int     `yaml:"events"`
	PHat   float64 `yaml:"p_hat"`
	Lower  float64 `yaml:"ci_lower"`
	Upper  float64 `yaml:"ci_upper"`
}

// ResponseCount is one entry of the response frequency table.
type ResponseCount struct {
	Text    string `yaml:"text"`
	Count   int    `yaml:"count"`
	Correct bool   `yaml:"correct"`
}

// Result is the outcome of Analyze.
type Result struct {
	Final    Estimate        `yaml:"final"`
	Errors   int             `yaml:"errors"`
	Curve    []Estimate      `yaml:"-"`
	Top      []ResponseCount `yaml:"top_responses"`
	Expected string          `yaml:"expected"`
}

// Interval returns p̂ ± z·sqrt(p̂(1-p̂)/n) clipped to [0, 1]. For n <= 0 the
// interval is the degenerate [0, 0].
func Interval(n int, pHat, z float64) (lower, upper float64) {
	if n <= 0 {
		return 0, 0
	}
	margin := z * math.Sqrt(pHat*(1-pHat)/float64(n))
	return math.Max(0, pHat-margin), math.Min(1, pHat+margin)
}

// NewEstimate computes the proportion and 95% interval for events out of n.
func NewEstimate(n, events int) Estimate {
	e := Estimate{N: n, Events: events}
	if n > 0 {
		e.PHat = float64(events) / float64(n)
	}
	e.Lower, e.Upper = Interval(n, e.PHat, Z95)
	return e
}

// Curve returns one estimate per prefix length 1..len(events).
func Curve(events []int) []Estimate {
	out := make([]Estimate, 0, len(events))
	cum := 0
	for i, ev := range events {
		cum += ev
		out = append(out, NewEstimate(i+1, cum))
	}
	return out
}

// Analyze orders rows by run id and computes the convergence curve, the final
// estimate and the most frequent responses.
func Analyze(rows []Row, expected string) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrNoData
	}
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RunID < sorted[j].RunID })

	events := make([]int, len(sorted))
	counts := make(map[string]int)
	var order []string
	res := Result{Expected: expected}
	for i, r := range sorted {
		events[i] = r.Event
		if r.ResponseText == harness.ErrorSentinel {
			res.Errors++
		}
		if _, seen := counts[r.ResponseText]; !seen {
			order = append(order, r.ResponseText)
		}
		counts[r.ResponseText]++
	}

	res.Curve = Curve(events)
	res.Final = res.Curve[len(res.Curve)-1]

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > topResponses {
		order = order[:topResponses]
	}
	for _, text := range order {
		res.Top = append(res.Top, ResponseCount{Text: text, Count: counts[text], Correct: IsCorrect(text, expected)})
	}
	return res, nil
}

// WriteOutputs persists the convergence curve and the response table next to input.
func WriteOutputs(input string, res Result) ([]string, error) {
	curvePath := store.DerivedPath(input, "convergence")
	records := make([][]string, 0, len(res.Curve))
	for _, e := range res.Curve {
		records = append(records, []string{
			strconv.Itoa(e.N),
			strconv.Itoa(e.Events),
			formatFloat(e.PHat),
			formatFloat(e.Lower),
			formatFloat(e.Upper),
		})
	}
	if err := store.WriteCSV(curvePath, []string{"n", "cumulative_events", "p_hat", "ci_lower", "ci_upper"}, records); err != nil {
		return nil, err
	}

	topPath := store.DerivedPath(input, "responses")
	records = make([][]string, 0, len(res.Top))
	for _, rc := range res.Top {
		records = append(records, []string{rc.Text, strconv.Itoa(rc.Count), strconv.FormatBool(rc.Correct)})
	}
	if err := store.WriteCSV(topPath, []string{"response_text", "count", "correct"}, records); err != nil {
		return nil, err
	}
	return []string{curvePath, topPath}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
