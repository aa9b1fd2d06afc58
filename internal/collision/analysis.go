package collision

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/mwiater/stochprobe/internal/stats"
	"github.com/mwiater/stochprobe/internal/store"
)

// ErrNoData is returned when there are no trials to analyse.
var ErrNoData = errors.New("no collision trials recorded")

const curvePoints = 100

// Point compares empirical and theoretical probability for one trial size.
type Point struct {
	N           int     `yaml:"n"`
	Trials      int     `yaml:"trials"`
	Collisions  int     `yaml:"collisions"`
	Empirical   float64 `yaml:"empirical"`
	Theoretical float64 `yaml:"theoretical"`
}

// CurvePoint is one sample of the continuous theoretical curve.
type CurvePoint struct {
	N           float64
	Theoretical float64
}

// Result is the outcome of Analyze.
type Result struct {
	SampleSpace int          `yaml:"sample_space"`
	Trials      int          `yaml:"trials"`
	Points      []Point      `yaml:"points"`
	Curve       []CurvePoint `yaml:"-"`
}

// Probability is the birthday approximation 1 - exp(-N(N-1)/(2M)). It is 0
// for N <= 1.
func Probability(n float64, m int) float64 {
	if n <= 1 || m <= 0 {
		return 0
	}
	return -math.Expm1(-n * (n - 1) / (2 * float64(m)))
}

// Analyze groups trials by N. A trial collides when fewer than N distinct
// values were recorded; the stored collision flag is not trusted.
func Analyze(rows []Row, m int) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrNoData
	}

	byN := make(map[int]*Point)
	for _, r := range rows {
		p, ok := byN[r.N]
		if !ok {
			p = &Point{N: r.N}
			byN[r.N] = p
		}
		p.Trials++
		if r.UniqueCount < r.N {
			p.Collisions++
		}
	}

	res := Result{SampleSpace: m, Trials: len(rows)}
	for _, p := range byN {
		p.Empirical = float64(p.Collisions) / float64(p.Trials)
		p.Theoretical = Probability(float64(p.N), m)
		res.Points = append(res.Points, *p)
	}
	sort.Slice(res.Points, func(i, j int) bool { return res.Points[i].N < res.Points[j].N })

	lo := float64(res.Points[0].N)
	hi := float64(res.Points[len(res.Points)-1].N)
	for _, n := range stats.Linspace(lo, hi, curvePoints) {
		res.Curve = append(res.Curve, CurvePoint{N: n, Theoretical: Probability(n, m)})
	}
	return res, nil
}

// WriteOutputs persists the per-N comparison and the dense curve next to input.
func WriteOutputs(input string, res Result) ([]string, error) {
	summaryPath := store.DerivedPath(input, "summary")
	records := make([][]string, 0, len(res.Points))
	for _, p := range res.Points {
		records = append(records, []string{
			strconv.Itoa(p.N),
			strconv.Itoa(p.Trials),
			strconv.Itoa(p.Collisions),
			formatFloat(p.Empirical),
			formatFloat(p.Theoretical),
		})
	}
	if err := store.WriteCSV(summaryPath, []string{"N", "trials", "collisions", "prob_empirical", "prob_theoretical"}, records); err != nil {
		return nil, err
	}

	curvePath := store.DerivedPath(input, "curve")
	records = records[:0]
	for _, c := range res.Curve {
		records = append(records, []string{formatFloat(c.N), formatFloat(c.Theoretical)})
	}
	if err := store.WriteCSV(curvePath, []string{"N", "prob_theoretical"}, records); err != nil {
		return nil, err
	}
	return []string{summaryPath, curvePath}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
