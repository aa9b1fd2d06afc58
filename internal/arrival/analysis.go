package arrival

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/mwiater/stochprobe/internal/stats"
	"github.com/mwiater/stochprobe/internal/store"
)

var (
	// ErrNoData is returned when the latency table is empty.
	ErrNoData = errors.New("no latency rows recorded")
	// ErrNoSuccessfulRequests is returned when every recorded request failed.
	ErrNoSuccessfulRequests = errors.New("no successful requests to analyse")
	// ErrNoUsableTime is returned when the virtual timeline does not cover
	// one full bucket.
	ErrNoUsableTime = errors.New("virtual timeline shorter than one bucket")
)

const latencyCurvePoints = 100

// Event is one successful request placed on the virtual timeline.
type Event struct {
	RequestID int
	Latency   float64
	// Virtual is the cumulative latency up to and including this request.
	Virtual float64
	Usable  bool
}

// Bucket is one window [Start, End) of the usable virtual time.
type Bucket struct {
	Index int
	Start float64
	End   float64
	Count int
}

// CountFrequency compares how often a bucket held K events with the Poisson PMF.
type CountFrequency struct {
	K        int
	Observed float64
	Poisson  float64
}

// DensityPoint is one sample of the fitted exponential density.
type DensityPoint struct {
	X       float64
	Density float64
}

// Result is the outcome of Analyze.
type Result struct {
	BucketWidth float64 `yaml:"bucket_width"`
	Requests    int     `yaml:"requests"`
	Successful  int     `yaml:"successful"`

	MeanLatency float64 `yaml:"mean_latency"`
	StdLatency  float64 `yaml:"std_latency"`
	// Lambda1 is the exponential MLE 1/mean(latency).
	Lambda1 float64 `yaml:"lambda_exponential"`

	TRawMax      float64 `yaml:"t_raw_max"`
	TMaxUsable   float64 `yaml:"t_max_usable"`
	UsableEvents int     `yaml:"usable_events"`

	MeanCount  float64 `yaml:"mean_count"`
	VarCount   float64 `yaml:"var_count"`
	Dispersion float64 `yaml:"dispersion_index"`
	// Lambda2 is usable events divided by usable virtual time.
	Lambda2            float64 `yaml:"lambda_counts"`
	RelativeDifference float64 `yaml:"relative_difference"`

	Timeline     []Event          `yaml:"-"`
	Buckets      []Bucket         `yaml:"-"`
	Frequencies  []CountFrequency `yaml:"-"`
	LatencyCurve []DensityPoint   `yaml:"-"`
}

// Analyze fits the exponential and Poisson models to the successful rows,
// taken in request-id order. When the usable virtual time is zero it returns
// the exponential fit and timeline together with ErrNoUsableTime.
func Analyze(rows []Row, bucket float64) (Result, error) {
	if bucket <= 0 || math.IsNaN(bucket) || math.IsInf(bucket, 0) {
		return Result{}, fmt.Errorf("bucket width must be positive, got %v", bucket)
	}
	if len(rows) == 0 {
		return Result{}, ErrNoData
	}

	ordered := make([]Row, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].RequestID < ordered[j].RequestID })

	var ids []int
	var latencies []float64
	for _, r := range ordered {
		if r.Status == StatusOK {
			ids = append(ids, r.RequestID)
			latencies = append(latencies, r.LatencySeconds)
		}
	}

	res := Result{BucketWidth: bucket, Requests: len(rows), Successful: len(latencies)}
	if len(latencies) == 0 {
		return res, ErrNoSuccessfulRequests
	}

	fitExponential(&res, latencies)

	virtual := stats.CumSum(latencies)
	res.TRawMax = virtual[len(virtual)-1]
	numBuckets := int(math.Floor(res.TRawMax / bucket))
	res.TMaxUsable = float64(numBuckets) * bucket

	res.Timeline = make([]Event, len(virtual))
	for i, t := range virtual {
		usable := t < res.TMaxUsable
		res.Timeline[i] = Event{RequestID: ids[i], Latency: latencies[i], Virtual: t, Usable: usable}
		if usable {
			res.UsableEvents++
		}
	}
	if res.TMaxUsable <= 0 {
		return res, ErrNoUsableTime
	}

	fitPoisson(&res, numBuckets)
	return res, nil
}

func fitExponential(res *Result, latencies []float64) {
	rs := stats.Summarize(latencies)
	res.MeanLatency = rs.Mean
	res.StdLatency = rs.StdDev()
	if rs.Mean > 0 {
		res.Lambda1 = 1 / rs.Mean
	}
	for _, x := range stats.Linspace(0, rs.Max*1.1, latencyCurvePoints) {
		res.LatencyCurve = append(res.LatencyCurve, DensityPoint{X: x, Density: stats.ExponentialPDF(res.Lambda1, x)})
	}
}

func fitPoisson(res *Result, numBuckets int) {
	w := res.BucketWidth
	res.Buckets = make([]Bucket, numBuckets)
	for i := range res.Buckets {
		res.Buckets[i] = Bucket{Index: i, Start: float64(i) * w, End: float64(i+1) * w}
	}
	for _, ev := range res.Timeline {
		if !ev.Usable {
			continue
		}
		idx := int(math.Floor(ev.Virtual / w))
		idx = min(max(idx, 0), numBuckets-1)
		res.Buckets[idx].Count++
	}

	counts := make([]float64, numBuckets)
	maxCount := 0
	for i, b := range res.Buckets {
		counts[i] = float64(b.Count)
		maxCount = max(maxCount, b.Count)
	}
	rs := stats.Summarize(counts)
	res.MeanCount = rs.Mean
	res.VarCount = rs.Variance()
	if rs.Mean > 0 {
		res.Dispersion = res.VarCount / rs.Mean
	}

	res.Lambda2 = float64(res.UsableEvents) / res.TMaxUsable
	if res.Lambda1 > 0 {
		res.RelativeDifference = math.Abs(res.Lambda1-res.Lambda2) / res.Lambda1
	}

	observed := make([]int, maxCount+2)
	for _, b := range res.Buckets {
		observed[b.Count]++
	}
	mu := res.Lambda2 * w
	for k := range observed {
		res.Frequencies = append(res.Frequencies, CountFrequency{
			K:        k,
			Observed: float64(observed[k]) / float64(numBuckets),
			Poisson:  stats.PoissonPMF(k, mu),
		})
	}
}

// WriteOutputs persists the bucket counts, virtual timeline, count
// frequencies and latency density next to input. Tables that need usable
// time are skipped when there is none.
func WriteOutputs(input string, res Result) ([]string, error) {
	var written []string
	write := func(suffix string, header []string, records [][]string) error {
		path := store.DerivedPath(input, suffix)
		if err := store.WriteCSV(path, header, records); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	timeline := make([][]string, 0, len(res.Timeline))
	for _, ev := range res.Timeline {
		timeline = append(timeline, []string{
			strconv.Itoa(ev.RequestID), ff(ev.Latency), ff(ev.Virtual), strconv.FormatBool(ev.Usable),
		})
	}
	if err := write("virtual_timeline", []string{"request_id", "latency_seconds", "t_virtual_completion", "in_usable_range"}, timeline); err != nil {
		return written, err
	}

	curve := make([][]string, 0, len(res.LatencyCurve))
	for _, p := range res.LatencyCurve {
		curve = append(curve, []string{ff(p.X), ff(p.Density)})
	}
	if err := write("latency", []string{"latency_seconds", "exponential_pdf"}, curve); err != nil {
		return written, err
	}

	if len(res.Buckets) == 0 {
		return written, nil
	}

	buckets := make([][]string, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		buckets = append(buckets, []string{strconv.Itoa(b.Index), ff(b.Start), ff(b.End), strconv.Itoa(b.Count)})
	}
	if err := write("buckets", []string{"bucket_index", "bucket_start_virtual", "bucket_end_virtual", "count"}, buckets); err != nil {
		return written, err
	}

	freqs := make([][]string, 0, len(res.Frequencies))
	for _, f := range res.Frequencies {
		freqs = append(freqs, []string{strconv.Itoa(f.K), ff(f.Observed), ff(f.Poisson)})
	}
	if err := write("counts", []string{"k", "empirical_probability", "poisson_pmf"}, freqs); err != nil {
		return written, err
	}
	return written, nil
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
