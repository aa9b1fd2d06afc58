// Package stats holds the small numeric helpers shared by the estimators.
package stats

import "math"

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	M2    float64 `json:"-" yaml:"-"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

// Add updates the statistic with value using Welford's online algorithm.
func (rs *RunningStat) Add(value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// Variance returns the population variance (divisor n). Zero when empty.
func (rs RunningStat) Variance() float64 {
	if rs.Count == 0 {
		return 0
	}
	return rs.M2 / float64(rs.Count)
}

// StdDev returns the population standard deviation.
func (rs RunningStat) StdDev() float64 {
	return math.Sqrt(rs.Variance())
}

// Summarize folds values into a RunningStat.
func Summarize(values []float64) RunningStat {
	var rs RunningStat
	for _, v := range values {
		rs.Add(v)
	}
	return rs
}

// CumSum returns the running totals of values. Neumaier compensation keeps
// the last element equal to the exact sum for long latency sequences.
func CumSum(values []float64) []float64 {
	out := make([]float64, len(values))
	var sum, comp float64
	for i, v := range values {
		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			comp += (sum - t) + v
		} else {
			comp += (v - t) + sum
		}
		sum = t
		out[i] = sum + comp
	}
	return out
}

// ExponentialPDF evaluates lambda*exp(-lambda*x) for x >= 0.
func ExponentialPDF(lambda, x float64) float64 {
	if x < 0 || lambda <= 0 {
		return 0
	}
	return lambda * math.Exp(-lambda*x)
}

// PoissonPMF evaluates P(K=k) for a Poisson distribution with mean mu. The
// computation runs in log space so large k does not overflow k!.
func PoissonPMF(k int, mu float64) float64 {
	if k < 0 || mu < 0 {
		return 0
	}
	if mu == 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	lg, _ := math.Lgamma(float64(k) + 1)
	return math.Exp(float64(k)*math.Log(mu) - mu - lg)
}

// Linspace returns n evenly spaced points covering [start, end].
func Linspace(start, end float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	out[n-1] = end
	return out
}
