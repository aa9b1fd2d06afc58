package categorical

import (
	"errors"
	"math"
	"strconv"

	"github.com/mwiater/stochprobe/internal/store"
)

// ErrNoData is returned when there are no responses to analyse.
var ErrNoData = errors.New("no categorical responses recorded")

// Distribution is the empirical distribution of one sampling configuration.
type Distribution struct {
	Config      string  `yaml:"config"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	N           int     `yaml:"n"`
	// Counts and Probabilities cover every alphabet label plus Invalid.
	Counts        map[string]int     `yaml:"counts"`
	Probabilities map[string]float64 `yaml:"probabilities"`
	Invalid       int                `yaml:"invalid"`
	// Entropy is over the alphabet only; Invalid contributes to the
	// denominator but not to the sum.
	Entropy float64 `yaml:"entropy_bits"`
	// EntropyWithInvalid treats Invalid as an extra outcome.
	EntropyWithInvalid float64 `yaml:"entropy_with_invalid_bits"`
}

// Result is the outcome of Analyze.
type Result struct {
	Alphabet   []string       `yaml:"alphabet"`
	MaxEntropy float64        `yaml:"max_entropy_bits"`
	Total      int            `yaml:"total"`
	Global     map[string]int `yaml:"global_counts"`
	Configs    []Distribution `yaml:"configs"`
}

// Entropy returns -Σ p·log2(p) over the strictly positive probabilities.
func Entropy(probs []float64) float64 {
	h := 0.0
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

// Analyze normalises every response and computes one distribution per
// configuration, in order of first appearance.
func Analyze(rows []Row, alphabet []string) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrNoData
	}
	norm := NewNormalizer(alphabet)
	labels := norm.Alphabet()

	res := Result{
		Alphabet:   labels,
		MaxEntropy: math.Log2(float64(len(labels))),
		Total:      len(rows),
		Global:     make(map[string]int, len(labels)+1),
	}
	for _, l := range labels {
		res.Global[l] = 0
	}
	res.Global[Invalid] = 0

	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.ConfigName]
		if !ok {
			i = len(res.Configs)
			index[r.ConfigName] = i
			d := Distribution{
				Config:      r.ConfigName,
				Temperature: r.Temperature,
				TopP:        r.TopP,
				Counts:      make(map[string]int, len(labels)+1),
			}
			for _, l := range labels {
				d.Counts[l] = 0
			}
			d.Counts[Invalid] = 0
			res.Configs = append(res.Configs, d)
		}
		label := norm.Normalize(r.Response)
		res.Configs[i].Counts[label]++
		res.Configs[i].N++
		res.Global[label]++
	}

	for i := range res.Configs {
		finish(&res.Configs[i], labels)
	}
	return res, nil
}

func finish(d *Distribution, labels []string) {
	d.Invalid = d.Counts[Invalid]
	d.Probabilities = make(map[string]float64, len(labels)+1)
	alphabetProbs := make([]float64, 0, len(labels))
	for _, l := range labels {
		p := float64(d.Counts[l]) / float64(d.N)
		d.Probabilities[l] = p
		alphabetProbs = append(alphabetProbs, p)
	}
	pInvalid := float64(d.Invalid) / float64(d.N)
	d.Probabilities[Invalid] = pInvalid
	d.Entropy = Entropy(alphabetProbs)
	d.EntropyWithInvalid = Entropy(append(alphabetProbs, pInvalid))
}

// WriteOutputs persists one (config, category) row per cell next to input.
func WriteOutputs(input string, res Result) ([]string, error) {
	path := store.DerivedPath(input, "distribution")
	categories := append(append([]string{}, res.Alphabet...), Invalid)
	records := make([][]string, 0, len(res.Configs)*len(categories))
	for _, d := range res.Configs {
		for _, c := range categories {
			records = append(records, []string{
				d.Config,
				c,
				strconv.Itoa(d.Counts[c]),
				strconv.FormatFloat(d.Probabilities[c], 'g', -1, 64),
			})
		}
	}
	if err := store.WriteCSV(path, []string{"config_name", "category", "count", "probability"}, records); err != nil {
		return nil, err
	}
	return []string{path}, nil
}
