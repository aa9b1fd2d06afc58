// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.yaml"
	// defaultRequestTimeout is the default timeout for a single inference request.
	defaultRequestTimeout = 60 * time.Second
	// defaultAPIKeyEnv is the environment variable holding the provider key.
	defaultAPIKeyEnv = "GROQ_API_KEY"

	ProviderGroq     = "groq"
	ProviderLlamaCpp = "llama.cpp"
)

// ErrMissingCredentials is returned when the configured provider needs an API
// key and none is present in the environment.
var ErrMissingCredentials = errors.New("missing API credentials")

// Config represents the top-level application configuration.
type Config struct {
	Provider       Provider    `json:"provider" mapstructure:"provider"`
	TimeoutSeconds int         `json:"timeout" mapstructure:"timeout"`
	LogFile        string      `json:"logFile,omitempty" mapstructure:"logFile"`
	DataDir        string      `json:"dataDir" mapstructure:"dataDir"`
	MetricsFile    string      `json:"metricsFile,omitempty" mapstructure:"metricsFile"`
	Debug          bool        `json:"debug" mapstructure:"debug"`
	Experiments    Experiments `json:"experiments" mapstructure:"experiments"`
	ConfigPath     string      `json:"-" mapstructure:"-"`
}

// Provider describes the OpenAI-compatible endpoint that is sampled.
type Provider struct {
	Type      string `json:"type" mapstructure:"type"`
	URL       string `json:"url" mapstructure:"url"`
	Model     string `json:"model" mapstructure:"model"`
	APIKeyEnv string `json:"apiKeyEnv" mapstructure:"apiKeyEnv"`
}

// Sampling holds the parameters shared by every call of an experiment.
type Sampling struct {
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	TopP        float64       `json:"topP" mapstructure:"topP"`
	MaxTokens   int           `json:"maxTokens" mapstructure:"maxTokens"`
	Delay       time.Duration `json:"delay" mapstructure:"delay"`
}

// Experiments groups the four experiment sections.
type Experiments struct {
	Collision   CollisionExperiment   `json:"collision" mapstructure:"collision"`
	Proportion  ProportionExperiment  `json:"proportion" mapstructure:"proportion"`
	Arrival     ArrivalExperiment     `json:"arrival" mapstructure:"arrival"`
	Categorical CategoricalExperiment `json:"categorical" mapstructure:"categorical"`
}

// CollisionExperiment samples integers in [1, SampleSpace] in trials of size N.
type CollisionExperiment struct {
	Sampling     `mapstructure:",squash"`
	SystemPrompt string `json:"systemPrompt,omitempty" mapstructure:"systemPrompt"`
	Prompt       string `json:"prompt" mapstructure:"prompt"`
	SampleSpace  int    `json:"sampleSpace" mapstructure:"sampleSpace"`
	TrialSizes   []int  `json:"trialSizes" mapstructure:"trialSizes"`
	Replicates   int    `json:"replicates" mapstructure:"replicates"`
	Output       string `json:"output" mapstructure:"output"`
}

// ProportionExperiment asks a factual question and counts wrong answers.
type ProportionExperiment struct {
	Sampling     `mapstructure:",squash"`
	SystemPrompt string `json:"systemPrompt,omitempty" mapstructure:"systemPrompt"`
	Prompt       string `json:"prompt" mapstructure:"prompt"`
	Expected     string `json:"expected" mapstructure:"expected"`
	Runs         int    `json:"runs" mapstructure:"runs"`
	Output       string `json:"output" mapstructure:"output"`
}

// ArrivalExperiment records per-request latencies.
type ArrivalExperiment struct {
	Sampling `mapstructure:",squash"`
	Prompt   string  `json:"prompt" mapstructure:"prompt"`
	Requests int     `json:"requests" mapstructure:"requests"`
	Bucket   float64 `json:"bucket" mapstructure:"bucket"`
	Output   string  `json:"output" mapstructure:"output"`
}

// CategoricalExperiment samples a single-letter choice under several
// sampling configurations.
type CategoricalExperiment struct {
	Prompt            string        `json:"prompt" mapstructure:"prompt"`
	Alphabet          []string      `json:"alphabet" mapstructure:"alphabet"`
	RequestsPerConfig int           `json:"requestsPerConfig" mapstructure:"requestsPerConfig"`
	MaxTokens         int           `json:"maxTokens" mapstructure:"maxTokens"`
	Delay             time.Duration `json:"delay" mapstructure:"delay"`
	Sweeps            []Sweep       `json:"sweeps" mapstructure:"sweeps"`
}

// Sweep is one family of sampling configurations persisted to its own file.
type Sweep struct {
	Name    string           `json:"name" mapstructure:"name"`
	Output  string           `json:"output" mapstructure:"output"`
	Configs []SamplingConfig `json:"configs" mapstructure:"configs"`
}

// SamplingConfig is a labelled temperature/top-p pair.
type SamplingConfig struct {
	Name        string  `json:"name" mapstructure:"name"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	TopP        float64 `json:"topP" mapstructure:"topP"`
}

// Default returns the configuration reproducing the reference experiments.
func Default() Config {
	return Config{
		Provider: Provider{
			Type:      ProviderGroq,
			URL:       "https://api.groq.com/openai/v1",
			Model:     "llama-3.1-8b-instant",
			APIKeyEnv: defaultAPIKeyEnv,
		},
		TimeoutSeconds: int(defaultRequestTimeout.Seconds()),
		LogFile:        "stochprobe.log",
		DataDir:        "data",
		Experiments: Experiments{
			Collision: CollisionExperiment{
				Sampling:    Sampling{Temperature: 1.0, TopP: 1.0, MaxTokens: 5, Delay: 200 * time.Millisecond},
				Prompt:      "Reply with a single random integer between 1 and 30. Digits only.",
				SampleSpace: 30,
				TrialSizes:  []int{2, 3, 5, 7, 10, 12, 15, 20, 25, 30},
				Replicates:  20,
				Output:      "collision.csv",
			},
			Proportion: ProportionExperiment{
				Sampling:     Sampling{Temperature: 0.8, TopP: 1.0, MaxTokens: 20, Delay: 200 * time.Millisecond},
				SystemPrompt: "You are a helpful assistant.",
				Prompt:       "Answer with a single affirmative sentence.\n\nIn which year did Jacob Bernoulli publish \"Ars Conjectandi\"?\n(Reply with the year only)",
				Expected:     "1713",
				Runs:         200,
				Output:       "proportion.csv",
			},
			Arrival: ArrivalExperiment{
				Sampling: Sampling{Temperature: 1.0, TopP: 1.0, MaxTokens: 10, Delay: 5 * time.Second},
				Prompt:   "Reply with a single random number between 1 and 100.",
				Requests: 300,
				Bucket:   1.0,
				Output:   "latency.csv",
			},
			Categorical: CategoricalExperiment{
				Prompt:            "Pick one of the following options and reply only with the chosen option: A, B, C or D.",
				Alphabet:          []string{"A", "B", "C", "D"},
				RequestsPerConfig: 500,
				MaxTokens:         10,
				Delay:             50 * time.Millisecond,
				Sweeps: []Sweep{
					{
						Name:   "temperature",
						Output: "categorical_temperature.csv",
						Configs: []SamplingConfig{
							{Name: "Temp 0.1", Temperature: 0.1, TopP: 1.0},
							{Name: "Temp 0.7", Temperature: 0.7, TopP: 1.0},
							{Name: "Temp 1.5", Temperature: 1.5, TopP: 1.0},
						},
					},
					{
						Name:   "topp",
						Output: "categorical_topp.csv",
						Configs: []SamplingConfig{
							{Name: "Top-P 1.0 (Base)", Temperature: 0.7, TopP: 1.0},
							{Name: "Top-P 0.9", Temperature: 0.7, TopP: 0.9},
							{Name: "Top-P 0.6", Temperature: 0.7, TopP: 0.6},
						},
					},
				},
			},
		},
	}
}

// RequestTimeout returns the per-request timeout, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "stochprobe.log"
}

// ResolvePath places relative result paths under DataDir.
func (c Config) ResolvePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	dir := strings.TrimSpace(c.DataDir)
	if dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// APIKey reads the provider key from the environment. A llama.cpp endpoint
// does not require one.
func (c Config) APIKey() (string, error) {
	envName := strings.TrimSpace(c.Provider.APIKeyEnv)
	if envName == "" {
		envName = defaultAPIKeyEnv
	}
	key := strings.TrimSpace(os.Getenv(envName))
	if key == "" && c.Provider.Type != ProviderLlamaCpp {
		return "", fmt.Errorf("%w: set %s in the environment or a .env file", ErrMissingCredentials, envName)
	}
	return key, nil
}

// Validate checks semantic constraints the schema cannot express.
func (c Config) Validate() error {
	switch c.Provider.Type {
	case ProviderGroq, ProviderLlamaCpp:
	default:
		return fmt.Errorf("unsupported provider type %q", c.Provider.Type)
	}
	if strings.TrimSpace(c.Provider.URL) == "" {
		return errors.New("provider url must not be empty")
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return errors.New("provider model must not be empty")
	}

	col := c.Experiments.Collision
	if col.SampleSpace <= 0 {
		return errors.New("collision sampleSpace must be positive")
	}
	if col.Replicates <= 0 {
		return errors.New("collision replicates must be positive")
	}
	for _, n := range col.TrialSizes {
		if n <= 0 {
			return fmt.Errorf("collision trial size %d must be positive", n)
		}
	}
	if c.Experiments.Proportion.Runs <= 0 {
		return errors.New("proportion runs must be positive")
	}
	if c.Experiments.Arrival.Requests <= 0 {
		return errors.New("arrival requests must be positive")
	}
	if c.Experiments.Arrival.Bucket <= 0 {
		return errors.New("arrival bucket must be positive")
	}

	cat := c.Experiments.Categorical
	if len(cat.Alphabet) == 0 {
		return errors.New("categorical alphabet must not be empty")
	}
	if cat.RequestsPerConfig <= 0 {
		return errors.New("categorical requestsPerConfig must be positive")
	}
	seen := make(map[string]bool)
	for _, sweep := range cat.Sweeps {
		if strings.TrimSpace(sweep.Output) == "" {
			return fmt.Errorf("categorical sweep %q has no output file", sweep.Name)
		}
		for _, sc := range sweep.Configs {
			key := sweep.Output + "\x00" + sc.Name
			if seen[key] {
				return fmt.Errorf("categorical sweep %q repeats config name %q", sweep.Name, sc.Name)
			}
			seen[key] = true
		}
	}
	return nil
}
