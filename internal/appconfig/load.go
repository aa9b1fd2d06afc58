package appconfig

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults registers Default() on v so that file values and flags only
// override the keys they name.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("provider.type", d.Provider.Type)
	v.SetDefault("provider.url", d.Provider.URL)
	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.apiKeyEnv", d.Provider.APIKeyEnv)
	v.SetDefault("timeout", d.TimeoutSeconds)
	v.SetDefault("logFile", d.LogFile)
	v.SetDefault("dataDir", d.DataDir)
	v.SetDefault("metricsFile", d.MetricsFile)
	v.SetDefault("debug", d.Debug)

	setSampling(v, "experiments.collision", d.Experiments.Collision.Sampling)
	v.SetDefault("experiments.collision.systemPrompt", d.Experiments.Collision.SystemPrompt)
	v.SetDefault("experiments.collision.prompt", d.Experiments.Collision.Prompt)
	v.SetDefault("experiments.collision.sampleSpace", d.Experiments.Collision.SampleSpace)
	v.SetDefault("experiments.collision.trialSizes", d.Experiments.Collision.TrialSizes)
	v.SetDefault("experiments.collision.replicates", d.Experiments.Collision.Replicates)
	v.SetDefault("experiments.collision.output", d.Experiments.Collision.Output)

	setSampling(v, "experiments.proportion", d.Experiments.Proportion.Sampling)
	v.SetDefault("experiments.proportion.systemPrompt", d.Experiments.Proportion.SystemPrompt)
	v.SetDefault("experiments.proportion.prompt", d.Experiments.Proportion.Prompt)
	v.SetDefault("experiments.proportion.expected", d.Experiments.Proportion.Expected)
	v.SetDefault("experiments.proportion.runs", d.Experiments.Proportion.Runs)
	v.SetDefault("experiments.proportion.output", d.Experiments.Proportion.Output)

	setSampling(v, "experiments.arrival", d.Experiments.Arrival.Sampling)
	v.SetDefault("experiments.arrival.prompt", d.Experiments.Arrival.Prompt)
	v.SetDefault("experiments.arrival.requests", d.Experiments.Arrival.Requests)
	v.SetDefault("experiments.arrival.bucket", d.Experiments.Arrival.Bucket)
	v.SetDefault("experiments.arrival.output", d.Experiments.Arrival.Output)

	cat := d.Experiments.Categorical
	v.SetDefault("experiments.categorical.prompt", cat.Prompt)
	v.SetDefault("experiments.categorical.alphabet", cat.Alphabet)
	v.SetDefault("experiments.categorical.requestsPerConfig", cat.RequestsPerConfig)
	v.SetDefault("experiments.categorical.maxTokens", cat.MaxTokens)
	v.SetDefault("experiments.categorical.delay", cat.Delay)
	v.SetDefault("experiments.categorical.sweeps", sweepMaps(cat.Sweeps))
}

func setSampling(v *viper.Viper, prefix string, s Sampling) {
	v.SetDefault(prefix+".temperature", s.Temperature)
	v.SetDefault(prefix+".topP", s.TopP)
	v.SetDefault(prefix+".maxTokens", s.MaxTokens)
	v.SetDefault(prefix+".delay", s.Delay)
}

func sweepMaps(sweeps []Sweep) []map[string]any {
	out := make([]map[string]any, 0, len(sweeps))
	for _, sweep := range sweeps {
		configs := make([]map[string]any, 0, len(sweep.Configs))
		for _, sc := range sweep.Configs {
			configs = append(configs, map[string]any{
				"name":        sc.Name,
				"temperature": sc.Temperature,
				"topP":        sc.TopP,
			})
		}
		out = append(out, map[string]any{
			"name":    sweep.Name,
			"output":  sweep.Output,
			"configs": configs,
		})
	}
	return out
}

// Load materialises the merged viper state (flags > file > defaults) into a
// validated Config.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
