// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/metrics"
	"github.com/mwiater/stochprobe/internal/providers"
	"github.com/mwiater/stochprobe/internal/providers/completions"
)

// NewInvoker builds the inference client described by cfg.Provider and, when
// an aggregator is supplied, wraps it with metrics collection. Missing
// credentials are reported before any call is attempted.
func NewInvoker(cfg *appconfig.Config, aggregator *metrics.Aggregator) (providers.Invoker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	switch cfg.Provider.Type {
	case appconfig.ProviderGroq, appconfig.ProviderLlamaCpp:
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.Provider.Type)
	}

	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}

	var invoker providers.Invoker = completions.New(completions.Options{
		BaseURL: cfg.Provider.URL,
		APIKey:  key,
		Model:   cfg.Provider.Model,
		Timeout: cfg.RequestTimeout(),
		Debug:   cfg.Debug,
	})
	logging.LogEvent("%s provider ready: %s model=%s", cfg.Provider.Type, cfg.Provider.URL, cfg.Provider.Model)

	if aggregator != nil {
		invoker = metrics.NewProvider(invoker, cfg.Provider.Model, aggregator)
	}
	return invoker, nil
}
