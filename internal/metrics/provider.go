// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/providers"
)

// Provider is a decorator that wraps an Invoker to record metrics.
type Provider struct {
	wrapped    providers.Invoker
	model      string
	aggregator *Aggregator
	now        func() time.Time
}

// NewProvider creates a new metrics-enabled provider that wraps an existing Invoker.
func NewProvider(wrapped providers.Invoker, model string, aggregator *Aggregator) *Provider {
	logging.LogEvent("[METRICS] Wrapping provider with metrics provider")
	return &Provider{wrapped: wrapped, model: model, aggregator: aggregator, now: time.Now}
}

// Invoke forwards to the wrapped Invoker and records the outcome and latency.
func (p *Provider) Invoke(ctx context.Context, req providers.InvokeRequest) (string, error) {
	start := p.now()
	text, err := p.wrapped.Invoke(ctx, req)
	latency := p.now().Sub(start)

	if p.aggregator != nil {
		outcome := OutcomeSuccess
		switch {
		case providers.IsRateLimited(err):
			outcome = OutcomeRateLimited
		case err != nil:
			outcome = OutcomeError
		}
		p.aggregator.Record(p.model, outcome, latency)
	}
	return text, err
}
