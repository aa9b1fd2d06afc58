// Package harness drives repeated calls to an inference endpoint under a
// fixed plan and persists one row per completed step.
//
// A step is the unit of persistence: either a single call (per-request logs)
// or a whole trial of N calls. Steps whose key is already stored are skipped,
// so re-running the same plan resumes at the first incomplete step.
package harness

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/providers"
)

const (
	// InvalidSentinel replaces a response that failed classification.
	InvalidSentinel = "INVALID"
	// ErrorSentinel replaces the response of a failed call.
	ErrorSentinel = "ERROR"
)

// Status is the outcome class of one call.
type Status string

const (
	StatusOK      Status = "success"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// Outcome is the result of one call within a step.
type Outcome struct {
	Index int
	// Raw is the text returned by the endpoint, empty on error.
	Raw string
	// Value is the classified response, or one of the sentinels.
	Value     string
	Status    Status
	ErrorType string
	Start     time.Time
	End       time.Time
}

// Latency returns the wall-clock duration of the call.
func (o Outcome) Latency() time.Duration { return o.End.Sub(o.Start) }

// Classifier maps a raw response to its recorded value. Returning false
// records the response as InvalidSentinel.
type Classifier func(raw string) (string, bool)

// Step is one planned unit of work.
type Step[R any] struct {
	Key     string
	Request providers.InvokeRequest
	// Calls is the number of invocations in the step; values below 1 mean 1.
	Calls int
	// Build turns the step's outcomes into the persisted row. Its key must equal Key.
	Build func(outcomes []Outcome) R
}

func (s Step[R]) calls() int {
	if s.Calls < 1 {
		return 1
	}
	return s.Calls
}

// Sink is the durable log rows are written to. *store.Table satisfies it.
type Sink[R any] interface {
	Contains(key string) bool
	Append(row R) error
	KeyOf(row R) string
}

// StopReason explains why Run returned.
type StopReason string

const (
	StopCompleted   StopReason = "completed"
	StopRateLimited StopReason = "rate_limited"
	StopInterrupted StopReason = "interrupted"
)

// Report summarises one Run.
type Report struct {
	RunID     string        `yaml:"run_id"`
	Planned   int           `yaml:"planned_steps"`
	Skipped   int           `yaml:"skipped_steps"`
	Completed int           `yaml:"completed_steps"`
	// Calls, Errors and Invalid count only calls of persisted steps.
	Calls     int           `yaml:"calls"`
	Errors    int           `yaml:"errors"`
	Invalid   int           `yaml:"invalid"`
	Stop      StopReason    `yaml:"stop"`
	StoppedAt string        `yaml:"stopped_at,omitempty"`
	Elapsed   time.Duration `yaml:"elapsed"`
}

// EventKind distinguishes observer notifications.
type EventKind int

const (
	EventCall EventKind = iota
	EventStep
)

// Event is delivered to the observer after every call and every persisted step.
type Event struct {
	Kind       EventKind
	StepKey    string
	Outcome    Outcome
	CallsDone  int
	CallsTotal int
}

// Option configures a Harness.
type Option func(*settings)

type settings struct {
	delay      time.Duration
	classifier Classifier
	observer   func(Event)
	now        func() time.Time
}

// WithDelay waits d between the end of one call and the start of the next.
func WithDelay(d time.Duration) Option { return func(s *settings) { s.delay = d } }

// WithClassifier validates each successful response.
func WithClassifier(c Classifier) Option { return func(s *settings) { s.classifier = c } }

// WithObserver registers a progress callback.
func WithObserver(fn func(Event)) Option { return func(s *settings) { s.observer = fn } }

// WithClock overrides the time source used for call timestamps.
func WithClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

// Harness executes plans against one Invoker and one Sink.
type Harness[R any] struct {
	invoker  providers.Invoker
	sink     Sink[R]
	// cooldown is re-armed at the end of every call when a delay is set.
	cooldown *rate.Limiter
	cfg      settings
	runID    string
}

// New creates a harness. Each harness gets its own run ID for log correlation.
func New[R any](invoker providers.Invoker, sink Sink[R], opts ...Option) *Harness[R] {
	cfg := settings{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Harness[R]{
		invoker: invoker,
		sink:    sink,
		cfg:     cfg,
		runID:   uuid.NewString(),
	}
}

// RunID returns the identifier logged with every call of this harness.
func (h *Harness[R]) RunID() string { return h.runID }

// Run executes every step of plan that the sink does not already hold, in
// order. A rate-limit signal or a cancelled ctx stops the run without error;
// the step in flight is discarded and everything before it stays persisted.
// Only sink failures and malformed steps are returned as errors.
func (h *Harness[R]) Run(ctx context.Context, plan []Step[R]) (report Report, err error) {
	started := h.cfg.now()
	report = Report{RunID: h.runID, Planned: len(plan), Stop: StopCompleted}
	defer func() { report.Elapsed = h.cfg.now().Sub(started) }()

	total := 0
	for _, step := range plan {
		if !h.sink.Contains(step.Key) {
			total += step.calls()
		}
	}
	logging.LogEvent("[HARNESS] run=%s planned_steps=%d pending_calls=%d", h.runID, len(plan), total)

	done := 0
	for _, step := range plan {
		if h.sink.Contains(step.Key) {
			report.Skipped++
			continue
		}

		var tally Report
		outcomes := make([]Outcome, 0, step.calls())
		for i := 0; i < step.calls(); i++ {
			if err := h.settle(ctx); err != nil {
				return h.interrupted(report, step.Key), nil
			}

			outcome, err := h.call(ctx, step.Request, i)
			h.arm()
			if err != nil {
				if ctx.Err() != nil {
					return h.interrupted(report, step.Key), nil
				}
				if providers.IsRateLimited(err) {
					logging.LogWarn("[HARNESS] run=%s rate limited at step %s call %d: %v", h.runID, step.Key, i+1, err)
					report.Stop = StopRateLimited
					report.StoppedAt = step.Key
					return report, nil
				}
				logging.LogWarn("[HARNESS] run=%s step %s call %d failed: %v", h.runID, step.Key, i+1, err)
				outcome.Value = ErrorSentinel
				outcome.Status = StatusError
				outcome.ErrorType = providers.ErrorType(err)
				tally.Errors++
			} else if outcome.Status == StatusInvalid {
				tally.Invalid++
			}
			tally.Calls++
			done++
			outcomes = append(outcomes, outcome)
			h.notify(Event{Kind: EventCall, StepKey: step.Key, Outcome: outcome, CallsDone: done, CallsTotal: total})
		}

		row := step.Build(outcomes)
		if got := h.sink.KeyOf(row); got != step.Key {
			return report, fmt.Errorf("step %q built a row with key %q", step.Key, got)
		}
		if err := h.sink.Append(row); err != nil {
			return report, fmt.Errorf("persist step %q: %w", step.Key, err)
		}
		report.Completed++
		report.Calls += tally.Calls
		report.Errors += tally.Errors
		report.Invalid += tally.Invalid
		h.notify(Event{Kind: EventStep, StepKey: step.Key, CallsDone: done, CallsTotal: total})
	}

	logging.LogEvent("[HARNESS] run=%s finished: completed=%d skipped=%d errors=%d invalid=%d",
		h.runID, report.Completed, report.Skipped, report.Errors, report.Invalid)
	return report, nil
}

func (h *Harness[R]) call(ctx context.Context, req providers.InvokeRequest, index int) (Outcome, error) {
	outcome := Outcome{Index: index, Start: h.cfg.now()}
	text, err := h.invoker.Invoke(ctx, req)
	outcome.End = h.cfg.now()
	if err != nil {
		return outcome, err
	}

	outcome.Raw = text
	outcome.Value = text
	outcome.Status = StatusOK
	if h.cfg.classifier != nil {
		value, ok := h.cfg.classifier(text)
		if ok {
			outcome.Value = value
		} else {
			outcome.Value = InvalidSentinel
			outcome.Status = StatusInvalid
		}
	}
	return outcome, nil
}

// settle blocks until the delay since the previous call has elapsed.
func (h *Harness[R]) settle(ctx context.Context) error {
	if h.cooldown == nil {
		return nil
	}
	return h.cooldown.Wait(ctx)
}

// arm starts a new delay window at the current time. The fresh limiter holds
// one token, which the reservation spends, so the next Wait lasts a full delay.
func (h *Harness[R]) arm() {
	if h.cfg.delay <= 0 {
		return
	}
	h.cooldown = rate.NewLimiter(rate.Every(h.cfg.delay), 1)
	h.cooldown.ReserveN(time.Now(), 1)
}

func (h *Harness[R]) interrupted(report Report, key string) Report {
	logging.LogWarn("[HARNESS] run=%s interrupted at step %s", h.runID, key)
	report.Stop = StopInterrupted
	report.StoppedAt = key
	return report
}

func (h *Harness[R]) notify(ev Event) {
	if h.cfg.observer != nil {
		h.cfg.observer(ev)
	}
}

// Seconds converts a timestamp to fractional Unix seconds.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromSeconds is the inverse of Seconds, rounded to the microsecond.
func FromSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3)
}
