package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/providers"
	"github.com/mwiater/stochprobe/internal/store"
)

type testRow struct {
	Key    string
	Values []string
}

var testCodec = store.Codec[testRow]{
	Header: []string{"key", "values"},
	Encode: func(r testRow) []string { return []string{r.Key, strings.Join(r.Values, "|")} },
	Decode: func(rec []string) (testRow, error) {
		return testRow{Key: rec[0], Values: strings.Split(rec[1], "|")}, nil
	},
	Key: func(r testRow) string { return r.Key },
}

// scriptedInvoker answers call n (1-based) with script(n).
type scriptedInvoker struct {
	calls  int
	script func(n int) (string, error)
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req providers.InvokeRequest) (string, error) {
	s.calls++
	return s.script(s.calls)
}

func TestMain(m *testing.M) {
	logging.SetQuiet(true)
	_ = logging.Init("")
	os.Exit(m.Run())
}

func openTable(t *testing.T, path string) *store.Table[testRow] {
	t.Helper()
	table, err := store.Open(path, testCodec)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	return table
}

func makePlan(steps, calls int) []Step[testRow] {
	plan := make([]Step[testRow], 0, steps)
	for i := 0; i < steps; i++ {
		key := fmt.Sprintf("s%02d", i)
		plan = append(plan, Step[testRow]{
			Key:   key,
			Calls: calls,
			Build: func(outcomes []Outcome) testRow {
				row := testRow{Key: key}
				for _, o := range outcomes {
					row.Values = append(row.Values, o.Value)
				}
				return row
			},
		})
	}
	return plan
}

func echo(n int) (string, error) { return fmt.Sprintf("r%d", n), nil }

// TestRunResumesAfterInterrupt kills the run after four flushed calls and
// verifies that a second run fills exactly the remaining steps.
func TestRunResumesAfterInterrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	plan := makePlan(10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &scriptedInvoker{script: func(n int) (string, error) {
		if n == 5 {
			cancel()
			return "", providers.Failed(context.Canceled)
		}
		return echo(n)
	}}
	report, err := New(first, openTable(t, path)).Run(ctx, plan)
	if err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	if report.Stop != StopInterrupted || report.StoppedAt != "s04" {
		t.Fatalf("unexpected stop %q at %q", report.Stop, report.StoppedAt)
	}
	if got := openTable(t, path).Len(); got != 4 {
		t.Fatalf("expected 4 persisted rows after interrupt, got %d", got)
	}

	second := &scriptedInvoker{script: echo}
	report, err = New(second, openTable(t, path)).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if second.calls != 6 || report.Skipped != 4 || report.Completed != 6 {
		t.Fatalf("expected 6 new calls over 4 skipped steps, got calls=%d report=%+v", second.calls, report)
	}

	rows := openTable(t, path).Rows()
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if want := fmt.Sprintf("s%02d", i); row.Key != want {
			t.Fatalf("row %d has key %q, want %q", i, row.Key, want)
		}
	}
}

// TestRunStopsOnRateLimit checks that a rate limit on call j leaves j-1
// per-call steps persisted and returns without error.
func TestRunStopsOnRateLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	inv := &scriptedInvoker{script: func(n int) (string, error) {
		if n == 7 {
			return "", providers.RateLimited(errors.New("429 too many requests"))
		}
		return echo(n)
	}}
	report, err := New(inv, openTable(t, path)).Run(context.Background(), makePlan(10, 1))
	if err != nil {
		t.Fatalf("Run returned error on rate limit: %v", err)
	}
	if report.Stop != StopRateLimited || report.StoppedAt != "s06" {
		t.Fatalf("unexpected stop %q at %q", report.Stop, report.StoppedAt)
	}
	table := openTable(t, path)
	if table.Len() != 6 || table.Contains("s06") {
		t.Fatalf("expected exactly 6 rows without s06, got %d", table.Len())
	}
	if inv.calls != 7 {
		t.Fatalf("harness kept calling after rate limit: %d calls", inv.calls)
	}
}

func TestRunDiscardsPartialTrialOnRateLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	inv := &scriptedInvoker{script: func(n int) (string, error) {
		if n == 5 {
			return "", providers.RateLimited(errors.New("quota"))
		}
		return echo(n)
	}}
	report, err := New(inv, openTable(t, path)).Run(context.Background(), makePlan(3, 3))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	table := openTable(t, path)
	if report.Completed != 1 || table.Len() != 1 || table.Contains("s01") {
		t.Fatalf("partial trial must not be persisted: report=%+v rows=%d", report, table.Len())
	}
}

// TestRunCountsOnlyPersistedCalls verifies that calls of a trial discarded by
// a rate limit do not reach the report totals.
func TestRunCountsOnlyPersistedCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	inv := &scriptedInvoker{script: func(n int) (string, error) {
		switch n {
		case 2:
			return "", providers.Failed(errors.New("connection reset"))
		case 4:
			return "", providers.Failed(errors.New("connection reset"))
		case 5:
			return "", providers.RateLimited(errors.New("quota"))
		}
		return echo(n)
	}}
	report, err := New(inv, openTable(t, path)).Run(context.Background(), makePlan(3, 3))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Stop != StopRateLimited || report.Completed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Calls != 3 || report.Errors != 1 {
		t.Fatalf("totals must match the persisted trial: calls=%d errors=%d", report.Calls, report.Errors)
	}
}

// sleepyInvoker takes latency per call and records when each call ran.
type sleepyInvoker struct {
	latency time.Duration
	starts  []time.Time
	ends    []time.Time
}

func (s *sleepyInvoker) Invoke(ctx context.Context, req providers.InvokeRequest) (string, error) {
	s.starts = append(s.starts, time.Now())
	time.Sleep(s.latency)
	s.ends = append(s.ends, time.Now())
	return "ok", nil
}

// TestRunWaitsDelayAfterEachCall checks that the delay separates the end of a
// call from the start of the next even when calls are slower than the delay.
func TestRunWaitsDelayAfterEachCall(t *testing.T) {
	const delay = 40 * time.Millisecond
	inv := &sleepyInvoker{latency: 60 * time.Millisecond}
	table := openTable(t, filepath.Join(t.TempDir(), "rows.csv"))

	if _, err := New(inv, table, WithDelay(delay)).Run(context.Background(), makePlan(2, 2)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(inv.starts) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(inv.starts))
	}
	for i := 1; i < len(inv.starts); i++ {
		if gap := inv.starts[i].Sub(inv.ends[i-1]); gap < delay {
			t.Fatalf("call %d started %v after the previous call ended, want at least %v", i+1, gap, delay)
		}
	}
}

// TestRunDelayHonoursCancellation verifies that a cancelled context ends the
// wait between calls as an interrupt.
func TestRunDelayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := &scriptedInvoker{script: func(n int) (string, error) {
		cancel()
		return echo(n)
	}}
	table := openTable(t, filepath.Join(t.TempDir(), "rows.csv"))

	started := time.Now()
	report, err := New(inv, table, WithDelay(time.Hour)).Run(ctx, makePlan(3, 1))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Stop != StopInterrupted || report.StoppedAt != "s01" || report.Completed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if waited := time.Since(started); waited > 5*time.Second {
		t.Fatalf("cancellation did not end the delay, waited %v", waited)
	}
}

// TestRunRecordsErrorSentinel verifies that a failed call is counted toward
// the trial size and does not stop the run.
func TestRunRecordsErrorSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	inv := &scriptedInvoker{script: func(n int) (string, error) {
		if n == 2 {
			return "", providers.Failed(errors.New("connection reset"))
		}
		return echo(n)
	}}
	var errorTypes []string
	observer := func(ev Event) {
		if ev.Kind == EventCall && ev.Outcome.Status == StatusError {
			errorTypes = append(errorTypes, ev.Outcome.ErrorType)
		}
	}
	report, err := New(inv, openTable(t, path), WithObserver(observer)).Run(context.Background(), makePlan(2, 3))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Errors != 1 || report.Calls != 6 || report.Stop != StopCompleted {
		t.Fatalf("unexpected report %+v", report)
	}
	rows := openTable(t, path).Rows()
	if got := strings.Join(rows[0].Values, ","); got != "r1,ERROR,r3" {
		t.Fatalf("unexpected first trial values %q", got)
	}
	if len(errorTypes) != 1 || errorTypes[0] != "errorString" {
		t.Fatalf("unexpected error types %v", errorTypes)
	}
}

func TestRunClassifiesInvalidResponses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	answers := []string{" 12 ", "twelve", "7"}
	inv := &scriptedInvoker{script: func(n int) (string, error) { return answers[n-1], nil }}
	digits := func(raw string) (string, bool) {
		s := strings.TrimSpace(raw)
		for _, r := range s {
			if r < '0' || r > '9' {
				return "", false
			}
		}
		return s, s != ""
	}
	report, err := New(inv, openTable(t, path), WithClassifier(digits)).Run(context.Background(), makePlan(1, 3))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Invalid != 1 {
		t.Fatalf("expected one invalid response, got %d", report.Invalid)
	}
	if got := strings.Join(openTable(t, path).Rows()[0].Values, ","); got != "12,INVALID,7" {
		t.Fatalf("unexpected values %q", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	plan := makePlan(5, 2)
	if _, err := New(&scriptedInvoker{script: echo}, openTable(t, path)).Run(context.Background(), plan); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	again := &scriptedInvoker{script: echo}
	report, err := New(again, openTable(t, path)).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if again.calls != 0 || report.Skipped != 5 || report.Completed != 0 {
		t.Fatalf("second run re-executed work: calls=%d report=%+v", again.calls, report)
	}
	if got := openTable(t, path).Len(); got != 5 {
		t.Fatalf("expected 5 rows, got %d", got)
	}
}

func TestRunRejectsMismatchedRowKey(t *testing.T) {
	plan := []Step[testRow]{{
		Key:   "expected",
		Build: func([]Outcome) testRow { return testRow{Key: "other"} },
	}}
	table := openTable(t, filepath.Join(t.TempDir(), "rows.csv"))
	if _, err := New(&scriptedInvoker{script: echo}, table).Run(context.Background(), plan); err == nil {
		t.Fatalf("expected error for mismatched key")
	}
	if table.Len() != 0 {
		t.Fatalf("mismatched row must not be persisted")
	}
}

func TestRunTimestampsCalls(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 250 * time.Millisecond)
	}
	var latencies []time.Duration
	plan := []Step[testRow]{{
		Key: "only",
		Build: func(outcomes []Outcome) testRow {
			latencies = append(latencies, outcomes[0].Latency())
			return testRow{Key: "only", Values: []string{outcomes[0].Value}}
		},
	}}
	table := openTable(t, filepath.Join(t.TempDir(), "rows.csv"))
	if _, err := New(&scriptedInvoker{script: echo}, table, WithClock(clock)).Run(context.Background(), plan); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(latencies) != 1 || latencies[0] != 250*time.Millisecond {
		t.Fatalf("unexpected latencies %v", latencies)
	}
}

func TestSecondsRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 15, 123456000, time.UTC)
	if got := FromSeconds(Seconds(ts)); !got.Equal(ts) {
		t.Fatalf("round trip mismatch: %v != %v", got, ts)
	}
}
