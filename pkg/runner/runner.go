// Package runner executes API tests: it builds each request from a test and
// its environment, sends it, evaluates the assertions and records a Run.
package runner

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/assertion"
	"github.com/getmockd/apilab/pkg/events"
	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/metrics"
	"github.com/getmockd/apilab/pkg/store"
	"github.com/getmockd/apilab/pkg/template"
)

const (
	// DefaultTimeout applies to tests that set no timeout of their own.
	DefaultTimeout = 30 * time.Second
	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 10 << 20
	// DefaultKeepRuns is how many runs per suite survive pruning.
	DefaultKeepRuns = 50
)

// ErrNoStore is returned by RunSuite on a runner built without a store.
var ErrNoStore = errors.New("runner has no store")

// Runner executes tests. It is safe for concurrent use.
type Runner struct {
	client         *http.Client
	store          store.Store
	hub            *events.Hub
	metrics        *metrics.Set
	log            *slog.Logger
	evaluator      *assertion.Evaluator
	concurrency    int
	defaultTimeout time.Duration
	keepRuns       int
}

// Option configures a Runner.
type Option func(*Runner)

// WithHTTPClient sets the client used to send test requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) {
		if c != nil {
			r.client = c
		}
	}
}

// WithStore enables RunSuite and run persistence.
func WithStore(s store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithHub publishes run progress events to hub.
func WithHub(h *events.Hub) Option {
	return func(r *Runner) { r.hub = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = logging.OrNop(l) }
}

// WithMetrics counts finished runs and their results.
func WithMetrics(m *metrics.Set) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithConcurrency runs up to n tests of a run at once. n <= 1 runs them
// sequentially.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.concurrency = n
	}
}

// WithDefaultTimeout sets the timeout for tests without their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithKeepRuns sets how many runs per suite are kept after each RunSuite.
// Zero or less disables pruning.
func WithKeepRuns(n int) Option {
	return func(r *Runner) { r.keepRuns = n }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		client: &http.Client{
			// Tests assert on the response they get, not where it redirects to.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		log:            logging.Nop(),
		evaluator:      assertion.NewEvaluator(),
		concurrency:    1,
		defaultTimeout: DefaultTimeout,
		keepRuns:       DefaultKeepRuns,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interpolate replaces {{name}} references with vars and the built-in
// {{$uuid}}, {{$timestamp}} and {{$randomInt}} values. Unknown names are
// left as they are.
func Interpolate(s string, vars map[string]string) string {
	return template.Process(s, &template.Context{Vars: vars})
}

// BuildRequest creates the HTTP request for t with vars interpolated into
// its URL, query, headers and body.
func BuildRequest(ctx context.Context, t *apitest.Test, vars map[string]string) (*http.Request, error) {
	tctx := &template.Context{Vars: vars}

	rawURL := template.Process(t.URL, tctx)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", rawURL)
	}
	if len(t.Query) > 0 {
		q := u.Query()
		for k, v := range t.Query {
			q.Set(template.Process(k, tctx), template.Process(v, tctx))
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	var bodyStr string
	if t.Body != "" {
		bodyStr = template.Process(t.Body, tctx)
		body = strings.NewReader(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, t.EffectiveMethod(), u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range t.Headers {
		req.Header.Set(k, template.Process(v, tctx))
	}
	if bodyStr != "" && req.Header.Get("Content-Type") == "" && json.Valid([]byte(bodyStr)) {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// RunTest sends one test's request and evaluates its assertions. Transport
// and request-building failures are reported in Result.Error.
func (r *Runner) RunTest(ctx context.Context, t *apitest.Test, vars map[string]string) apitest.Result {
	res := apitest.Result{
		TestID:   t.ID,
		TestName: t.Name,
		Method:   t.EffectiveMethod(),
		URL:      Interpolate(t.URL, vars),
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout(r.defaultTimeout))
	defer cancel()

	req, err := BuildRequest(ctx, t, vars)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.URL = req.URL.String()

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		res.ResponseTimeMs = time.Since(start).Milliseconds()
		res.Error = describeTransportError(err, t.Timeout(r.defaultTimeout))
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	elapsed := time.Since(start)
	res.ResponseTimeMs = elapsed.Milliseconds()
	res.StatusCode = resp.StatusCode
	res.ResponseHeaders = resp.Header
	if err != nil {
		res.Error = "reading response body: " + describeTransportError(err, t.Timeout(r.defaultTimeout))
		return res
	}

	res.ResponseBody = string(body)
	if len(body) > apitest.MaxStoredBodyBytes {
		res.ResponseBody = string(body[:apitest.MaxStoredBodyBytes])
		res.BodyTruncated = true
	}

	res.Assertions, res.Passed = r.evaluator.EvaluateAll(t.Assertions, &assertion.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   elapsed,
	})
	return res
}

func describeTransportError(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("request timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	}
	return err.Error()
}

// RunTests executes tests outside the store and returns the finished run.
// Tests run by Order, ties keeping their slice position. Disabled tests are
// skipped.
func (r *Runner) RunTests(ctx context.Context, name string, tests []*apitest.Test, vars map[string]string) *apitest.Run {
	run := &apitest.Run{
		ID:        id.ULID(),
		SuiteName: name,
		Status:    apitest.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	ordered := enabled(tests)
	slices.SortStableFunc(ordered, func(a, b *apitest.Test) int { return cmp.Compare(a.Order, b.Order) })

	r.publish(events.TypeRunStarted, run, summary(run))
	r.execute(ctx, run, ordered, vars)
	r.publish(events.TypeRunFinished, run, summary(run))
	return run
}

// RunSuite runs every enabled test of a stored suite with the variables of
// envID (optional). The run is saved as running when it starts and written
// once more when it finishes.
func (r *Runner) RunSuite(ctx context.Context, suiteID, envID string) (*apitest.Run, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	suite, err := r.store.Suites().Get(ctx, suiteID)
	if err != nil {
		return nil, fmt.Errorf("load suite: %w", err)
	}
	tests, err := r.store.Tests().ListBySuite(ctx, suiteID)
	if err != nil {
		return nil, fmt.Errorf("load tests: %w", err)
	}
	var vars map[string]string
	if envID != "" {
		env, err := r.store.Environments().Get(ctx, envID)
		if err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
		vars = env.Variables
	}

	run := &apitest.Run{
		ID:            id.ULID(),
		SuiteID:       suite.ID,
		SuiteName:     suite.Name,
		EnvironmentID: envID,
		Status:        apitest.RunRunning,
		StartedAt:     time.Now().UTC(),
	}
	if err := r.store.Runs().Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	r.publish(events.TypeRunStarted, run, summary(run))
	r.log.Info("suite run started", "run", run.ID, "suite", suite.Name, "tests", len(tests))

	r.execute(ctx, run, enabled(tests), vars)

	// Persist even when ctx was cancelled so the run does not stay "running".
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.store.Runs().Save(saveCtx, run); err != nil {
		return run, fmt.Errorf("save run: %w", err)
	}
	if r.keepRuns > 0 {
		if n, err := r.store.Runs().Prune(saveCtx, suite.ID, r.keepRuns); err != nil {
			r.log.Warn("failed to prune runs", "suite", suite.ID, "error", err)
		} else if n > 0 {
			r.log.Debug("pruned old runs", "suite", suite.ID, "removed", n)
		}
	}

	r.publish(events.TypeRunFinished, run, summary(run))
	r.log.Info("suite run finished", "run", run.ID, "status", run.Status,
		"passed", run.Passed, "failed", run.Failed, "errored", run.Errored, "duration_ms", run.DurationMs)
	return run, nil
}

// execute fills run.Results in test order and finishes the run. With
// concurrency > 1 tests run in parallel but results keep their positions.
func (r *Runner) execute(ctx context.Context, run *apitest.Run, tests []*apitest.Test, vars map[string]string) {
	results := make([]apitest.Result, len(tests))
	done := make([]bool, len(tests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, t := range tests {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := r.RunTest(gctx, t, vars)
			results[i] = res
			done[i] = true
			r.publish(events.TypeTestFinished, run, res)
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		if !done[i] {
			results[i] = apitest.Result{
				TestID:   tests[i].ID,
				TestName: tests[i].Name,
				Method:   tests[i].EffectiveMethod(),
				URL:      Interpolate(tests[i].URL, vars),
				Error:    "not run: run cancelled",
			}
		}
	}
	run.Results = results
	run.Finish(time.Now().UTC())
	if ctx.Err() != nil {
		run.Status = apitest.RunError
	}
	r.metrics.ObserveRun(string(run.Status), run.Passed, run.Failed, run.Errored)
}

func enabled(tests []*apitest.Test) []*apitest.Test {
	out := make([]*apitest.Test, 0, len(tests))
	for _, t := range tests {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	return out
}

// summary is the run without per-test results, for events.
func summary(run *apitest.Run) *apitest.Run {
	s := *run
	s.Results = nil
	return &s
}

func (r *Runner) publish(typ string, run *apitest.Run, data any) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(events.Event{Type: typ, RunID: run.ID, Data: data})
}
