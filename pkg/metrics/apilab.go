package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Set is the collection of metrics apilab exports.
type Set struct {
	*Registry

	// APIRequests counts REST API requests by method, route pattern and status.
	APIRequests *Counter
	// APIDuration observes REST API latency by method and route pattern.
	APIDuration *Histogram
	// MockRequests counts mock server requests by method and status.
	MockRequests *Counter
	// MockDuration observes mock server latency, delays included.
	MockDuration *Histogram
	// Runs counts finished test runs by status.
	Runs *Counter
	// Results counts test results by outcome: passed, failed or errored.
	Results *Counter
}

// NewSet creates the apilab metrics on a fresh registry.
func NewSet() *Set {
	r := NewRegistry()
	return &Set{
		Registry:     r,
		APIRequests:  r.NewCounter("apilab_api_requests_total", "REST API requests.", "method", "route", "status"),
		APIDuration:  r.NewHistogram("apilab_api_request_duration_seconds", "REST API request latency.", nil, "method", "route"),
		MockRequests: r.NewCounter("apilab_mock_requests_total", "Requests answered by the mock server.", "method", "status"),
		MockDuration: r.NewHistogram("apilab_mock_request_duration_seconds", "Mock server latency including configured delays.", nil),
		Runs:         r.NewCounter("apilab_test_runs_total", "Finished test runs.", "status"),
		Results:      r.NewCounter("apilab_test_results_total", "Executed tests.", "outcome"),
	}
}

// ObserveRun records a finished run. It is nil-safe.
func (s *Set) ObserveRun(status string, passed, failed, errored int) {
	if s == nil {
		return
	}
	s.Runs.Inc(status)
	s.Results.Add(float64(passed), "passed")
	s.Results.Add(float64(failed), "failed")
	s.Results.Add(float64(errored), "errored")
}

// InstrumentAPI records APIRequests and APIDuration. The route label is the
// ServeMux pattern that matched, so next must be (or wrap without cloning
// the request) a ServeMux. Unmatched requests use "unmatched".
func (s *Set) InstrumentAPI(next http.Handler) http.Handler {
	if s == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Patterns look like "GET /suites/{id}"; the method is its own label.
		route := r.Pattern
		if _, path, ok := strings.Cut(route, " "); ok {
			route = path
		}
		if route == "" {
			route = "unmatched"
		}
		s.APIRequests.Inc(r.Method, route, strconv.Itoa(rec.status))
		s.APIDuration.Observe(time.Since(start).Seconds(), r.Method, route)
	})
}

// InstrumentMock records MockRequests and MockDuration.
func (s *Set) InstrumentMock(next http.Handler) http.Handler {
	if s == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.MockRequests.Inc(r.Method, strconv.Itoa(rec.status))
		s.MockDuration.Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("metrics: response writer does not support hijacking")
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
