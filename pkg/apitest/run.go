package apitest

import (
	"net/http"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunError   RunStatus = "error"
)

// MaxStoredBodyBytes bounds the response body kept on a Result.
const MaxStoredBodyBytes = 64 << 10

// Run is one execution of a suite.
type Run struct {
	ID            string    `json:"id"`
	SuiteID       string    `json:"suiteId,omitempty"`
	SuiteName     string    `json:"suiteName,omitempty"`
	EnvironmentID string    `json:"environmentId,omitempty"`
	Status        RunStatus `json:"status"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt,omitzero"`
	DurationMs    int64     `json:"durationMs"`
	Total         int       `json:"total"`
	Passed        int       `json:"passed"`
	Failed        int       `json:"failed"`
	Errored       int       `json:"errored"`
	Results       []Result  `json:"results,omitempty"`
}

// Result is the outcome of one test within a run.
type Result struct {
	TestID          string            `json:"testId,omitempty"`
	TestName        string            `json:"testName"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Passed          bool              `json:"passed"`
	StatusCode      int               `json:"statusCode,omitempty"`
	ResponseTimeMs  int64             `json:"responseTimeMs"`
	ResponseHeaders http.Header       `json:"responseHeaders,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	BodyTruncated   bool              `json:"bodyTruncated,omitempty"`
	Error           string            `json:"error,omitempty"`
	Assertions      []AssertionResult `json:"assertions,omitempty"`
}

// AssertionResult is the outcome of one assertion.
type AssertionResult struct {
	Assertion Assertion `json:"assertion"`
	Passed    bool      `json:"passed"`
	Actual    any       `json:"actual,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Tally recomputes the counters and final status from Results.
//
// A result with an Error counts as errored, one with a failing assertion as
// failed. The run fails if anything failed; it is an error only when every
// executed test errored.
func (r *Run) Tally() {
	r.Total = len(r.Results)
	r.Passed, r.Failed, r.Errored = 0, 0, 0
	for i := range r.Results {
		switch res := &r.Results[i]; {
		case res.Error != "":
			r.Errored++
		case res.Passed:
			r.Passed++
		default:
			r.Failed++
		}
	}

	switch {
	case r.Total > 0 && r.Errored == r.Total:
		r.Status = RunError
	case r.Failed > 0 || r.Errored > 0:
		r.Status = RunFailed
	default:
		r.Status = RunPassed
	}
}

// Finish stamps the end time and duration and tallies the results.
func (r *Run) Finish(now time.Time) {
	r.FinishedAt = now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
	r.Tally()
}
