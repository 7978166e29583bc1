package requestlog

import "time"

// MaxBodyBytes bounds the request and response bodies kept on an entry.
const MaxBodyBytes = 10 << 10

// Entry captures one request/response pair.
type Entry struct {
	ID          string              `json:"id"`
	Timestamp   time.Time           `json:"timestamp"`
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	QueryString string              `json:"queryString,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`

	// Body is the request body, truncated to MaxBodyBytes.
	Body     string `json:"body,omitempty"`
	BodySize int    `json:"bodySize"`

	RemoteAddr string `json:"remoteAddr"`

	// MatchedEndpointID is empty when no endpoint matched.
	MatchedEndpointID string            `json:"matchedEndpointId,omitempty"`
	PathParams        map[string]string `json:"pathParams,omitempty"`

	ResponseStatus int    `json:"responseStatus"`
	ResponseBody   string `json:"responseBody,omitempty"`
	DurationMs     int64  `json:"durationMs"`
	Error          string `json:"error,omitempty"`
}

// Truncate returns s cut to MaxBodyBytes.
func Truncate(s string) string {
	if len(s) > MaxBodyBytes {
		return s[:MaxBodyBytes]
	}
	return s
}
