package template

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
)

// Context holds the data an expression may refer to. Every field is
// optional.
type Context struct {
	// Vars are environment variables referenced by bare name.
	Vars map[string]string
	// Params are path parameters captured by a route.
	Params map[string]string
	// Query holds the request's query parameters.
	Query url.Values

	Method  string
	Path    string
	Headers http.Header
	Body    []byte

	bodyOnce sync.Once
	bodyJSON map[string]any
}

// NewRequestContext builds a context from an incoming request and the path
// parameters its route captured. body is the already-read request body.
func NewRequestContext(r *http.Request, params map[string]string, body []byte) *Context {
	return &Context{
		Params:  params,
		Query:   r.URL.Query(),
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header,
		Body:    body,
	}
}

// hasRequest reports whether the context was built from an incoming request.
func (c *Context) hasRequest() bool {
	return c.Method != ""
}

// jsonBody decodes Body once; non-object bodies yield nil.
func (c *Context) jsonBody() map[string]any {
	c.bodyOnce.Do(func() {
		if len(c.Body) == 0 {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(c.Body, &m); err == nil {
			c.bodyJSON = m
		}
	})
	return c.bodyJSON
}
