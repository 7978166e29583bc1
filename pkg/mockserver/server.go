package mockserver

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/internal/matching"
	"github.com/getmockd/apilab/pkg/httputil"
	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/requestlog"
	"github.com/getmockd/apilab/pkg/store"
	"github.com/getmockd/apilab/pkg/template"
)

// MaxRequestBodySize caps the request body the server will read.
const MaxRequestBodySize = 10 << 20

// EndpointSource supplies the endpoints to serve. store.EndpointStore
// satisfies it.
type EndpointSource interface {
	List(ctx context.Context) ([]*mock.Endpoint, error)
}

// StaticSource serves a fixed list of endpoints.
type StaticSource []*mock.Endpoint

// List returns the endpoints in declaration order.
func (s StaticSource) List(context.Context) ([]*mock.Endpoint, error) {
	return s, nil
}

// route is an endpoint with its compiled path pattern.
type route struct {
	endpoint *mock.Endpoint
	path     *matching.Route
	order    int
}

// Server is an http.Handler that answers requests from mock endpoints.
type Server struct {
	source EndpointSource
	log    *slog.Logger
	reqLog requestlog.Store

	routes   atomic.Pointer[[]route]
	reloadMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = logging.OrNop(log) }
}

// WithRequestLog replaces the default in-memory request log.
func WithRequestLog(l requestlog.Store) Option {
	return func(s *Server) {
		if l != nil {
			s.reqLog = l
		}
	}
}

// New creates a server reading endpoints from source. Endpoints are loaded on
// the first request or the first call to Reload.
func New(source EndpointSource, opts ...Option) *Server {
	s := &Server{
		source: source,
		log:    logging.Nop(),
		reqLog: requestlog.NewMemoryStore(requestlog.DefaultCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestLog returns the log of served requests.
func (s *Server) RequestLog() requestlog.Store {
	return s.reqLog
}

// Reload re-reads endpoints from the source and recompiles their routes.
// Endpoints whose path does not compile are skipped with a warning.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	endpoints, err := s.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list endpoints: %w", err)
	}

	routes := make([]route, 0, len(endpoints))
	for i, e := range endpoints {
		if e == nil || !e.IsEnabled() {
			continue
		}
		compiled, err := matching.CompileRoute(e.Path)
		if err != nil {
			s.log.Warn("skipping mock endpoint with invalid path", "id", e.ID, "path", e.Path, "error", err)
			continue
		}
		routes = append(routes, route{endpoint: e, path: compiled, order: i})
	}

	// Priority first, then specificity, then creation order.
	slices.SortStableFunc(routes, func(a, b route) int {
		if c := cmp.Compare(b.endpoint.Priority, a.endpoint.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(b.path.Score(), a.path.Score()); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})

	s.routes.Store(&routes)
	s.log.Debug("mock endpoints loaded", "count", len(routes))
	return nil
}

// Watch reloads the server whenever endpoints change in st.
func (s *Server) Watch(st store.Store) {
	st.AddChangeListener(func(ev store.ChangeEvent) {
		if ev.Collection != store.CollectionEndpoints {
			return
		}
		if err := s.Reload(context.Background()); err != nil {
			s.log.Error("failed to reload mock endpoints", "error", err)
		}
	})
}

// Count returns the number of endpoints currently served.
func (s *Server) Count() int {
	if p := s.routes.Load(); p != nil {
		return len(*p)
	}
	return 0
}

func (s *Server) loadedRoutes(ctx context.Context) []route {
	if p := s.routes.Load(); p != nil {
		return *p
	}
	if err := s.Reload(ctx); err != nil {
		s.log.Error("failed to load mock endpoints", "error", err)
		return nil
	}
	return *s.routes.Load()
}

// match is a selected endpoint and the path parameters it captured.
type match struct {
	endpoint *mock.Endpoint
	params   map[string]string
}

// selectEndpoint returns the first route in serving order that accepts the
// request. Among routes of equal priority, header and query criteria make a
// route more specific.
func selectEndpoint(routes []route, r *http.Request) *match {
	var (
		best      *match
		bestPrio  int
		bestScore int
	)
	query := r.URL.Query()
	for _, rt := range routes {
		e := rt.endpoint
		if best != nil && e.Priority < bestPrio {
			break
		}
		if !matching.MatchMethod(e.Method, r.Method) {
			continue
		}
		params, ok := rt.path.Match(r.URL.Path)
		if !ok {
			continue
		}
		headerScore, ok := matching.MatchHeaders(e.MatchHeaders, r.Header)
		if !ok {
			continue
		}
		queryScore, ok := matching.MatchQuery(e.MatchQuery, query)
		if !ok {
			continue
		}
		score := rt.path.Score() + headerScore + queryScore
		if best == nil || score > bestScore {
			best = &match{endpoint: e, params: params}
			bestPrio, bestScore = e.Priority, score
		}
	}
	return best
}

// ServeHTTP answers r from the best matching endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	entry := &requestlog.Entry{
		ID:          id.ULID(),
		Timestamp:   start,
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Headers:     maps.Clone(map[string][]string(r.Header)),
		RemoteAddr:  r.RemoteAddr,
	}
	defer func() {
		entry.DurationMs = time.Since(start).Milliseconds()
		s.reqLog.Log(entry)
	}()

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.log.Warn("request body too large", "path", r.URL.Path, "limit", MaxRequestBodySize)
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body exceeds maximum allowed size")
			entry.ResponseStatus = http.StatusRequestEntityTooLarge
			entry.Error = "request body too large"
			return
		}
		s.log.Warn("failed to read request body", "path", r.URL.Path, "error", err)
	}
	entry.Body = requestlog.Truncate(string(body))
	entry.BodySize = len(body)

	routes := s.loadedRoutes(r.Context())
	m := selectEndpoint(routes, r)
	if m == nil && r.Method == http.MethodHead {
		get := r.Clone(r.Context())
		get.Method = http.MethodGet
		m = selectEndpoint(routes, get)
	}

	if m == nil {
		entry.ResponseStatus = http.StatusNotFound
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error":   "no_match",
			"message": "No mock endpoint matched the request",
			"path":    r.URL.Path,
			"method":  r.Method,
		})
		return
	}

	entry.MatchedEndpointID = m.endpoint.ID
	entry.PathParams = m.params
	s.log.Debug("request matched", "method", r.Method, "path", r.URL.Path, "endpoint_id", m.endpoint.ID)

	if !s.wait(r.Context(), m.endpoint.Delay()) {
		entry.Error = "client disconnected during delay"
		s.log.Debug("client went away during mock delay", "path", r.URL.Path, "endpoint_id", m.endpoint.ID)
		return
	}

	status, respBody := writeResponse(w, r, m, body)
	entry.ResponseStatus = status
	entry.ResponseBody = requestlog.Truncate(respBody)
}

// wait blocks for d or until ctx is done. It reports whether the full delay
// elapsed.
func (s *Server) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeResponse writes the endpoint's canned response with templates
// expanded and returns the status and body sent.
func writeResponse(w http.ResponseWriter, r *http.Request, m *match, reqBody []byte) (int, string) {
	e := m.endpoint
	tmplCtx := template.NewRequestContext(r, m.params, reqBody)

	userSetContentType := false
	for name, value := range e.Headers {
		w.Header().Set(name, template.Process(value, tmplCtx))
		if strings.EqualFold(name, "Content-Type") {
			userSetContentType = true
		}
	}

	body := template.Process(e.Body, tmplCtx)
	if !userSetContentType && body != "" {
		if json.Valid([]byte(body)) {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
	}

	status := e.EffectiveStatus()
	w.WriteHeader(status)
	if body != "" {
		_, _ = io.WriteString(w, body)
	}
	return status, body
}
