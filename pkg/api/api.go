package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/cms"
	"github.com/getmockd/apilab/pkg/events"
	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/metrics"
	"github.com/getmockd/apilab/pkg/mockserver"
	"github.com/getmockd/apilab/pkg/ratelimit"
	"github.com/getmockd/apilab/pkg/runner"
	"github.com/getmockd/apilab/pkg/store"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 2 << 20

// Server serves the REST API.
type Server struct {
	store   store.Store
	auth    *auth.Service
	runner  *runner.Runner
	content *cms.Repository
	mocks   *mockserver.Server
	hub     *events.Hub
	logins  *ratelimit.Limiter
	metrics *metrics.Set
	log     *slog.Logger

	corsOrigins  []string
	maxBodyBytes int64
	version      string
	startTime    time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithRunner sets the runner used by the run endpoints. Without one a runner
// over the server's store is created.
func WithRunner(r *runner.Runner) Option {
	return func(s *Server) {
		s.runner = r
	}
}

// WithContent enables the schema and content routes.
func WithContent(repo *cms.Repository) Option {
	return func(s *Server) {
		s.content = repo
	}
}

// WithMockServer lets the API reload mocks after writes and expose the mock
// server's request log.
func WithMockServer(m *mockserver.Server) Option {
	return func(s *Server) {
		s.mocks = m
	}
}

// WithHub enables the /events stream and data change events.
func WithHub(h *events.Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithLoginLimiter throttles POST /auth/login per client address.
func WithLoginLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.logins = l
	}
}

// WithMetrics instruments every route and serves GET /metrics.
func WithMetrics(m *metrics.Set) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = logging.OrNop(l)
	}
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
// "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates an API server over st. authSvc authenticates every protected
// route.
func New(st store.Store, authSvc *auth.Service, opts ...Option) *Server {
	s := &Server{
		store:        st,
		auth:         authSvc,
		log:          logging.Nop(),
		maxBodyBytes: DefaultMaxBodyBytes,
		version:      "dev",
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = runner.New(
			runner.WithStore(st),
			runner.WithHub(s.hub),
			runner.WithMetrics(s.metrics),
			runner.WithLogger(s.log),
		)
	}
	return s
}

// Handler returns the API wrapped in its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	// Instrumentation sits directly on the mux to see the matched pattern.
	h := s.metrics.InstrumentAPI(mux)
	h = limitBody(s.maxBodyBytes)(h)
	h = newCORS(s.corsOrigins).Handler(h)
	h = logRequests(s.log)(h)
	h = recoverPanics(s.log)(h)
	return h
}

// publish emits a data change event when a hub is configured.
func (s *Server) publish(collection, op, id string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Event{
		Type: events.TypeDataChanged,
		Data: map[string]string{"collection": collection, "operation": op, "id": id},
	})
}
