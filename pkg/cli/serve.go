package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/apilab/pkg/api"
	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/cms"
	"github.com/getmockd/apilab/pkg/config"
	"github.com/getmockd/apilab/pkg/events"
	"github.com/getmockd/apilab/pkg/metrics"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/mockserver"
	"github.com/getmockd/apilab/pkg/ratelimit"
	"github.com/getmockd/apilab/pkg/requestlog"
	"github.com/getmockd/apilab/pkg/runner"
	"github.com/getmockd/apilab/pkg/store"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

// serveFlags holds the serve command's overrides.
type serveFlags struct {
	host        string
	apiPort     int
	mockPort    int
	backend     string
	dataDir     string
	contentDir  string
	corsOrigins []string
}

var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API and the mock server (foreground)",
	Long: `Start the REST API and, unless --mock-port is 0, the mock server.

Both stop gracefully on SIGINT or SIGTERM. When no user exists yet and
auth.bootstrapEmail / auth.bootstrapPassword are set, an admin account is
created on startup.`,
	Example: `  # Start with defaults (API on :4280, mocks on :4281)
  apilab serve

  # Use SQLite and custom ports
  apilab serve --storage sqlite --api-port 8080 --mock-port 8081

  # API only
  apilab serve --mock-port 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		serveFlagVals.apply(cmd, cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlagVals.host, "host", "", "Interface to listen on (default: all)")
	f.IntVar(&serveFlagVals.apiPort, "api-port", 0, "REST API port")
	f.IntVar(&serveFlagVals.mockPort, "mock-port", 0, "Mock server port (0 disables it)")
	f.StringVar(&serveFlagVals.backend, "storage", "", "Storage backend: file or sqlite")
	f.StringVar(&serveFlagVals.dataDir, "data-dir", "", "Data directory")
	f.StringVar(&serveFlagVals.contentDir, "content-dir", "", "Content directory (default: <data-dir>/content)")
	f.StringSliceVar(&serveFlagVals.corsOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, * for any)")
	rootCmd.AddCommand(serveCmd)
}

// apply copies flags the user set onto cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Server.Host = f.host
		cfg.Set("server.host", config.SourceFlag)
	}
	if changed("api-port") {
		cfg.Server.APIPort = f.apiPort
		cfg.Set("server.apiPort", config.SourceFlag)
	}
	if changed("mock-port") {
		cfg.Server.MockPort = f.mockPort
		cfg.Set("server.mockPort", config.SourceFlag)
	}
	if changed("storage") {
		cfg.Storage.Backend = store.Backend(f.backend)
		cfg.Set("storage.backend", config.SourceFlag)
	}
	if changed("data-dir") {
		cfg.Storage.DataDir = f.dataDir
		cfg.Set("storage.dataDir", config.SourceFlag)
	}
	if changed("content-dir") {
		cfg.Content.Dir = f.contentDir
		cfg.Set("content.dir", config.SourceFlag)
	}
	if changed("cors-origin") {
		cfg.Server.CORSOrigins = f.corsOrigins
		cfg.Set("server.corsOrigins", config.SourceFlag)
	}
}

// ephemeralSecret generates a signing key for a single process lifetime.
func ephemeralSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// runServe wires every component and blocks until ctx is cancelled or a
// listener fails.
func runServe(ctx context.Context, cfg *config.Config) error {
	ephemeral := cfg.Auth.Secret == ""
	if ephemeral {
		cfg.Auth.Secret = ephemeralSecret()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	log, closer, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	if ephemeral {
		log.Warn("auth.secret is not set; using a random key, tokens will not survive a restart")
	}
	log.Info("starting apilab", "version", Version, "config", cfg)

	st, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(st.Users(), issuer, log)
	if _, err := authSvc.Bootstrap(ctx, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword); err != nil {
		return err
	}
	if n, err := st.Users().Count(ctx); err == nil && n == 0 {
		log.Warn("no users exist; create one with 'apilab user add' or set auth.bootstrapEmail")
	}

	content, err := cms.NewRepository(cfg.ContentDir(), cms.WithLogger(log))
	if err != nil {
		return err
	}

	hub := events.NewHub(0)
	defer hub.Close()

	m := metrics.NewSet()
	m.NewGaugeFunc("apilab_event_subscribers", "Connected /events clients.", func() float64 {
		return float64(hub.Subscribers())
	})

	testRunner := runner.New(
		runner.WithStore(st),
		runner.WithHub(hub),
		runner.WithMetrics(m),
		runner.WithLogger(log),
		runner.WithConcurrency(cfg.Runner.Concurrency),
		runner.WithDefaultTimeout(cfg.Runner.DefaultTimeout),
		runner.WithKeepRuns(cfg.Runner.KeepRuns),
	)

	mocks := mockserver.New(st.Endpoints(),
		mockserver.WithLogger(log),
		mockserver.WithRequestLog(requestlog.NewMemoryStore(cfg.Mock.RequestLogSize)),
	)
	mocks.Watch(st)
	if err := mocks.Reload(ctx); err != nil {
		return err
	}
	m.NewGaugeFunc("apilab_mock_endpoints", "Loaded mock endpoints.", func() float64 {
		return float64(mocks.Count())
	})

	var logins *ratelimit.Limiter
	if n := cfg.Auth.LoginAttemptsPerMinute; n > 0 {
		logins = ratelimit.New(ratelimit.Config{PerMinute: n})
		defer logins.Close()
	}

	apiServer := api.New(st, authSvc,
		api.WithRunner(testRunner),
		api.WithContent(content),
		api.WithMockServer(mocks),
		api.WithHub(hub),
		api.WithLoginLimiter(logins),
		api.WithMetrics(m),
		api.WithLogger(log),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithVersion(Version),
	)

	servers := []*namedServer{{
		name: "api",
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.APIPort)),
			Handler:           apiServer.Handler(),
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}}
	if cfg.Server.MockPort != 0 {
		servers = append(servers, &namedServer{
			name: "mock",
			srv: &http.Server{
				Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.MockPort)),
				Handler:           m.InstrumentMock(mocks),
				ReadTimeout:       cfg.Server.ReadTimeout,
				ReadHeaderTimeout: 10 * time.Second,
				// Leave room for the longest configured delay.
				WriteTimeout: cfg.Server.WriteTimeout + mock.MaxDelayMs*time.Millisecond,
			},
		})
	}
	return serveAll(ctx, log, servers)
}

type namedServer struct {
	name string
	srv  *http.Server
}

// serveAll binds every server first so a port conflict fails fast, then
// serves until ctx is done and shuts them all down.
func serveAll(ctx context.Context, log *slog.Logger, servers []*namedServer) error {
	listeners := make([]net.Listener, 0, len(servers))
	for _, s := range servers {
		ln, err := net.Listen("tcp", s.srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("%s server: %w", s.name, err)
		}
		listeners = append(listeners, ln)
		log.Info(s.name+" server listening", "addr", ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range servers {
		ln := listeners[i]
		g.Go(func() error {
			if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			if err := s.srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("%s server shutdown: %w", s.name, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
