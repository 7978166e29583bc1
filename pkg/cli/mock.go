package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/mockserver"
	"github.com/getmockd/apilab/pkg/openapi"
	"github.com/getmockd/apilab/pkg/requestlog"
)

var (
	mockOpenAPI []string
	mockHost    string
	mockPort    int
)

var mockCmd = &cobra.Command{
	Use:   "mock [collection-file]...",
	Short: "Serve mock endpoints from files without the API or a store",
	Long: `Serve mock endpoints read from collection files (YAML or JSON with an
"endpoints" list) and/or OpenAPI 3 documents. Nothing is persisted; the
server stops on SIGINT or SIGTERM.`,
	Example: `  # Serve a collection on the configured mock port
  apilab mock mocks/users.yaml

  # Stub every operation of an OpenAPI document
  apilab mock --openapi petstore.yaml --port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(mockOpenAPI) == 0 {
			return ErrNoMockFiles
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		port := cfg.Server.MockPort
		if cmd.Flags().Changed("port") || port == 0 {
			port = mockPort
		}
		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host = mockHost
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		endpoints, err := loadMockInputs(ctx, args, mockOpenAPI)
		if err != nil {
			return err
		}

		log, closer, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer closer.Close()

		srv := mockserver.New(mockserver.StaticSource(endpoints),
			mockserver.WithLogger(log),
			mockserver.WithRequestLog(requestlog.NewMemoryStore(cfg.Mock.RequestLogSize)),
		)
		if err := srv.Reload(ctx); err != nil {
			return err
		}
		log.Info("loaded mock endpoints", "count", srv.Count())

		return serveAll(ctx, log, []*namedServer{{
			name: "mock",
			srv: &http.Server{
				Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      cfg.Server.WriteTimeout + mock.MaxDelayMs*time.Millisecond,
			},
		}})
	},
}

func init() {
	f := mockCmd.Flags()
	f.StringArrayVar(&mockOpenAPI, "openapi", nil, "OpenAPI 3 document to stub (repeatable)")
	f.StringVar(&mockHost, "host", "", "Interface to listen on")
	f.IntVarP(&mockPort, "port", "p", 4281, "Port to listen on (default: server.mockPort)")
	rootCmd.AddCommand(mockCmd)
}

// loadMockInputs reads every collection and OpenAPI file into one validated
// endpoint list.
func loadMockInputs(ctx context.Context, collections, documents []string) ([]*mock.Endpoint, error) {
	var endpoints []*mock.Endpoint
	for _, path := range collections {
		coll, err := loadCollection(path)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, coll.Endpoints...)
	}
	for _, path := range documents {
		doc, err := openapi.LoadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		endpoints = append(endpoints, openapi.Endpoints(doc)...)
	}
	now := time.Now()
	for i, ep := range endpoints {
		if ep.ID == "" {
			ep.ID = id.UUID()
		}
		// Creation order breaks ties between equally specific routes.
		ep.CreatedAt = now.Add(time.Duration(i))
		ep.UpdatedAt = ep.CreatedAt
	}
	return endpoints, nil
}

// loadCollection parses a collection file and validates its endpoints.
func loadCollection(path string) (*mock.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var coll mock.Collection
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &coll)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &coll)
	default:
		return nil, fmt.Errorf("%s: unsupported collection format (want .yaml, .yml or .json)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, ep := range coll.Endpoints {
		if ep == nil {
			return nil, fmt.Errorf("%s: endpoint %d is empty", path, i)
		}
		ep.Normalize()
		if err := ep.Validate(); err != nil {
			return nil, fmt.Errorf("%s: endpoint %d (%s %s): %w", path, i, ep.Method, ep.Path, err)
		}
	}
	return &coll, nil
}
