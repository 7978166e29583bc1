package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/getmockd/apilab/pkg/config"
	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/store"
	"github.com/getmockd/apilab/pkg/store/file"
	"github.com/getmockd/apilab/pkg/store/sqlite"
)

// loadConfig loads the configuration named by --config (or the one Find
// locates) and applies the global --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		cfg.Set("log.level", config.SourceFlag)
	}
	return cfg, nil
}

// newLogger opens the operational logger described by cfg.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	lc := cfg.Logging()
	lc.Output = stderr
	return logging.Open(lc)
}

// openStore creates and opens the configured storage backend.
func openStore(ctx context.Context, cfg store.Config, log *slog.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.Backend {
	case store.BackendSQLite:
		st = sqlite.New(cfg, sqlite.WithLogger(log))
	case store.BackendFile, "":
		st = file.New(cfg, file.WithLogger(log))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err := st.Open(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return st, nil
}
