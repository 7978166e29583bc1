package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apilab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4280, cfg.Server.APIPort)
	assert.Equal(t, store.BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 50, cfg.Runner.KeepRuns)
	assert.Equal(t, SourceDefault, cfg.Source("server.apiPort"))
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  apiPort: 9000
  corsOrigins: [https://app.example.com]
storage:
  backend: sqlite
  dataDir: /var/lib/apilab
runner:
  defaultTimeout: 5s
  concurrency: 4
`)
	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, 9000, cfg.Server.APIPort)
	assert.Equal(t, 4281, cfg.Server.MockPort, "absent keys keep defaults")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, store.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Runner.DefaultTimeout)
	assert.Equal(t, 4, cfg.Runner.Concurrency)
	assert.Equal(t, 50, cfg.Runner.KeepRuns)
	assert.Equal(t, SourceFile, cfg.Source("server.apiPort"))
	assert.Equal(t, SourceDefault, cfg.Source("server.mockPort"))
	assert.Equal(t, filepath.Join("/var/lib/apilab", "content"), cfg.ContentDir())
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	err = cfg.LoadFile(writeConfig(t, "server:\n  apiPort: [\n"))
	var ferr *FileError
	require.ErrorAs(t, err, &ferr)

	err = cfg.LoadFile(writeConfig(t, "server:\n  apiPrt: 1\n"))
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, err.Error(), "apiPrt")
	assert.Equal(t, 2, ferr.Line)

	require.NoError(t, cfg.LoadFile(writeConfig(t, "")))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvAPIPort:        "8080",
		EnvCORSOrigins:    "https://a.example, https://b.example ,",
		EnvStorageBackend: "SQLite",
		EnvAuthSecret:     strings.Repeat("s", 32),
		EnvTokenTTL:       "1h",
		EnvLogLevel:       "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.APIPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, store.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, SourceEnv, cfg.Source("auth.secret"))
	assert.Equal(t, logging.LevelDebug, cfg.Logging().Level)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_ReportsAllBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvAPIPort:       "eighty",
		EnvRunnerTimeout: "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvAPIPort)
	assert.Contains(t, err.Error(), EnvRunnerTimeout)
	assert.Equal(t, 4280, cfg.Server.APIPort)
}

func TestLoad_Layering(t *testing.T) {
	path := writeConfig(t, "server:\n  apiPort: 9000\n  mockPort: 9001\n")
	t.Setenv(EnvAPIPort, "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.APIPort, "env beats file")
	assert.Equal(t, 9001, cfg.Server.MockPort)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Server.APIPort = 0
	cfg.Server.MockPort = 70000
	cfg.Storage.Backend = "postgres"
	cfg.Auth.Secret = "short"
	cfg.Auth.BootstrapEmail = "admin@example.com"
	cfg.Runner.Concurrency = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"server.apiPort", "server.mockPort", "storage.backend", "auth.secret",
		"bootstrapEmail and bootstrapPassword", "runner.concurrency", "log.format",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_Bootstrap(t *testing.T) {
	cfg := Default()
	cfg.Auth.BootstrapEmail = "not an email"
	cfg.Auth.BootstrapPassword = "short"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.bootstrapEmail")
	assert.Contains(t, err.Error(), "auth.bootstrapPassword")

	cfg.Auth.BootstrapEmail = "admin@example.com"
	cfg.Auth.BootstrapPassword = "long enough"
	assert.NoError(t, cfg.Validate())
}

func TestMockPortZeroDisables(t *testing.T) {
	cfg := Default()
	cfg.Server.MockPort = 0
	assert.NoError(t, cfg.Validate())
}
