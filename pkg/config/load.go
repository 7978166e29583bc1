package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/apilab/pkg/store"
)

// FileNames are searched for, in order, when no path is given.
var FileNames = []string{"apilab.yaml", "apilab.yml"}

// ErrFileNotFound is returned when an explicit config path does not exist.
var ErrFileNotFound = errors.New("configuration file not found")

// FileError is a configuration file that could not be parsed.
type FileError struct {
	Path string
	Line int
	Err  error
}

func (e *FileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d): %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Find returns the first config file found in the working directory or the
// XDG config directory, or "" when there is none.
func Find() string {
	dirs := []string{"."}
	dirs = append(dirs, store.DefaultConfigDir())
	for _, dir := range dirs {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

// Load builds the configuration from defaults, the file at path (or the
// first file Find locates when path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = Find()
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into c. Keys absent from the file
// keep their current values. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("read config: %w", err)
	}
	return c.decode(path, data)
}

func (c *Config) decode(path string, data []byte) error {
	var present map[string]any
	if err := yaml.Unmarshal(data, &present); err != nil {
		return &FileError{Path: path, Line: yamlLine(err), Err: err}
	}
	if len(present) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &FileError{Path: path, Line: yamlLine(err), Err: err}
	}

	for section, v := range present {
		keys, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for key := range keys {
			c.Set(section+"."+key, SourceFile)
		}
	}
	return nil
}

// yamlLine pulls the first line number out of a yaml.v3 error message.
func yamlLine(err error) int {
	msg := err.Error()
	_, after, ok := strings.Cut(msg, "line ")
	if !ok {
		return 0
	}
	end := strings.IndexFunc(after, func(r rune) bool { return r < '0' || r > '9' })
	if end <= 0 {
		return 0
	}
	n, _ := strconv.Atoi(after[:end])
	return n
}

// Environment variables read by ApplyEnv.
const (
	EnvAPIPort           = "APILAB_API_PORT"
	EnvMockPort          = "APILAB_MOCK_PORT"
	EnvHost              = "APILAB_HOST"
	EnvCORSOrigins       = "APILAB_CORS_ORIGINS"
	EnvStorageBackend    = "APILAB_STORAGE_BACKEND"
	EnvDataDir           = "APILAB_DATA_DIR"
	EnvSQLitePath        = "APILAB_SQLITE_PATH"
	EnvContentDir        = "APILAB_CONTENT_DIR"
	EnvAuthSecret        = "APILAB_AUTH_SECRET"
	EnvTokenTTL          = "APILAB_TOKEN_TTL"
	EnvBootstrapEmail    = "APILAB_BOOTSTRAP_EMAIL"
	EnvBootstrapPassword = "APILAB_BOOTSTRAP_PASSWORD"
	EnvLoginRate         = "APILAB_LOGIN_RATE"
	EnvRunnerTimeout     = "APILAB_RUNNER_TIMEOUT"
	EnvRunnerConcurrency = "APILAB_RUNNER_CONCURRENCY"
	EnvKeepRuns          = "APILAB_KEEP_RUNS"
	EnvLogLevel          = "APILAB_LOG_LEVEL"
	EnvLogFormat         = "APILAB_LOG_FORMAT"
)

// ApplyEnv overrides c with APILAB_* variables found by lookup. Malformed
// values are reported together.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(env, key string, dst *string) {
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
			c.Set(key, SourceEnv)
		}
	}
	num := func(env, key string, dst *int) {
		v, ok := lookup(env)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", env, v))
			return
		}
		*dst = n
		c.Set(key, SourceEnv)
	}
	dur := func(env, key string, dst *time.Duration) {
		v, ok := lookup(env)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a duration", env, v))
			return
		}
		*dst = d
		c.Set(key, SourceEnv)
	}

	num(EnvAPIPort, "server.apiPort", &c.Server.APIPort)
	num(EnvMockPort, "server.mockPort", &c.Server.MockPort)
	str(EnvHost, "server.host", &c.Server.Host)
	if v, ok := lookup(EnvCORSOrigins); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
		c.Set("server.corsOrigins", SourceEnv)
	}

	var backend string
	str(EnvStorageBackend, "storage.backend", &backend)
	if backend != "" {
		c.Storage.Backend = store.Backend(strings.ToLower(backend))
	}
	str(EnvDataDir, "storage.dataDir", &c.Storage.DataDir)
	str(EnvSQLitePath, "storage.sqlitePath", &c.Storage.SQLitePath)
	str(EnvContentDir, "content.dir", &c.Content.Dir)

	str(EnvAuthSecret, "auth.secret", &c.Auth.Secret)
	dur(EnvTokenTTL, "auth.tokenTTL", &c.Auth.TokenTTL)
	str(EnvBootstrapEmail, "auth.bootstrapEmail", &c.Auth.BootstrapEmail)
	str(EnvBootstrapPassword, "auth.bootstrapPassword", &c.Auth.BootstrapPassword)
	num(EnvLoginRate, "auth.loginAttemptsPerMinute", &c.Auth.LoginAttemptsPerMinute)

	dur(EnvRunnerTimeout, "runner.defaultTimeout", &c.Runner.DefaultTimeout)
	num(EnvRunnerConcurrency, "runner.concurrency", &c.Runner.Concurrency)
	num(EnvKeepRuns, "runner.keepRuns", &c.Runner.KeepRuns)

	str(EnvLogLevel, "log.level", &c.Log.Level)
	str(EnvLogFormat, "log.format", &c.Log.Format)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
