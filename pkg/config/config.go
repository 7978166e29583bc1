package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/store"
)

// Value sources.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Storage store.Config  `yaml:"storage" json:"storage"`
	Content ContentConfig `yaml:"content" json:"content"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Runner  RunnerConfig  `yaml:"runner" json:"runner"`
	Mock    MockConfig    `yaml:"mock" json:"mock"`
	Log     LogConfig     `yaml:"log" json:"log"`

	// Sources maps dotted keys to the layer that last set them.
	Sources map[string]string `yaml:"-" json:"-"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host    string `yaml:"host" json:"host"`
	APIPort int    `yaml:"apiPort" json:"apiPort"`

	// MockPort serves mock endpoints. 0 disables the mock listener.
	MockPort int `yaml:"mockPort" json:"mockPort"`

	ReadTimeout  time.Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout"`
	CORSOrigins  []string      `yaml:"corsOrigins" json:"corsOrigins"`

	// MaxBodyBytes caps API request bodies.
	MaxBodyBytes int64 `yaml:"maxBodyBytes" json:"maxBodyBytes"`
}

// ContentConfig configures the content manager.
type ContentConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// AuthConfig configures signed tokens and the first admin account.
type AuthConfig struct {
	Secret            string        `yaml:"secret" json:"-"`
	TokenTTL          time.Duration `yaml:"tokenTTL" json:"tokenTTL"`
	BootstrapEmail    string        `yaml:"bootstrapEmail" json:"bootstrapEmail,omitempty"`
	BootstrapPassword string        `yaml:"bootstrapPassword" json:"-"`

	// LoginAttemptsPerMinute throttles POST /auth/login per client address.
	// 0 disables the limit.
	LoginAttemptsPerMinute int `yaml:"loginAttemptsPerMinute" json:"loginAttemptsPerMinute"`
}

// RunnerConfig configures the test runner.
type RunnerConfig struct {
	DefaultTimeout time.Duration `yaml:"defaultTimeout" json:"defaultTimeout"`

	// Concurrency is the number of tests of one run in flight at once.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// KeepRuns is the number of runs kept per suite. 0 keeps all.
	KeepRuns int `yaml:"keepRuns" json:"keepRuns"`
}

// MockConfig configures the mock server.
type MockConfig struct {
	RequestLogSize int `yaml:"requestLogSize" json:"requestLogSize"`
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "",
			APIPort:      4280,
			MockPort:     4281,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			MaxBodyBytes: 2 << 20,
		},
		Storage: store.DefaultConfig(),
		Content: ContentConfig{},
		Auth: AuthConfig{
			TokenTTL:               24 * time.Hour,
			LoginAttemptsPerMinute: 20,
		},
		Runner: RunnerConfig{
			DefaultTimeout: 30 * time.Second,
			Concurrency:    1,
			KeepRuns:       50,
		},
		Mock:    MockConfig{RequestLogSize: 1000},
		Log:     LogConfig{Level: "info", Format: "text"},
		Sources: map[string]string{},
	}
}

// ContentDir returns the content directory, defaulting to a "content"
// directory beside the data.
func (c *Config) ContentDir() string {
	if c.Content.Dir != "" {
		return c.Content.Dir
	}
	dir := c.Storage.DataDir
	if dir == "" {
		dir = store.DefaultDataDir()
	}
	return filepath.Join(dir, "content")
}

// Logging converts the log section for logging.Open.
func (c *Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Log.Level)
	lc.Format = logging.ParseFormat(c.Log.Format)
	lc.File = c.Log.File
	return lc
}

// LogValue keeps secrets out of structured logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("api_port", c.Server.APIPort),
		slog.Int("mock_port", c.Server.MockPort),
		slog.String("storage", string(c.Storage.Backend)),
		slog.String("data_dir", c.Storage.DataDir),
		slog.String("content_dir", c.ContentDir()),
		slog.Int("runner_concurrency", c.Runner.Concurrency),
	)
}

// Set records that key was set by source.
func (c *Config) Set(key, source string) {
	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[key] = source
}

// Source reports which layer set key.
func (c *Config) Source(key string) string {
	if s, ok := c.Sources[key]; ok {
		return s
	}
	return SourceDefault
}
