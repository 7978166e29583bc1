package config

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/store"
)

// MinSecretLength is the shortest accepted token signing secret.
const MinSecretLength = 32

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validPort(c.Server.APIPort) {
		add("server.apiPort: %d is not a valid port", c.Server.APIPort)
	}
	if c.Server.MockPort != 0 && !validPort(c.Server.MockPort) {
		add("server.mockPort: %d is not a valid port", c.Server.MockPort)
	}
	if c.Server.MockPort != 0 && c.Server.MockPort == c.Server.APIPort {
		add("server.mockPort: must differ from server.apiPort")
	}
	if c.Server.ReadTimeout <= 0 {
		add("server.readTimeout: must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		add("server.writeTimeout: must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.maxBodyBytes: must be positive")
	}

	switch c.Storage.Backend {
	case store.BackendFile, store.BackendSQLite:
	default:
		add("storage.backend: %q is not one of file, sqlite", c.Storage.Backend)
	}

	if c.Auth.Secret != "" && len(c.Auth.Secret) < MinSecretLength {
		add("auth.secret: must be at least %d bytes", MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		add("auth.tokenTTL: must be positive")
	}
	if c.Auth.LoginAttemptsPerMinute < 0 {
		add("auth.loginAttemptsPerMinute: must not be negative")
	}
	email, password := c.Auth.BootstrapEmail, c.Auth.BootstrapPassword
	switch {
	case email == "" && password == "":
	case email == "" || password == "":
		add("auth: bootstrapEmail and bootstrapPassword must be set together")
	default:
		if _, err := mail.ParseAddress(email); err != nil {
			add("auth.bootstrapEmail: %q is not a valid address", email)
		}
		if len(password) < auth.MinPasswordLength {
			add("auth.bootstrapPassword: must be at least %d characters", auth.MinPasswordLength)
		}
	}

	if c.Runner.DefaultTimeout <= 0 {
		add("runner.defaultTimeout: must be positive")
	}
	if c.Runner.Concurrency < 1 {
		add("runner.concurrency: must be at least 1")
	}
	if c.Runner.KeepRuns < 0 {
		add("runner.keepRuns: must not be negative")
	}
	if c.Mock.RequestLogSize < 1 {
		add("mock.requestLogSize: must be at least 1")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level: %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format: %q is not one of text, json", c.Log.Format)
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
