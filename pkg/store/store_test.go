package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestDefaultDirs_RespectXDG(t *testing.T) {
	data := t.TempDir()
	conf := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	t.Setenv("XDG_CONFIG_HOME", conf)

	assert.Equal(t, filepath.Join(data, "apilab"), DefaultDataDir())
	assert.Equal(t, filepath.Join(conf, "apilab"), DefaultConfigDir())
}

func TestConfig_DatabasePath(t *testing.T) {
	cfg := Config{DataDir: "/var/lib/apilab"}
	assert.Equal(t, filepath.Join("/var/lib/apilab", "apilab.db"), cfg.DatabasePath())

	cfg.SQLitePath = "/tmp/x.db"
	assert.Equal(t, "/tmp/x.db", cfg.DatabasePath())
}
