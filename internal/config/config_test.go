package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  host: db\n  name: facewatch\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 0.4, cfg.Matching.MinCosine)
	assert.InDelta(t, 1.0954, cfg.Matching.Tolerance, 1e-4)
	assert.Equal(t, 60*time.Second, cfg.Detection.Timeout)
	assert.Equal(t, 30, cfg.Stats.DefaultWindowDays)
	assert.Equal(t, 10, cfg.Stats.TopMatches)
	assert.Equal(t, 20, cfg.Stats.RecentEvents)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "postgres://:@db:5432/facewatch?sslmode=disable", cfg.Database.DSN())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\nmatching:\n  tolerance: 0.5\n")

	t.Setenv("FW_SERVER_PORT", "9100")
	t.Setenv("FW_MATCH_TOLERANCE", "0.45")
	t.Setenv("FW_API_KEYS", "k1=alice, k2=bob,broken")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 0.45, cfg.Matching.Tolerance)
	assert.Equal(t, map[string]string{"k1": "alice", "k2": "bob"}, cfg.Server.APIKeys)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"tolerance above unit-vector range", "matching:\n  tolerance: 2.5\n"},
		{"negative tolerance", "matching:\n  tolerance: -0.1\n"},
		{"default window above max", "stats:\n  default_window_days: 400\n  max_window_days: 90\n"},
		{"unknown timezone", "stats:\n  timezone: Mars/Olympus\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadToleranceForUnitEmbeddings(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"explicit arcface tolerance", "matching:\n  tolerance: 1.095\n", 1.095},
		{"derived from cosine", "matching:\n  min_cosine: 0.5\n", 1.0},
		{"explicit tolerance wins", "matching:\n  tolerance: 0.9\n  min_cosine: 0.5\n", 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, cfg.Matching.Tolerance, 1e-9)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
