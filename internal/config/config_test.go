package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candor/internal/scoring"
	"candor/pkg/database/client"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GRPCAddr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, client.DialectSQLite, cfg.DB.Dialect)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Interview.SnapshotTTL)
	assert.Equal(t, 3, cfg.Interview.Session.MaxSkills)
	assert.Equal(t, 2, cfg.Interview.Session.PerSkillCount)
	assert.True(t, cfg.Interview.Session.SecondaryEnabled)
	assert.NotEmpty(t, cfg.Interview.Session.SecondaryPrompts)
	assert.Equal(t, scoring.DefaultWeights(), cfg.Weights)
	assert.Equal(t, "none", cfg.Scorer.Provider)
	assert.Empty(t, cfg.RabbitMQ.Address)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
server:
  http_port: 8181
db:
  dialect: mysql
  user: file-user
interview:
  max_skills: 2
  auto_skip: true
scoring:
  external_weight: 0.5
aggregate:
  skip_penalty: 20
scorer:
  provider: openai
`)
	t.Setenv("DB_USER", "env-user")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, client.DialectMySQL, cfg.DB.Dialect)
	assert.Equal(t, "env-user", cfg.DB.Username)
	assert.Equal(t, "secret", cfg.DB.Password)
	assert.Equal(t, 2, cfg.Interview.Session.MaxSkills)
	assert.True(t, cfg.Interview.AutoSkip)
	assert.InDelta(t, 0.5, cfg.Weights.ExternalWeight, 1e-9)
	assert.Equal(t, 20, cfg.Policy.SkipPenalty)
	assert.Equal(t, "openai", cfg.Scorer.Provider)
	assert.Equal(t, "sk-test", cfg.Scorer.OpenAI.APIKey)
}

func TestReadConfigUsesConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeFile(t, "server:\n  grpc_port: 9999\n"))
	cfg, err := ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.GRPCPort)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"dialect", "db:\n  dialect: oracle\n"},
		{"skills", "interview:\n  max_skills: 0\n"},
		{"weight", "scoring:\n  external_weight: 1.5\n"},
		{"fresher cap", "scoring:\n  fresher_cap: 90\n"},
		{"policy", "aggregate:\n  technical_weight: 0.9\n"},
		{"yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}
