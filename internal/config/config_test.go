package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "paragraph", cfg.Chunker.Strategy)
	assert.Equal(t, 1500, cfg.Chunker.Size)
	assert.Equal(t, 300, cfg.Chunker.Overlap)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retrieval.KeywordTopK)
	assert.Equal(t, 1200, cfg.Synth.MaxAnswerChars)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL())
	assert.Equal(t, 5*time.Minute, cfg.Session.JanitorInterval())
	assert.Equal(t, 60*time.Second, cfg.IndexBuildTimeout())
	assert.False(t, cfg.Embedding.Available(), "no API key configured")
	assert.False(t, cfg.LLM.Available())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
chunker:
  strategy: window
  size: 500
  overlap: 50
session:
  backend: redis
llm:
  api_key: from-file
`), 0o644))

	t.Setenv("PDFCHAT_LLM_API_KEY", "from-env")
	t.Setenv("PDFCHAT_DATABASE_REDIS_ADDR", "localhost:6379")
	t.Setenv("PDFCHAT_CHUNKER_SIZE", "700")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "window", cfg.Chunker.Strategy)
	assert.Equal(t, 700, cfg.Chunker.Size)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Database.Redis.Addr)
	assert.True(t, cfg.LLM.Available())
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_IndexBuildTimeout(t *testing.T) {
	tests := []struct {
		name    string
		build   int
		request int
		want    time.Duration
	}{
		{"configured below request limit", 30, 120, 30 * time.Second},
		{"capped to three quarters of request", 120, 120, 90 * time.Second},
		{"unset follows request", 0, 20, 15 * time.Second},
		{"no request timeout", 45, 0, 45 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Retrieval.BuildTimeout = tt.build
			cfg.Server.RequestTimeout = tt.request
			assert.Equal(t, tt.want, cfg.IndexBuildTimeout())
		})
	}
}
