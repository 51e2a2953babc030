package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("LLM_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, 50.0, cfg.Retrieval.PhraseBonus)
	assert.Equal(t, 1500, cfg.Retrieval.ExcerptMaxChars)
	assert.Equal(t, 30*24*time.Hour, cfg.Retrieval.RecencyWindow())
	assert.Equal(t, 6000, cfg.Context.MaxTokens)
	assert.Equal(t, time.Second, cfg.Generation.MinInterval())
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = 9090

[retrieval]
max_results = 5
semantic_weight = 0.5

[chunking]
strategy = "paragraph"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRIEVAL_MAX_RESULTS", "7")
	t.Setenv("CONTEXT_MAX_TOKENS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 7, cfg.Retrieval.MaxResults)
	assert.Equal(t, 0.5, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, "paragraph", cfg.Chunking.Strategy)
	assert.Equal(t, 6000, cfg.Context.MaxTokens)
	// untouched defaults survive a partial file
	assert.Equal(t, 5.0, cfg.Retrieval.TitleWeight)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[app\nport = "), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.Password = "pw"

	assert.Equal(t, "root:pw@tcp(127.0.0.1:3306)/transcript_assistant?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
}
