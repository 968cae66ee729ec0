package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile_UsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultIndexPath, cfg.IndexPath)
	assert.Equal(t, DefaultDataPath, cfg.DataPath)
	assert.Equal(t, DefaultOllamaBaseURL, cfg.OllamaBaseURL)
	assert.Equal(t, DefaultEmbeddingModel, cfg.Models.EmbeddingModel)
	assert.Equal(t, []string{".pdf"}, cfg.Extensions)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration())
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chroma_path: /srv/index
data_path: /srv/docs
log_file: /var/log/queries.json
ollama_base_url: http://ollama:11434
models:
  embedding_model: nomic-embed-text
  llama_model: llama3.1:8b
extensions: [".pdf", ".txt"]
debounce_window: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/index", cfg.IndexPath)
	assert.Equal(t, "/srv/docs", cfg.DataPath)
	assert.Equal(t, "/var/log/queries.json", cfg.LogFile)
	assert.Equal(t, "nomic-embed-text", cfg.Models.EmbeddingModel)
	assert.Equal(t, "llama3.1:8b", cfg.Models.LlamaModel)
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Extensions)
	assert.Equal(t, 2*time.Second, cfg.DebounceDuration())
}

func TestValidate_RejectsBadDebounceWindow(t *testing.T) {
	cfg := Default()
	cfg.DebounceWindow = "soon"

	assert.Error(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_path: /from/file\n"), 0o644))

	t.Setenv("DATA_PATH", "/from/env")
	t.Setenv("EMBEDDING_MODEL", "bge-m3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.DataPath)
	assert.Equal(t, "bge-m3", cfg.Models.EmbeddingModel)
}

func TestValidate_RejectsSharedPath(t *testing.T) {
	cfg := Default()
	cfg.IndexPath = "/same"
	cfg.DataPath = "/same"

	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBareExtension(t *testing.T) {
	cfg := Default()
	cfg.Extensions = []string{"pdf"}

	assert.Error(t, cfg.Validate())
}

func TestAbsPaths(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.AbsPaths())

	assert.True(t, filepath.IsAbs(cfg.IndexPath))
	assert.True(t, filepath.IsAbs(cfg.DataPath))
	assert.True(t, filepath.IsAbs(cfg.LogFile))
}
