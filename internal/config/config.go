// Package config loads the corpusd configuration from a YAML file with
// environment variable overrides applied on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file or environment leaves a
// field unset.
const (
	DefaultIndexPath      = "chroma"
	DefaultDataPath       = "data"
	DefaultLogFile        = "query_log.json"
	DefaultOllamaBaseURL  = "http://localhost:11434"
	DefaultEmbeddingModel = "mxbai-embed-large"
	DefaultLlamaModel     = "llama3.2:3b"
	DefaultListenAddr     = "0.0.0.0:8000"
	DefaultDebounceWindow = "500ms"
)

// DefaultExtensions are the corpus file extensions indexed when the config
// does not override them.
var DefaultExtensions = []string{".pdf"}

// ModelsConfig names the Ollama models used for embedding and generation.
type ModelsConfig struct {
	EmbeddingModel string `yaml:"embedding_model"`
	LlamaModel     string `yaml:"llama_model"`
}

// Config is the complete corpusd configuration.
type Config struct {
	// IndexPath is the directory owned by the vector index.
	IndexPath string `yaml:"chroma_path"`

	// DataPath is the corpus directory watched for changes.
	DataPath string `yaml:"data_path"`

	// LogFile is the query log location (a single JSON array file).
	LogFile string `yaml:"log_file"`

	// OllamaBaseURL is the endpoint serving both embedding and generation.
	OllamaBaseURL string `yaml:"ollama_base_url"`

	Models ModelsConfig `yaml:"models"`

	// Extensions lists corpus file extensions eligible for indexing.
	Extensions []string `yaml:"extensions"`

	// ListenAddr is the answering service bind address.
	ListenAddr string `yaml:"listen_addr"`

	// ServerCommand is the argv used to spawn the answering service process.
	// Empty means re-invoke the current binary with "serve".
	ServerCommand []string `yaml:"server_command"`

	// DebounceWindow coalesces bursts of file events into one resync
	// request, as a duration string (e.g. "500ms").
	DebounceWindow string `yaml:"debounce_window"`

	// LogLevel is the slog level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns a config populated with defaults only.
func Default() Config {
	return Config{
		IndexPath:      DefaultIndexPath,
		DataPath:       DefaultDataPath,
		LogFile:        DefaultLogFile,
		OllamaBaseURL:  DefaultOllamaBaseURL,
		Models:         ModelsConfig{EmbeddingModel: DefaultEmbeddingModel, LlamaModel: DefaultLlamaModel},
		Extensions:     append([]string(nil), DefaultExtensions...),
		ListenAddr:     DefaultListenAddr,
		DebounceWindow: DefaultDebounceWindow,
		LogLevel:       "info",
	}
}

// Load reads the config file at path (if it exists), applies environment
// overrides, fills defaults, and validates. A missing file is not an error:
// the defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env + defaults.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from the recognized environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHROMA_PATH"); v != "" {
		c.IndexPath = v
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.OllamaBaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Models.EmbeddingModel = v
	}
	if v := os.Getenv("LLAMA_MODEL"); v != "" {
		c.Models.LlamaModel = v
	}
	if v := os.Getenv("CORPUSD_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CORPUSD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// fillDefaults replaces zero values left by a partial config file.
func (c *Config) fillDefaults() {
	d := Default()
	if c.IndexPath == "" {
		c.IndexPath = d.IndexPath
	}
	if c.DataPath == "" {
		c.DataPath = d.DataPath
	}
	if c.LogFile == "" {
		c.LogFile = d.LogFile
	}
	if c.OllamaBaseURL == "" {
		c.OllamaBaseURL = d.OllamaBaseURL
	}
	if c.Models.EmbeddingModel == "" {
		c.Models.EmbeddingModel = d.Models.EmbeddingModel
	}
	if c.Models.LlamaModel == "" {
		c.Models.LlamaModel = d.Models.LlamaModel
	}
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.DebounceWindow == "" {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks invariants that later components rely on.
func (c *Config) Validate() error {
	if c.IndexPath == c.DataPath {
		return fmt.Errorf("chroma_path and data_path must differ: %s", c.IndexPath)
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension must start with a dot: %q", ext)
		}
	}
	if strings.TrimSpace(c.OllamaBaseURL) == "" {
		return fmt.Errorf("ollama_base_url must not be empty")
	}
	if _, err := time.ParseDuration(c.DebounceWindow); err != nil {
		return fmt.Errorf("debounce_window: %w", err)
	}
	return nil
}

// DebounceDuration returns the parsed debounce window. Validate has already
// checked the string, so a parse failure here falls back to the default.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.DebounceWindow)
	if err != nil {
		d, _ = time.ParseDuration(DefaultDebounceWindow)
	}
	return d
}

// AbsPaths resolves IndexPath, DataPath, and LogFile against the working
// directory so the rest of the system only sees canonical absolute paths.
func (c *Config) AbsPaths() error {
	for _, p := range []*string{&c.IndexPath, &c.DataPath, &c.LogFile} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve path %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}
