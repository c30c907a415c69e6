// Package config provides configuration loading and structs for the Kensaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Answer    AnswerConfig    `yaml:"answer"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// IngestConfig holds document root and chunking settings.
type IngestConfig struct {
	Root         string   `yaml:"root"`
	Extensions   []string `yaml:"extensions"`
	Workers      int      `yaml:"workers"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Watch        bool     `yaml:"watch"`
}

// EmbeddingConfig holds settings for the embedding collaborator. The model
// and dimensionality must stay stable across the corpus; mixing versions
// silently corrupts vector search quality.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (c *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RerankConfig holds settings for the cross-encoder collaborator.
type RerankConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (c *RerankConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AnswerConfig holds settings for the generative answering collaborator.
// BaseURL defaults to the embedding base URL when unset, so a single
// OpenAI-compatible endpoint needs no repetition; point it elsewhere when
// embeddings are served by a dedicated embedding server.
type AnswerConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	ContextChunks  int    `yaml:"context_chunks"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (c *AnswerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SearchConfig holds retrieval settings. The candidate and rerank
// multipliers widen the windows handed to fusion and reranking beyond the
// final K; they are tuning knobs, not invariants.
type SearchConfig struct {
	DefaultK            int     `yaml:"default_k"`
	MaxK                int     `yaml:"max_k"`
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	RerankMultiplier    int     `yaml:"rerank_multiplier"`
	LexicalWeight       float64 `yaml:"lexical_weight"`
	VectorWeight        float64 `yaml:"vector_weight"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Ingest.Root = expandPath(cfg.Ingest.Root, configDir)
	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
