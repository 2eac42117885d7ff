package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Embedding  EmbeddingConfig
	Database   DatabaseConfig
	Scan       ScanConfig
	Thresholds ThresholdsConfig
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 768
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL (optional, shared corpus store)
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the query HNSW index (optional, if empty index is rebuilt on startup)
}

type ScanConfig struct {
	MemoryBudget int64 // bytes available for a matrix chunk; <= 0 means auto-detect
	SaveEvery    int   // checkpoint cadence in scan positions (default 250)
}

type ThresholdsConfig struct {
	Modes map[string]ModeThresholds `yaml:"modes"`
}

// ModeThresholds carries the three cutoffs of one comparison mode.
// For lower-is-better modes the values are distances, not similarities.
type ModeThresholds struct {
	Duplicate   float64 `yaml:"duplicate"`
	Related     float64 `yaml:"related"`
	GroupCutoff float64 `yaml:"group_cutoff"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 is envInt for byte-sized budgets, zero and negatives allowed
// (a non-positive budget means auto-detect).
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return defaultVal
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 768),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Scan: ScanConfig{
			MemoryBudget: envInt64("SCAN_MEMORY_BUDGET", 0),
			SaveEvery:    envInt("SCAN_SAVE_EVERY", 250),
		},
		Thresholds: thresholds,
	}
}

// ModeThresholds returns the cutoffs for one comparison mode, falling back to
// the embedding defaults for unknown mode names.
func (c *Config) ModeThresholds(mode string) ModeThresholds {
	if t, ok := c.Thresholds.Modes[mode]; ok {
		return t
	}
	return c.Thresholds.Modes["embedding"]
}
