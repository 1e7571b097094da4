package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for SynergeReader
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	WebSearch WebSearchConfig `mapstructure:"websearch"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	BaseURL      string   `mapstructure:"base_url"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// OllamaConfig holds the embedding and generation backend configuration
type OllamaConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	EmbeddingModel   string        `mapstructure:"embedding_model"`
	EmbeddingDim     int           `mapstructure:"embedding_dim"`
	EmbeddingTimeout time.Duration `mapstructure:"embedding_timeout"`
	EmbedConcurrency int           `mapstructure:"embed_concurrency"`
	GenerationModel  string        `mapstructure:"generation_model"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
	HeaderTimeout    time.Duration `mapstructure:"header_timeout"`
}

// RetrievalConfig holds chunking, ranking and gating parameters
type RetrievalConfig struct {
	ChunkSize           int     `mapstructure:"chunk_size"`
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	HistoryLimit        int     `mapstructure:"history_limit"`
	KnowledgeLimit      int     `mapstructure:"knowledge_limit"`
	RecentRows          int     `mapstructure:"recent_rows"`
}

// WebSearchConfig holds the external search fallback configuration
type WebSearchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// IngestConfig holds folder watching and seeding configuration
type IngestConfig struct {
	WatchDir      string   `mapstructure:"watch_dir"`
	Extensions    []string `mapstructure:"extensions"`
	KnowledgeSeed string   `mapstructure:"knowledge_seed"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables, e.g. SYNERGE_OLLAMA_BASE_URL
	v.SetEnvPrefix("SYNERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.base_url", "http://localhost:5000")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")

	v.SetDefault("database.path", "./data/synergereader.db")

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.embedding_model", "DC1LEX/Qwen3-Embedding-0.6B-f16:latest")
	v.SetDefault("ollama.embedding_dim", 384)
	v.SetDefault("ollama.embedding_timeout", 30*time.Second)
	v.SetDefault("ollama.embed_concurrency", 1)
	v.SetDefault("ollama.generation_model", "llama3.1:8b")
	v.SetDefault("ollama.max_tokens", 1000)
	v.SetDefault("ollama.temperature", 0.7)
	v.SetDefault("ollama.header_timeout", 60*time.Second)

	v.SetDefault("retrieval.chunk_size", 500)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.similarity_threshold", 0.75)
	v.SetDefault("retrieval.history_limit", 3)
	v.SetDefault("retrieval.knowledge_limit", 3)
	v.SetDefault("retrieval.recent_rows", 20)

	v.SetDefault("websearch.enabled", true)
	v.SetDefault("websearch.endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("websearch.timeout", 2*time.Second)

	v.SetDefault("ingest.watch_dir", "")
	v.SetDefault("ingest.extensions", []string{".txt", ".md"})
	v.SetDefault("ingest.knowledge_seed", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate rejects values the pipeline cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Retrieval.ChunkSize <= 0:
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	case c.Retrieval.TopK < 1:
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	case c.Retrieval.SimilarityThreshold < -1 || c.Retrieval.SimilarityThreshold > 1:
		return fmt.Errorf("retrieval.similarity_threshold must be within [-1, 1], got %v", c.Retrieval.SimilarityThreshold)
	case c.Ollama.EmbeddingDim <= 0:
		return fmt.Errorf("ollama.embedding_dim must be positive, got %d", c.Ollama.EmbeddingDim)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
