// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
	CacheTTL  time.Duration
}

type LLMConfig struct {
	Provider    string
	Model       string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
}

// InferenceConfig points at a Hugging Face compatible inference endpoint serving the
// zero-shot and NER models.
type InferenceConfig struct {
	BaseURL        string
	Token          string
	ZeroShotModel  string
	NERModel       string
	Timeout        time.Duration
	RequestsPerSec float64
}

// RetrievalConfig tunes chunking and search.
type RetrievalConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	PreviewLimit int
	Namespace    string
}

type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string
	RedisAddr   string

	DataDir      string
	ProfilesPath string
	HTTPAddr     string
	LogLevel     string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingConfig
	LLM        LLMConfig
	Inference  InferenceConfig
	Retrieval  RetrievalConfig
}

func Load() Config {
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/stakeholder_rag?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),
		RedisAddr:   getEnv("REDIS_ADDR", ""),

		DataDir:      getEnv("DATA_DIR", "./data"),
		ProfilesPath: getEnv("PROFILES_PATH", ""),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", ProviderOllama)),
			Model:     getEnv("EMBEDDINGS_MODEL", "all-minilm"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 384),
			CacheTTL:  getEnvDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
			Model:       getEnv("LLM_MODEL", "llama3.2"),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			TopP:        getEnvFloat("LLM_TOP_P", 0.9),
		},
		Inference: InferenceConfig{
			BaseURL:        getEnv("INFERENCE_BASE_URL", "https://api-inference.huggingface.co"),
			Token:          getEnv("INFERENCE_TOKEN", ""),
			ZeroShotModel:  getEnv("ZERO_SHOT_MODEL", "facebook/bart-large-mnli"),
			NERModel:       getEnv("NER_MODEL", "dslim/bert-base-NER"),
			Timeout:        getEnvDuration("INFERENCE_TIMEOUT", 30*time.Second),
			RequestsPerSec: getEnvFloat("INFERENCE_RPS", 5),
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),
			TopK:         getEnvInt("TOP_K", 3),
			PreviewLimit: getEnvInt("PREVIEW_LIMIT", 1000),
			Namespace:    getEnv("NAMESPACE", ""),
		},
	}
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("EMBEDDINGS_DIMENSION must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.Retrieval.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.PreviewLimit <= 0 {
		return fmt.Errorf("PREVIEW_LIMIT must be positive, got %d", c.Retrieval.PreviewLimit)
	}
	if !knownProvider(c.Embeddings.Provider) {
		return fmt.Errorf("unknown embedding provider: %s", c.Embeddings.Provider)
	}
	if !knownProvider(c.LLM.Provider) {
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 || c.Inference.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT and INFERENCE_TIMEOUT must be positive")
	}
	return nil
}

func knownProvider(p string) bool {
	return p == ProviderOllama || p == ProviderOpenAI
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
