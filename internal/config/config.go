package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	AIProvider      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GradingModel    string
	EmbeddingModel  string

	MaxRetries     int
	RetryBaseDelay time.Duration
	LLMTimeout     time.Duration

	TopKRetrieval     int
	ChunkSize         int
	ChunkOverlap      int
	MaxDocsPerStudent int
	ChunksPerDocLimit int
	RAGTimeout        time.Duration

	MinFeedbackLength int
	EventBufferSize   int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEOMARK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GeoMark Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("grading.model", "gpt-4o-mini")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_base_delay", "1s")
	v.SetDefault("llm_timeout", "90s")
	v.SetDefault("top_k_retrieval", 3)
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)
	v.SetDefault("max_docs_per_student", 5)
	v.SetDefault("chunks_per_doc_limit", 20)
	v.SetDefault("rag_timeout", "60s")
	v.SetDefault("min_feedback_length", 5)
	v.SetDefault("event_buffer_size", 256)

	baseDelay, err := time.ParseDuration(v.GetString("retry_base_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid retry base delay: %w", err)
	}

	llmTimeout, err := time.ParseDuration(v.GetString("llm_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid llm timeout: %w", err)
	}

	ragTimeout, err := time.ParseDuration(v.GetString("rag_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid rag timeout: %w", err)
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		AIProvider:        strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:      v.GetString("openai_api_key"),
		AnthropicAPIKey:   v.GetString("anthropic_api_key"),
		GradingModel:      v.GetString("grading.model"),
		EmbeddingModel:    v.GetString("embedding.model"),
		MaxRetries:        v.GetInt("max_retries"),
		RetryBaseDelay:    baseDelay,
		LLMTimeout:        llmTimeout,
		TopKRetrieval:     v.GetInt("top_k_retrieval"),
		ChunkSize:         v.GetInt("chunk_size"),
		ChunkOverlap:      v.GetInt("chunk_overlap"),
		MaxDocsPerStudent: v.GetInt("max_docs_per_student"),
		ChunksPerDocLimit: v.GetInt("chunks_per_doc_limit"),
		RAGTimeout:        ragTimeout,
		MinFeedbackLength: v.GetInt("min_feedback_length"),
		EventBufferSize:   v.GetInt("event_buffer_size"),
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}

	if cfg.TopKRetrieval <= 0 {
		cfg.TopKRetrieval = 3
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}

	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}

	if cfg.MaxDocsPerStudent <= 0 {
		cfg.MaxDocsPerStudent = 5
	}

	if cfg.ChunksPerDocLimit <= 0 {
		cfg.ChunksPerDocLimit = 20
	}

	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 256
	}

	return cfg, nil
}
