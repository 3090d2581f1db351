// Package config loads the typed Config that wires every hivemind
// component. Layering, in increasing precedence: built-in defaults,
// an optional config file, environment variables prefixed HIVEMIND_.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Queue       QueueConfig       `mapstructure:"queue"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Chunk       ChunkConfig       `mapstructure:"chunk"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Context     ContextConfig     `mapstructure:"context"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Log         LogConfig         `mapstructure:"log"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Server      ServerConfig      `mapstructure:"server"`
	Adapters    AdaptersConfig    `mapstructure:"adapters"`
}

// AdaptersConfig holds credentials for the out-of-scope source adapters
// (spec §1); the composition root only starts an adapter whose
// credentials are non-empty.
type AdaptersConfig struct {
	SlackBotToken string `mapstructure:"slack_bot_token"`
	SlackAppToken string `mapstructure:"slack_app_token"`
	SlackSelfUser string `mapstructure:"slack_self_user"`
}

// ServerConfig configures the (out-of-scope, thin) query façade the
// composition root exposes over the core (spec §6).
type ServerConfig struct {
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type QueueConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig chooses the default chat provider; each provider's own
// credentials and model are namespaced beneath it.
type LLMConfig struct {
	Default         string `mapstructure:"default"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIModel     string `mapstructure:"openai_model"`
	GoogleAPIKey    string `mapstructure:"google_api_key"`
	GoogleModel     string `mapstructure:"google_model"`
	OllamaBaseURL   string `mapstructure:"ollama_base_url"`
	OllamaChatModel string `mapstructure:"ollama_chat_model"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

type ChunkConfig struct {
	HotToWarmAfter  time.Duration `mapstructure:"hot_to_warm_after"`
	WarmToColdAfter time.Duration `mapstructure:"warm_to_cold_after"`
}

type RetrievalConfig struct {
	TopK               int           `mapstructure:"top_k"`
	MinSimilarity      float64       `mapstructure:"min_similarity"`
	MinSimilarityAgent float64       `mapstructure:"min_similarity_agent"`
	RelevanceWeightSim float64       `mapstructure:"relevance_weight_similarity"`
	RelevanceWeightImp float64       `mapstructure:"relevance_weight_importance"`
	RerankEnabled      bool          `mapstructure:"rerank_enabled"`
	RerankTimeout      time.Duration `mapstructure:"rerank_timeout"`
	RerankCandidates   int           `mapstructure:"rerank_candidates"`
}

type ContextConfig struct {
	MaxTokens           int     `mapstructure:"max_tokens"`
	MaxHistory          int     `mapstructure:"max_history"`
	FormatReserveTokens int     `mapstructure:"format_reserve_tokens"`
	RelevanceThreshold  float64 `mapstructure:"relevance_threshold"`
}

type AgentConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// VectorStoreConfig selects and configures the C6 backend.
type VectorStoreConfig struct {
	Backend     string `mapstructure:"backend"` // "sqlite" | "postgres"
	DataDir     string `mapstructure:"data_dir"`
	PostgresURL string `mapstructure:"postgres_url"`
}

func defaults() map[string]any {
	return map[string]any{
		"database.url":             "hivemind.db",
		"database.max_connections": 10,

		"queue.host": "localhost",
		"queue.port": 6379,
		"queue.db":   0,

		"llm.default":           "anthropic",
		"llm.anthropic_model":   "claude-3-5-sonnet-latest",
		"llm.openai_model":      "gpt-4o-mini",
		"llm.google_model":      "gemini-1.5-flash",
		"llm.ollama_base_url":   "http://localhost:11434",
		"llm.ollama_chat_model": "mistral-nemo",

		"embedding.provider":   "openai",
		"embedding.model":      "text-embedding-3-small",
		"embedding.dimensions": 768,
		"embedding.batch_size": 16,

		"chunk.hot_to_warm_after":  7 * 24 * time.Hour,
		"chunk.warm_to_cold_after": 30 * 24 * time.Hour,

		"retrieval.top_k":                      20,
		"retrieval.min_similarity":             0.5,
		"retrieval.min_similarity_agent":        0.65,
		"retrieval.relevance_weight_similarity": 0.7,
		"retrieval.relevance_weight_importance": 0.3,
		"retrieval.rerank_enabled":              false,
		"retrieval.rerank_timeout":              5 * time.Second,
		"retrieval.rerank_candidates":           10,

		"context.max_tokens":            8000,
		"context.max_history":           10,
		"context.format_reserve_tokens": 500,
		"context.relevance_threshold":   0.6,

		"agent.max_iterations": 5,
		"agent.temperature":    0.7,
		"agent.max_tokens":     2000,

		"log.level": "info",

		"vector_store.backend":  "sqlite",
		"vector_store.data_dir": "./data",

		"server.port": 8080,
	}
}

// Load reads defaults, an optional config file (./hivemind.yaml, or a
// path named by $HIVEMIND_CONFIG), and HIVEMIND_-prefixed environment
// overrides — highest precedence wins in that order.
func Load() (Config, error) {
	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetConfigName("hivemind")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hivemind")
	if path := os.Getenv("HIVEMIND_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}
