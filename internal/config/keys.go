package config

import "github.com/spf13/viper"

// envBindings mirrors the config-key surface enumerated in the external
// interfaces (§6): every field an operator can plausibly want to override
// without a config file gets an explicit HIVEMIND_-prefixed binding.
var envBindings = []struct {
	key string
	env string
}{
	{"database.url", "HIVEMIND_DATABASE_URL"},
	{"database.max_connections", "HIVEMIND_DATABASE_MAX_CONNECTIONS"},

	{"queue.host", "HIVEMIND_QUEUE_HOST"},
	{"queue.port", "HIVEMIND_QUEUE_PORT"},
	{"queue.password", "HIVEMIND_QUEUE_PASSWORD"},
	{"queue.db", "HIVEMIND_QUEUE_DB"},

	{"llm.default", "HIVEMIND_LLM_DEFAULT"},
	{"llm.anthropic_api_key", "HIVEMIND_ANTHROPIC_API_KEY"},
	{"llm.anthropic_model", "HIVEMIND_ANTHROPIC_MODEL"},
	{"llm.openai_api_key", "HIVEMIND_OPENAI_API_KEY"},
	{"llm.openai_model", "HIVEMIND_OPENAI_MODEL"},
	{"llm.google_api_key", "HIVEMIND_GOOGLE_API_KEY"},
	{"llm.google_model", "HIVEMIND_GOOGLE_MODEL"},
	{"llm.ollama_base_url", "HIVEMIND_OLLAMA_BASE_URL"},
	{"llm.ollama_chat_model", "HIVEMIND_OLLAMA_CHAT_MODEL"},

	{"embedding.provider", "HIVEMIND_EMBEDDING_PROVIDER"},
	{"embedding.model", "HIVEMIND_EMBEDDING_MODEL"},
	{"embedding.dimensions", "HIVEMIND_EMBEDDING_DIMENSIONS"},
	{"embedding.batch_size", "HIVEMIND_EMBEDDING_BATCH_SIZE"},

	{"retrieval.top_k", "HIVEMIND_RETRIEVAL_TOP_K"},
	{"retrieval.min_similarity", "HIVEMIND_RETRIEVAL_MIN_SIMILARITY"},
	{"retrieval.rerank_enabled", "HIVEMIND_RETRIEVAL_RERANK_ENABLED"},

	{"context.max_tokens", "HIVEMIND_CONTEXT_MAX_TOKENS"},
	{"context.max_history", "HIVEMIND_CONTEXT_MAX_HISTORY"},

	{"agent.max_iterations", "HIVEMIND_AGENT_MAX_ITERATIONS"},
	{"agent.temperature", "HIVEMIND_AGENT_TEMPERATURE"},
	{"agent.max_tokens", "HIVEMIND_AGENT_MAX_TOKENS"},

	{"log.level", "HIVEMIND_LOG_LEVEL"},

	{"vector_store.backend", "HIVEMIND_VECTOR_STORE_BACKEND"},
	{"vector_store.data_dir", "HIVEMIND_VECTOR_STORE_DATA_DIR"},
	{"vector_store.postgres_url", "HIVEMIND_VECTOR_STORE_POSTGRES_URL"},

	{"server.port", "HIVEMIND_SERVER_PORT"},
	{"server.token", "HIVEMIND_SERVER_TOKEN"},

	{"adapters.slack_bot_token", "HIVEMIND_SLACK_BOT_TOKEN"},
	{"adapters.slack_app_token", "HIVEMIND_SLACK_APP_TOKEN"},
	{"adapters.slack_self_user", "HIVEMIND_SLACK_SELF_USER"},
}

func bindEnv(v *viper.Viper) {
	for _, b := range envBindings {
		// BindEnv only errors on a malformed call signature; the two-arg
		// form used here never does.
		_ = v.BindEnv(b.key, b.env)
	}
}
