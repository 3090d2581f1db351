package pgvec

// schema is applied idempotently on Open. IVFFlat with lists=100 is the
// reference ANN index for up to ~1M vectors (spec §4.6); D is baked in
// at open time since pgvector requires a fixed dimension per column.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id TEXT PRIMARY KEY,
	raw_event_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT UNIQUE NOT NULL,
	embedding vector(%d) NOT NULL,
	embedding_model TEXT NOT NULL,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	tier TEXT NOT NULL DEFAULT 'hot',
	access_count INTEGER NOT NULL DEFAULT 0,
	metadata_json JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_accessed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_tier ON knowledge_chunks (tier);
CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_source_type ON knowledge_chunks (source_type);
CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_created_at ON knowledge_chunks (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding_ivfflat
	ON knowledge_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
