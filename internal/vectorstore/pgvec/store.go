// Package pgvec is the Postgres/pgvector Vector Store (C6) backend,
// used when the deployment needs a real ANN index rather than the
// sqlitevec brute-force scan.
package pgvec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kalambet/hivemind/internal/herrors"
	"github.com/kalambet/hivemind/internal/vectorstore"
)

const (
	defaultMinSimilarity = 0.7
	defaultTopK          = 20
)

var defaultTiers = []vectorstore.Tier{vectorstore.TierHot, vectorstore.TierWarm}

type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// Open connects to Postgres and ensures the schema exists for embeddings
// of the given dimension.
func Open(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaTemplate, dimensions)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{pool: pool, dimensions: dimensions}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Store(chunk vectorstore.KnowledgeChunk) (string, error) {
	if len(chunk.Embedding) != s.dimensions {
		return "", herrors.New(herrors.KindValidation,
			fmt.Sprintf("embedding has %d dimensions, store expects %d", len(chunk.Embedding), s.dimensions))
	}

	ctx := context.Background()

	var existing string
	err := s.pool.QueryRow(ctx, `SELECT id FROM knowledge_chunks WHERE content_hash = $1`, chunk.ContentHash).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("checking content hash: %w", err)
	}

	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.Tier == "" {
		chunk.Tier = vectorstore.TierHot
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	metaJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO knowledge_chunks
			(id, raw_event_id, source_type, content, content_hash, embedding, embedding_model, importance, tier, access_count, metadata_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11)
		ON CONFLICT (content_hash) DO NOTHING`,
		chunk.ID, chunk.RawEventID, chunk.SourceType, chunk.Content, chunk.ContentHash,
		pgvector.NewVector(chunk.Embedding), chunk.EmbeddingModel, chunk.Importance, string(chunk.Tier),
		metaJSON, chunk.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("inserting chunk: %w", err)
	}

	var id string
	if err := s.pool.QueryRow(ctx, `SELECT id FROM knowledge_chunks WHERE content_hash = $1`, chunk.ContentHash).Scan(&id); err != nil {
		return "", fmt.Errorf("reading back inserted id: %w", err)
	}
	return id, nil
}

// Search uses pgvector's cosine-distance operator (<=>); similarity is
// 1 - distance, matching the sqlitevec backend's convention.
func (s *Store) Search(queryVector []float32, opts vectorstore.SearchOptions) ([]vectorstore.Scored, error) {
	ctx := context.Background()

	minSim := opts.MinSimilarity
	if minSim == 0 {
		minSim = defaultMinSimilarity
	}
	topK := opts.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = defaultTiers
	}

	tierStrs := make([]string, len(tiers))
	for i, t := range tiers {
		tierStrs[i] = string(t)
	}

	args := []any{pgvector.NewVector(queryVector), tierStrs, 1 - minSim, topK}
	where := "tier = ANY($2) AND (embedding <=> $1) <= $3"
	if len(opts.SourceTypes) > 0 {
		args = append(args, opts.SourceTypes)
		where += fmt.Sprintf(" AND source_type = ANY($%d)", len(args))
	}

	query := chunkSelect + `, 1 - (embedding <=> $1) AS similarity FROM knowledge_chunks WHERE ` + where +
		` ORDER BY similarity DESC, created_at DESC, id ASC LIMIT $4`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.Scored
	for rows.Next() {
		c, similarity, err := scanChunkWithSimilarity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, vectorstore.Scored{Chunk: c, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Access accounting happens above the store, through the retrieval
	// service's AccessRecorder (batched, not one UPDATE per search here).
	return results, nil
}

func (s *Store) GetByID(id string) (vectorstore.KnowledgeChunk, error) {
	chunks, err := s.GetByIDs([]string{id})
	if err != nil {
		return vectorstore.KnowledgeChunk{}, err
	}
	if len(chunks) == 0 {
		return vectorstore.KnowledgeChunk{}, fmt.Errorf("chunk %s not found", id)
	}
	return chunks[0], nil
}

func (s *Store) GetByIDs(ids []string) ([]vectorstore.KnowledgeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, chunkSelect+` FROM knowledge_chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying by ids: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *Store) GetBySource(sourceType string, limit int) ([]vectorstore.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, chunkSelect+` FROM knowledge_chunks WHERE source_type = $1 ORDER BY created_at DESC LIMIT $2`, sourceType, limit)
	if err != nil {
		return nil, fmt.Errorf("querying by source: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *Store) GetRecent(limit int) ([]vectorstore.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, chunkSelect+` FROM knowledge_chunks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *Store) Stats() (vectorstore.Stats, error) {
	ctx := context.Background()
	stats := vectorstore.Stats{ByTier: map[vectorstore.Tier]int{}, BySource: map[string]int{}}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("counting chunks: %w", err)
	}

	tierRows, err := s.pool.Query(ctx, `SELECT tier, COUNT(*) FROM knowledge_chunks GROUP BY tier`)
	if err != nil {
		return stats, fmt.Errorf("counting by tier: %w", err)
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var tier string
		var count int
		if err := tierRows.Scan(&tier, &count); err != nil {
			return stats, err
		}
		stats.ByTier[vectorstore.Tier(tier)] = count
	}

	srcRows, err := s.pool.Query(ctx, `SELECT source_type, COUNT(*) FROM knowledge_chunks GROUP BY source_type`)
	if err != nil {
		return stats, fmt.Errorf("counting by source: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var source string
		var count int
		if err := srcRows.Scan(&source, &count); err != nil {
			return stats, err
		}
		stats.BySource[source] = count
	}

	return stats, nil
}

func (s *Store) SetTier(ids []string, tier vectorstore.Tier) error {
	if len(ids) == 0 {
		return nil
	}
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `UPDATE knowledge_chunks SET tier = $1 WHERE id = ANY($2)`, string(tier), ids)
	return err
}

func (s *Store) IncrementAccessCount(id string, delta int) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `UPDATE knowledge_chunks SET access_count = access_count + $1, last_accessed_at = now() WHERE id = $2`, delta, id)
	if err != nil {
		return fmt.Errorf("incrementing access count for %s: %w", id, err)
	}
	return nil
}

func (s *Store) AccessCounts(fromTier vectorstore.Tier, olderThan time.Time) ([]vectorstore.AccessCount, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `
		SELECT id, access_count FROM knowledge_chunks
		WHERE tier = $1 AND created_at < $2`,
		string(fromTier), olderThan)
	if err != nil {
		return nil, fmt.Errorf("querying access counts: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.AccessCount
	for rows.Next() {
		var ac vectorstore.AccessCount
		if err := rows.Scan(&ac.ID, &ac.AccessCount); err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

const chunkSelect = `SELECT id, raw_event_id, source_type, content, content_hash, embedding, embedding_model, importance, tier, access_count, metadata_json, created_at, last_accessed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk scans a row selected with chunkSelect alone (13 columns, no
// trailing similarity column).
func scanChunk(rs rowScanner) (vectorstore.KnowledgeChunk, error) {
	var c vectorstore.KnowledgeChunk
	var vec pgvector.Vector
	var tier string
	var metaJSON []byte

	if err := rs.Scan(&c.ID, &c.RawEventID, &c.SourceType, &c.Content, &c.ContentHash,
		&vec, &c.EmbeddingModel, &c.Importance, &tier, &c.AccessCount,
		&metaJSON, &c.CreatedAt, &c.LastAccessedAt); err != nil {
		return c, fmt.Errorf("scanning chunk: %w", err)
	}
	c.Embedding = vec.Slice()
	c.Tier = vectorstore.Tier(tier)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return c, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}
	return c, nil
}

// scanChunkWithSimilarity scans a row selected with chunkSelect plus the
// `1 - (embedding <=> $1) AS similarity` column Search adds; that column
// is never NULL, unlike the plain chunkSelect reads scanChunk handles.
func scanChunkWithSimilarity(rs rowScanner) (vectorstore.KnowledgeChunk, float64, error) {
	var c vectorstore.KnowledgeChunk
	var vec pgvector.Vector
	var tier string
	var metaJSON []byte
	var similarity float64

	if err := rs.Scan(&c.ID, &c.RawEventID, &c.SourceType, &c.Content, &c.ContentHash,
		&vec, &c.EmbeddingModel, &c.Importance, &tier, &c.AccessCount,
		&metaJSON, &c.CreatedAt, &c.LastAccessedAt, &similarity); err != nil {
		return c, 0, fmt.Errorf("scanning chunk: %w", err)
	}
	c.Embedding = vec.Slice()
	c.Tier = vectorstore.Tier(tier)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return c, 0, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}
	return c, similarity, nil
}

func scanChunks(rows pgx.Rows) ([]vectorstore.KnowledgeChunk, error) {
	var out []vectorstore.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ vectorstore.Store = (*Store)(nil)
