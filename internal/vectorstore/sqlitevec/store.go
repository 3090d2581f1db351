// Package sqlitevec is the default Vector Store (C6) backend: SQLite
// with brute-force cosine similarity search, adequate up to roughly a
// few hundred thousand chunks before an ANN index (pgvec) is warranted.
package sqlitevec

import (
	"container/heap"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/kalambet/hivemind/internal/herrors"
	"github.com/kalambet/hivemind/internal/vectorstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultMinSimilarity = 0.7
	defaultTopK          = 20
)

var defaultTiers = []vectorstore.Tier{vectorstore.TierHot, vectorstore.TierWarm}

type Store struct {
	db         *sql.DB
	dimensions int
}

// Open opens (creating if needed) the sqlite-backed vector store at
// dataDir, fixing its embedding dimension at dimensions for the life of
// the store (spec §3's "embedding dimension matches the store's
// configured D" invariant).
func Open(dataDir string, dimensions int) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "vectorstore.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, dimensions: dimensions}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// Store inserts chunk, deduping on ContentHash (spec §4.5.4). Inserts
// whose embedding length doesn't match the store's configured
// dimension are rejected rather than silently scoring 0 at search time.
func (s *Store) Store(chunk vectorstore.KnowledgeChunk) (string, error) {
	if len(chunk.Embedding) != s.dimensions {
		return "", herrors.New(herrors.KindValidation,
			fmt.Sprintf("embedding has %d dimensions, store expects %d", len(chunk.Embedding), s.dimensions))
	}

	var existing string
	err := s.db.QueryRow(`SELECT id FROM knowledge_chunks WHERE content_hash = ?`, chunk.ContentHash).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
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

	_, err = s.db.Exec(`
		INSERT INTO knowledge_chunks
			(id, raw_event_id, source_type, content, content_hash, embedding, embedding_model, importance, tier, access_count, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		chunk.ID, chunk.RawEventID, chunk.SourceType, chunk.Content, chunk.ContentHash,
		encodeEmbedding(chunk.Embedding), chunk.EmbeddingModel, chunk.Importance, string(chunk.Tier),
		string(metaJSON), chunk.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			var id string
			if lookupErr := s.db.QueryRow(`SELECT id FROM knowledge_chunks WHERE content_hash = ?`, chunk.ContentHash).Scan(&id); lookupErr == nil {
				return id, nil
			}
		}
		return "", fmt.Errorf("inserting chunk: %w", err)
	}
	return chunk.ID, nil
}

type idScore struct {
	ID    string
	Score float32
}

type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Search performs brute-force cosine similarity search, returning
// strictly-descending results above MinSimilarity (spec §4.6).
func (s *Store) Search(queryVector []float32, opts vectorstore.SearchOptions) ([]vectorstore.Scored, error) {
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

	where := []string{}
	args := []any{}
	tierPlaceholders := make([]string, len(tiers))
	for i, t := range tiers {
		tierPlaceholders[i] = "?"
		args = append(args, string(t))
	}
	where = append(where, "tier IN ("+strings.Join(tierPlaceholders, ",")+")")

	if len(opts.SourceTypes) > 0 {
		srcPlaceholders := make([]string, len(opts.SourceTypes))
		for i, st := range opts.SourceTypes {
			srcPlaceholders[i] = "?"
			args = append(args, st)
		}
		where = append(where, "source_type IN ("+strings.Join(srcPlaceholders, ",")+")")
	}

	query := "SELECT id, embedding FROM knowledge_chunks WHERE " + strings.Join(where, " AND ")
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(queryVector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		score := cosineSimilarity(queryVector, vec, queryNorm)
		if score < float32(minSim) {
			continue
		}
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	if h.Len() == 0 {
		return nil, nil
	}

	ids := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(ids) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		ids[i] = item.ID
		scores[item.ID] = item.Score
	}

	chunks, err := s.getByIDsOrdered(ids)
	if err != nil {
		return nil, err
	}

	results := make([]vectorstore.Scored, len(chunks))
	for i, c := range chunks {
		results[i] = vectorstore.Scored{Chunk: c, Similarity: float64(scores[c.ID])}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if !results[i].Chunk.CreatedAt.Equal(results[j].Chunk.CreatedAt) {
			return results[i].Chunk.CreatedAt.After(results[j].Chunk.CreatedAt)
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	// Access accounting happens above the store, through the retrieval
	// service's AccessRecorder (batched, not one UPDATE per search here).
	return results, nil
}

func (s *Store) GetByID(id string) (vectorstore.KnowledgeChunk, error) {
	chunks, err := s.getByIDsOrdered([]string{id})
	if err != nil {
		return vectorstore.KnowledgeChunk{}, err
	}
	if len(chunks) == 0 {
		return vectorstore.KnowledgeChunk{}, fmt.Errorf("chunk %s not found", id)
	}
	return chunks[0], nil
}

func (s *Store) GetByIDs(ids []string) ([]vectorstore.KnowledgeChunk, error) {
	return s.getByIDsOrdered(ids)
}

func (s *Store) getByIDsOrdered(ids []string) ([]vectorstore.KnowledgeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := chunkSelect + ` WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]vectorstore.KnowledgeChunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]vectorstore.KnowledgeChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetBySource(sourceType string, limit int) ([]vectorstore.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 20
	}
	query := chunkSelect + ` WHERE source_type = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.Query(query, sourceType, limit)
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
	rows, err := s.db.Query(chunkSelect+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *Store) Stats() (vectorstore.Stats, error) {
	stats := vectorstore.Stats{ByTier: map[vectorstore.Tier]int{}, BySource: map[string]int{}}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM knowledge_chunks`).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("counting chunks: %w", err)
	}

	tierRows, err := s.db.Query(`SELECT tier, COUNT(*) FROM knowledge_chunks GROUP BY tier`)
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

	srcRows, err := s.db.Query(`SELECT source_type, COUNT(*) FROM knowledge_chunks GROUP BY source_type`)
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
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(tier))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	_, err := s.db.Exec(`UPDATE knowledge_chunks SET tier = ? WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	return err
}

func (s *Store) IncrementAccessCount(id string, delta int) error {
	_, err := s.db.Exec(`UPDATE knowledge_chunks SET access_count = access_count + ?, last_accessed_at = ? WHERE id = ?`,
		delta, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("incrementing access count for %s: %w", id, err)
	}
	return nil
}

func (s *Store) AccessCounts(fromTier vectorstore.Tier, olderThan time.Time) ([]vectorstore.AccessCount, error) {
	rows, err := s.db.Query(`
		SELECT id, access_count FROM knowledge_chunks
		WHERE tier = ? AND created_at < ?`,
		string(fromTier), olderThan.Format(time.RFC3339Nano))
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

const chunkSelect = `SELECT id, raw_event_id, source_type, content, content_hash, embedding, embedding_model, importance, tier, access_count, metadata_json, created_at, last_accessed_at FROM knowledge_chunks`

type scanner interface {
	Scan(dest ...any) error
}

func scanChunk(sc scanner) (vectorstore.KnowledgeChunk, error) {
	var c vectorstore.KnowledgeChunk
	var embeddingBlob []byte
	var metaJSON sql.NullString
	var tier string
	var createdAt string
	var lastAccessedAt sql.NullString

	if err := sc.Scan(&c.ID, &c.RawEventID, &c.SourceType, &c.Content, &c.ContentHash,
		&embeddingBlob, &c.EmbeddingModel, &c.Importance, &tier, &c.AccessCount,
		&metaJSON, &createdAt, &lastAccessedAt); err != nil {
		return c, fmt.Errorf("scanning chunk: %w", err)
	}

	vec, err := decodeEmbedding(embeddingBlob)
	if err != nil {
		return c, fmt.Errorf("decoding embedding: %w", err)
	}
	c.Embedding = vec
	c.Tier = vectorstore.Tier(tier)

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return c, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t

	if lastAccessedAt.Valid {
		lt, err := time.Parse(time.RFC3339Nano, lastAccessedAt.String)
		if err != nil {
			return c, fmt.Errorf("parsing last_accessed_at: %w", err)
		}
		c.LastAccessedAt = &lt
	}

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
			return c, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}

	return c, nil
}

func scanChunks(rows *sql.Rows) ([]vectorstore.KnowledgeChunk, error) {
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

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosineSimilarity computes dot(a,b) / (aNorm * bNorm). aNorm is
// precomputed once per query and reused across all rows.
func cosineSimilarity(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 || aNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

var _ vectorstore.Store = (*Store)(nil)
