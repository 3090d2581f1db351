package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/kalambet/hivemind/internal/llm"
)

// Embedded is the output of the embedding stage (C5.3).
type Embedded struct {
	Summarized
	Embedding      []float32
	EmbeddingModel string
	ContentHash    string
}

// Embed hashes the summary and calls the embedding provider. contentHash
// is computed before the provider call so storage can dedup even if the
// same summary is re-embedded by a different model.
func Embed(ctx context.Context, provider llm.Provider, model string, s Summarized) (Embedded, error) {
	hash := contentHash(s.Summary)

	vec, err := provider.Embed(ctx, s.Summary)
	if err != nil {
		return Embedded{}, err
	}

	return Embedded{
		Summarized:     s,
		Embedding:      vec,
		EmbeddingModel: model,
		ContentHash:    hash,
	}, nil
}

// EmbedBatch embeds many summaries in one provider call for throughput
// (spec §4.5.3), preserving input order in the output slice.
func EmbedBatch(ctx context.Context, provider llm.Provider, model string, batch []Summarized) ([]Embedded, error) {
	texts := make([]string, len(batch))
	for i, s := range batch {
		texts[i] = s.Summary
	}

	vecs, err := provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]Embedded, len(batch))
	for i, s := range batch {
		out[i] = Embedded{
			Summarized:     s,
			Embedding:      vecs[i],
			EmbeddingModel: model,
			ContentHash:    contentHash(s.Summary),
		}
	}
	return out, nil
}

func contentHash(summary string) string {
	sum := sha256.Sum256([]byte(summary))
	return hex.EncodeToString(sum[:])
}
