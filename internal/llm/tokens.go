package llm

import (
	"math"

	"github.com/tiktoken-go/tokenizer"
)

// EstimateTokens is the glossary's fallback token estimate: ceil(chars/4),
// used when a provider-specific counter is unavailable.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4))
}

// tiktokenCounter counts tokens with a real BPE tokenizer for
// OpenAI-family models, falling back to EstimateTokens on any error
// (unknown model, unsupported encoding).
type tiktokenCounter struct {
	codec tokenizer.Codec
}

func newTiktokenCounter(model string) *tiktokenCounter {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return &tiktokenCounter{}
		}
	}
	return &tiktokenCounter{codec: codec}
}

func (c *tiktokenCounter) Count(text string) int {
	if c.codec == nil {
		return EstimateTokens(text)
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return EstimateTokens(text)
	}
	return len(ids)
}
