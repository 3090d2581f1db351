package sqlitevec

import (
	"math"
	"testing"
)

func TestEncodeDecodeEmbeddingRoundTrip(t *testing.T) {
	original := []float32{0.1, -0.2, 3.14159, 0, -1, 1e10, -1e-10}
	encoded := encodeEmbedding(original)
	decoded, err := decodeEmbedding(encoded)
	if err != nil {
		t.Fatalf("decodeEmbedding() error: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], original[i])
		}
	}
}

func TestEncodeDecodeEmptyEmbedding(t *testing.T) {
	decoded, err := decodeEmbedding(encodeEmbedding(nil))
	if err != nil {
		t.Fatalf("decodeEmbedding() error: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded length = %d, want 0", len(decoded))
	}
}

func TestEncodeDecodeLargeDimension(t *testing.T) {
	v := make([]float32, 1536)
	for i := range v {
		v[i] = float32(math.Sin(float64(i)))
	}
	decoded, err := decodeEmbedding(encodeEmbedding(v))
	if err != nil {
		t.Fatalf("decodeEmbedding() error: %v", err)
	}
	if len(decoded) != len(v) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(v))
	}
}
