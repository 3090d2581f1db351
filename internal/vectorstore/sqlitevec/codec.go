package sqlitevec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mus-format/mus-go/varint"
)

// encodeEmbedding packs a []float32 into a compact binary form: a
// mus-go varint length prefix followed by the fixed-width big-endian
// bytes of each component. The length is varint-encoded because most
// embedding dimensions (384/768/1536) fit in one or two bytes.
func encodeEmbedding(v []float32) []byte {
	lenBuf := make([]byte, varint.MaxUint64Len)
	n := varint.MarshalUint64(uint64(len(v)), lenBuf)

	out := make([]byte, n+len(v)*4)
	copy(out, lenBuf[:n])
	for i, f := range v {
		binary.BigEndian.PutUint32(out[n+i*4:], math.Float32bits(f))
	}
	return out
}

func decodeEmbedding(bs []byte) ([]float32, error) {
	length, n, err := varint.UnmarshalUint64(bs)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding length: %w", err)
	}
	want := n + int(length)*4
	if len(bs) < want {
		return nil, fmt.Errorf("decoding embedding: expected %d bytes, got %d", want, len(bs))
	}

	out := make([]float32, length)
	for i := range out {
		bits := binary.BigEndian.Uint32(bs[n+i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
