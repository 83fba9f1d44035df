package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/cortexmem/cortex/internal/batch"
)

// hashEmbedder stands in for the external embedding model service
// (spec §6): it has no learned semantics, but it is deterministic and
// dimension-correct, which is enough to exercise insert/search/
// promotion/backup end to end through the CLI without a network
// dependency. A real deployment wires Deps.EmbeddingModel to whatever
// model-serving client the operator chooses instead.
func hashEmbedder(dim int) batch.TextWorkFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = hashVector(text, dim)
		}
		return out, nil
	}
}

func hashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	sum := sha256.Sum256([]byte(text))
	var norm float64
	for i := 0; i < dim; i++ {
		b := sum[i%len(sum):]
		if len(b) < 4 {
			b = sum[:4]
		}
		u := binary.BigEndian.Uint32(b[:4])
		f := float64(u)/float64(math.MaxUint32)*2 - 1
		v[i] = float32(f)
		norm += f * f
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
