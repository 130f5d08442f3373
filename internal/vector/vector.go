// Package vector holds the embedding math and encoding shared by the stores.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Cosine computes the cosine similarity between two vectors in one pass.
// Zero vectors score 0; mismatched dimensions are an error.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	var dot, normA, normB float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / math.Sqrt(normA*normB), nil
}

// Scored is a candidate index paired with its similarity to a query.
type Scored struct {
	Index int
	Score float64
}

// TopK scores every candidate against query and returns those strictly above
// threshold, best first, at most k of them (k <= 0 means no limit).
// Candidates whose dimensions differ from the query are skipped.
func TopK(query []float32, candidates [][]float32, threshold float64, k int) []Scored {
	var out []Scored
	for i, c := range candidates {
		score, err := Cosine(query, c)
		if err != nil {
			continue
		}
		if score > threshold {
			out = append(out, Scored{Index: i, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Encode serializes a vector to a little-endian float32 BLOB.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode is the inverse of Encode. Trailing bytes that do not form a whole
// float32 are ignored.
func Decode(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
