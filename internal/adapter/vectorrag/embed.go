package vectorrag

import (
	"hash/fnv"
	"math"
	"strings"
)

// embeddingDim is the fixed dimensionality of the feature-hash vectors.
const embeddingDim = 256

// Embed maps text to a deterministic unit vector by hashing each token
// into a fixed number of buckets. No model call, no nondeterminism, and
// identical text always lands on the identical vector, which keeps
// determinism trials honest. Retrieval quality is token-overlap only,
// in keeping with the adapter's naive design.
func Embed(text string) []float32 {
	vec := make([]float32, embeddingDim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := sum % embeddingDim
		// The next hash bit picks the sign so buckets cancel instead of
		// only accumulating, the standard hashing-trick construction.
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}
	return normalize(vec)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
