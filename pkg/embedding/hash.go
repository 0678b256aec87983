package embedding

import (
	"context"
	"encoding/binary"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/zeebo/blake3"
)

const defaultHashDims = 256

var hashTokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// HashEmbedder is a deterministic, offline embedder using signed feature
// hashing of singularised words and word bigrams. Similar wording gives
// similar vectors, which is enough to rank few-shot examples without a model.
type HashEmbedder struct {
	dims int
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates a hashing embedder with dims buckets (default 256).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = defaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

// Embed implements Embedder. Text without any word yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := make(Vector, e.dims)
	words := hashTokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		words[i] = inflection.Singular(w)
	}

	for i, w := range words {
		e.add(v, w, 1)
		if i > 0 {
			e.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	return Normalize(v), nil
}

func (e *HashEmbedder) add(v Vector, feature string, weight float32) {
	h := blake3.Sum256([]byte(feature))
	bucket := binary.LittleEndian.Uint64(h[:8]) % uint64(e.dims)
	if h[8]&1 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}

// Dims implements Embedder.
func (e *HashEmbedder) Dims() int { return e.dims }
