// Package semantic is the Semantic Indexer: it derives a deterministic
// embedding per entity and keeps the Vector Store coherent with Graph
// Storage as files are committed. The embedding backend sits behind a
// narrow interface; model choice belongs to the deployment, so the
// default Embedder is a deterministic hashing scheme rather than a
// network call, keeping the core engine runnable offline.
package semantic

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/codegraph-rag/engine/internal/types"
)

// Embedder turns entity text into a fixed-dimension dense vector. Embed
// must be a pure function of its input: identical input text yields an
// identical vector. If a concrete
// Embedder delegates to a stochastic model, it must seed that model
// per-call from the input itself, not from wall-clock or process state.
type Embedder interface {
	Dimension() int
	Embed(text string) []float32
}

// HashEmbedder is the engine's default local Embedder: a seeded
// pseudo-random projection keyed by xxhash of the input text, normalized
// to unit length so cosine similarity behaves sensibly. It is not a
// semantic model; deployments that need real semantic recall pin a
// network-backed Embedder behind this same interface.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder builds a HashEmbedder at the given fixed dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Dimension() int { return h.dimension }

// Embed derives one float32 per dimension from a distinct xxhash seed of
// text, then L2-normalizes the result.
func (h *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, h.dimension)
	seed := xxhash.Sum64String(text)

	var buf [16]byte
	for i := 0; i < h.dimension; i++ {
		binary.LittleEndian.PutUint64(buf[0:8], seed)
		binary.LittleEndian.PutUint64(buf[8:16], uint64(i))
		bits := xxhash.Sum64(buf[:])
		// Map the hash into [-1, 1).
		vec[i] = float32(int64(bits)) / float32(math.MaxInt64)
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}

// EntityText builds the stable serialization Embed receives for an entity:
// name, modifiers, a signature derived from metadata.parameters/returnType
// when present, the owning file's basename, and the owning type/namespace
// when present.
func EntityText(e types.Entity) string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte(' ')
	b.WriteString(string(e.Type))
	if len(e.Modifiers) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(e.Modifiers, ","))
	}
	if params := e.MetaOr("parameters", ""); params != "" {
		b.WriteString(" (")
		b.WriteString(params)
		b.WriteString(")")
	}
	if ret := e.MetaOr("returnType", ""); ret != "" {
		b.WriteString(" -> ")
		b.WriteString(ret)
	}
	if owner := e.MetaOr("package", e.MetaOr("namespace", "")); owner != "" {
		b.WriteByte(' ')
		b.WriteString(owner)
	}
	b.WriteByte(' ')
	b.WriteString(basename(e.FilePath))
	return b.String()
}

func basename(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}
