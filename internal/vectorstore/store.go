// Package vectorstore is the embedded Vector Store component: a
// second SQLite database, separate from Graph Storage, holding one dense
// embedding per entity id. Vectors are stored as little-endian float32
// blobs in a vec0 virtual table when the sqlite-vec extension loads,
// scored as "1.0 - distance" cosine similarity. When the
// sqlite-vec extension can't be loaded this falls back to an in-Go
// brute-force cosine scan over the same table; the two paths differ only
// in latency.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/codegraph-rag/engine/internal/errs"
)

func init() {
	sqlite_vec.Auto()
}

// Store holds per-entity embeddings at a fixed dimension.
type Store struct {
	db        *sql.DB
	dimension int
	useVec    bool
}

// Open creates (if needed) and opens the vector database at path, sized for
// dimension-wide float32 vectors. It tries the sqlite-vec vec0 virtual
// table first and falls back to a brute-force table transparently.
func Open(path string, dimension int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.IOError("mkdir", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, errs.IOError("open", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.IOError("ping", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, dimension: dimension}

	if _, err := db.Exec(metaTableSQL); err != nil {
		db.Close()
		return nil, errs.SchemaError("createMetaSchema", err)
	}
	storedDim, ok, err := readStoredDimension(db)
	if err != nil {
		db.Close()
		return nil, errs.SchemaError("readMetaSchema", err)
	}
	if !ok {
		if _, err := db.Exec(`INSERT INTO vec_meta (id, dimension) VALUES (1, ?)`, dimension); err != nil {
			db.Close()
			return nil, errs.SchemaError("writeMetaSchema", err)
		}
	} else if storedDim != dimension {
		db.Close()
		return nil, errs.DimensionMismatch(storedDim, dimension)
	}

	_, vecErr := db.Exec(vecTableSQL(dimension))
	s.useVec = vecErr == nil
	if _, err := db.Exec(fallbackTableSQL); err != nil {
		db.Close()
		return nil, errs.SchemaError("createFallbackSchema", err)
	}

	return s, nil
}

const metaTableSQL = `
CREATE TABLE IF NOT EXISTS vec_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    dimension INTEGER NOT NULL
);
`

// readStoredDimension reads back the dimension a prior Open persisted, so a
// reopen at a different width is caught here instead of silently no-opping
// against an existing vec0 virtual table.
func readStoredDimension(db *sql.DB) (int, bool, error) {
	var dim int
	err := db.QueryRow(`SELECT dimension FROM vec_meta WHERE id = 1`).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return dim, true, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func vecTableSQL(dimension int) string {
	// distance_metric=cosine keeps the vec0 path's "1.0 - distance" scoring
	// equivalent to searchBruteForce's cosineSimilarity even for embedders
	// that do not unit-normalize their vectors.
	return "CREATE VIRTUAL TABLE IF NOT EXISTS vec_entities USING vec0(entity_id TEXT PRIMARY KEY, embedding float[" + strconv.Itoa(dimension) + "] distance_metric=cosine)"
}

const fallbackTableSQL = `
CREATE TABLE IF NOT EXISTS entity_embeddings (
    entity_id TEXT PRIMARY KEY,
    embedding BLOB NOT NULL,
    created_at DATETIME NOT NULL
);
`

// Upsert stores or replaces the embedding for entityID. A length mismatch
// against the store's configured dimension is a DimensionMismatch error,
// not a silently-truncated write.
func (s *Store) Upsert(ctx context.Context, entityID string, vector []float32) error {
	if len(vector) != s.dimension {
		return errs.DimensionMismatch(s.dimension, len(vector))
	}
	blob := serializeFloat32(vector)

	if s.useVec {
		if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO vec_entities (entity_id, embedding) VALUES (?, ?)`, entityID, blob); err != nil {
			return errs.IOError("upsertVec", entityID, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_embeddings (entity_id, embedding, created_at) VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET embedding = excluded.embedding, created_at = excluded.created_at
	`, entityID, blob, time.Now()); err != nil {
		return errs.IOError("upsertFallback", entityID, err)
	}
	return nil
}

// Delete removes entityID's embedding from both tables.
func (s *Store) Delete(ctx context.Context, entityID string) error {
	if s.useVec {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM vec_entities WHERE entity_id = ?`, entityID); err != nil {
			return errs.IOError("deleteVec", entityID, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entity_embeddings WHERE entity_id = ?`, entityID); err != nil {
		return errs.IOError("deleteFallback", entityID, err)
	}
	return nil
}

// ScoredEntity is one hit from SearchTopK.
type ScoredEntity struct {
	EntityID string
	Score    float64
}

// SearchTopK returns the k entities whose embedding is closest to query by
// cosine similarity, using vec0's MATCH operator when available and an
// in-Go brute-force scan otherwise.
func (s *Store) SearchTopK(ctx context.Context, query []float32, k int) ([]ScoredEntity, error) {
	if len(query) != s.dimension {
		return nil, errs.DimensionMismatch(s.dimension, len(query))
	}
	if k <= 0 {
		return []ScoredEntity{}, nil
	}

	if s.useVec {
		return s.searchVec(ctx, query, k)
	}
	return s.searchBruteForce(ctx, query, k)
}

func (s *Store) searchVec(ctx context.Context, query []float32, k int) ([]ScoredEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, distance FROM vec_entities
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, serializeFloat32(query), k)
	if err != nil {
		return nil, errs.IOError("searchVec", "", err)
	}
	defer rows.Close()

	var out []ScoredEntity
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, errs.IOError("scanVecResult", "", err)
		}
		out = append(out, ScoredEntity{EntityID: id, Score: 1.0 - distance})
	}
	return out, rows.Err()
}

func (s *Store) searchBruteForce(ctx context.Context, query []float32, k int) ([]ScoredEntity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, embedding FROM entity_embeddings`)
	if err != nil {
		return nil, errs.IOError("searchBruteForce", "", err)
	}
	defer rows.Close()

	var scored []ScoredEntity
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, errs.IOError("scanBruteForceResult", "", err)
		}
		vec := deserializeFloat32(blob)
		scored = append(scored, ScoredEntity{EntityID: id, Score: cosineSimilarity(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.IOError("iterateBruteForce", "", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// AllEmbeddings returns every stored embedding keyed by entity id, for
// callers that need to compare vectors pairwise (clone detection) rather
// than rank them against a single query.
func (s *Store) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, embedding FROM entity_embeddings`)
	if err != nil {
		return nil, errs.IOError("allEmbeddings", "", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, errs.IOError("scanAllEmbeddings", "", err)
		}
		out[id] = deserializeFloat32(blob)
	}
	return out, rows.Err()
}

// CosineSimilarity exposes the store's similarity metric for callers (the
// Query Engine's clone/related-concepts passes) that compare two vectors
// already in hand instead of issuing a SearchTopK.
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
