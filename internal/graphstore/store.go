// Package graphstore is the embedded Graph Storage component: a
// single-file SQLite database holding every Entity, Relationship,
// FileRecord and ParseError the engine has indexed, opened in WAL mode
// with a busy timeout so concurrent readers proceed during writes.
package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/types"
)

// Store wraps the entities/relationships/file_records/parse_errors schema.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the graph database at path, applying
// the schema and WAL pragmas used across this codebase's sqlite stores.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.IOError("mkdir", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, errs.IOError("open", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.IOError("ping", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errs.SchemaError("createSchema", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CommitFile atomically replaces every entity, relationship and parse error
// previously recorded for path with the new results of analyzing it.
// Issuing identical writes consecutively leaves the final state identical.
func (s *Store) CommitFile(ctx context.Context, record types.FileRecord, entities []types.Entity, relationships []types.Relationship, parseErrors []types.ParseError) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.IOError("beginTx", record.FilePath, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE file_path = ?`, record.FilePath); err != nil {
		return errs.IOError("deleteEntities", record.FilePath, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM parse_errors WHERE file_path = ?`, record.FilePath); err != nil {
		return errs.IOError("deleteParseErrors", record.FilePath, err)
	}
	// Relationships aren't keyed by file directly; prune anything whose
	// From id is owned by this file (the convention every analyzer follows
	// is "<filePath>:..."). substr avoids LIKE treating _ or % in paths as
	// wildcards.
	prefix := record.FilePath + ":"
	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE substr(from_id, 1, ?) = ?`, len(prefix), prefix); err != nil {
		return errs.IOError("deleteRelationships", record.FilePath, err)
	}

	entityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, name, type, file_path, language, start_line, start_column, start_index, end_line, end_column, end_index, modifiers, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errs.IOError("prepareEntity", record.FilePath, err)
	}
	defer entityStmt.Close()

	for _, e := range entities {
		modifiers, _ := json.Marshal(e.Modifiers)
		metadata, _ := json.Marshal(e.Metadata)
		if _, err := entityStmt.ExecContext(ctx, e.ID, e.Name, string(e.Type), e.FilePath, e.Language,
			e.Location.Start.Line, e.Location.Start.Column, e.Location.Start.Index,
			e.Location.End.Line, e.Location.End.Column, e.Location.End.Index,
			string(modifiers), string(metadata)); err != nil {
			return errs.IOError("insertEntity", e.ID, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO relationships (from_id, to_id, type, metadata) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return errs.IOError("prepareRelationship", record.FilePath, err)
	}
	defer relStmt.Close()

	for _, r := range relationships {
		metadata, _ := json.Marshal(r.Metadata)
		if _, err := relStmt.ExecContext(ctx, r.From, r.To, string(r.Type), string(metadata)); err != nil {
			return errs.IOError("insertRelationship", r.From, err)
		}
	}

	errStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parse_errors (file_path, message, line, column) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return errs.IOError("prepareParseError", record.FilePath, err)
	}
	defer errStmt.Close()

	for _, pe := range parseErrors {
		var line, column any
		if pe.Location != nil {
			line, column = pe.Location.Line, pe.Location.Column
		}
		if _, err := errStmt.ExecContext(ctx, pe.FilePath, pe.Message, line, column); err != nil {
			return errs.IOError("insertParseError", pe.FilePath, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO file_records (file_path, content_hash, language, last_parsed_at, parse_time_ms, error_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			language = excluded.language,
			last_parsed_at = excluded.last_parsed_at,
			parse_time_ms = excluded.parse_time_ms,
			error_count = excluded.error_count
	`, record.FilePath, record.ContentHash, record.Language, record.LastParsedAt, record.ParseTimeMs, len(parseErrors)); err != nil {
		return errs.IOError("upsertFileRecord", record.FilePath, err)
	}

	if err := tx.Commit(); err != nil {
		return errs.IOError("commit", record.FilePath, err)
	}
	return nil
}

// DeleteFile removes every record owned by path, used by processIncremental
// when a watched file is deleted.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.IOError("beginTx", path, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM entities WHERE file_path = ?`,
		`DELETE FROM parse_errors WHERE file_path = ?`,
		`DELETE FROM file_records WHERE file_path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, path); err != nil {
			return errs.IOError("deleteFile", path, err)
		}
	}
	prefix := path + ":"
	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE substr(from_id, 1, ?) = ?`, len(prefix), prefix); err != nil {
		return errs.IOError("deleteFile", path, err)
	}
	return tx.Commit()
}

// GetEntitiesByFile lists every entity recorded for path.
func (s *Store) GetEntitiesByFile(ctx context.Context, path string) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, file_path, language, start_line, start_column, start_index, end_line, end_column, end_index, modifiers, metadata
		FROM entities WHERE file_path = ? ORDER BY start_line
	`, path)
	if err != nil {
		return nil, errs.IOError("getEntitiesByFile", path, err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// FindEntitiesByName returns entities whose name matches pattern (a Go
// regexp), paginated via offset/limit. SQLite has no REGEXP function
// registered on this driver, so every entity is fetched, ordered by name,
// and the narrowing happens in Go.
func (s *Store) FindEntitiesByName(ctx context.Context, pattern string, offset, limit int) ([]types.Entity, int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, 0, errs.InvalidArgument("pattern", err.Error())
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, file_path, language, start_line, start_column, start_index, end_line, end_column, end_index, modifiers, metadata
		FROM entities ORDER BY name
	`)
	if err != nil {
		return nil, 0, errs.IOError("findEntitiesByName", pattern, err)
	}
	defer rows.Close()

	all, err := scanEntities(rows)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]types.Entity, 0, len(all))
	for _, e := range all {
		if re.MatchString(e.Name) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	if offset >= total {
		return []types.Entity{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Direction selects which side of a Relationship GetRelationships expands
// across.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// GetRelationships runs a breadth-first expansion from startID out to
// maxDepth hops in the given direction, optionally restricted to
// relTypes, returning each relationship annotated with its expansion
// depth. The BFS tracks a visited set so cyclic relationships (A calls B,
// B calls A) terminate.
func (s *Store) GetRelationships(ctx context.Context, startID string, direction Direction, relTypes []types.RelationshipType, maxDepth int) ([]types.Edge, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if direction == "" {
		direction = DirOut
	}
	visited := map[string]bool{startID: true}
	frontier := []string{startID}
	var out []types.Edge

	typeFilter := ""
	var typeArgs []any
	if len(relTypes) > 0 {
		placeholders := make([]string, len(relTypes))
		for i, t := range relTypes {
			placeholders[i] = "?"
			typeArgs = append(typeArgs, string(t))
		}
		typeFilter = " AND type IN (" + strings.Join(placeholders, ",") + ")"
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		edges, next, err := s.expandFrontier(ctx, frontier, direction, typeFilter, typeArgs, visited)
		if err != nil {
			return nil, err
		}
		for _, r := range edges {
			out = append(out, types.Edge{Relationship: r, Depth: depth})
		}
		frontier = next
	}
	return out, nil
}

func (s *Store) expandFrontier(ctx context.Context, frontier []string, direction Direction, typeFilter string, typeArgs []any, visited map[string]bool) ([]types.Relationship, []string, error) {
	placeholders := make([]string, len(frontier))
	args := make([]any, 0, len(frontier)*2+len(typeArgs)*2)
	for i := range frontier {
		placeholders[i] = "?"
	}

	var clauses []string
	if direction == DirOut || direction == DirBoth {
		clauses = append(clauses, fmt.Sprintf("from_id IN (%s)", strings.Join(placeholders, ",")))
		for _, id := range frontier {
			args = append(args, id)
		}
	}
	if direction == DirIn || direction == DirBoth {
		clauses = append(clauses, fmt.Sprintf("to_id IN (%s)", strings.Join(placeholders, ",")))
		for _, id := range frontier {
			args = append(args, id)
		}
	}
	query := fmt.Sprintf(`SELECT from_id, to_id, type, metadata FROM relationships WHERE (%s)%s`,
		strings.Join(clauses, " OR "), typeFilter)
	args = append(args, typeArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, errs.IOError("getRelationships", "", err)
	}
	defer rows.Close()

	var edges []types.Relationship
	var next []string
	for rows.Next() {
		var r types.Relationship
		var metadata sql.NullString
		var relType string
		if err := rows.Scan(&r.From, &r.To, &relType, &metadata); err != nil {
			return nil, nil, errs.IOError("scanRelationship", "", err)
		}
		r.Type = types.RelationshipType(relType)
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &r.Metadata)
		}
		edges = append(edges, r)

		candidates := []string{r.To}
		switch direction {
		case DirIn:
			candidates = []string{r.From}
		case DirBoth:
			candidates = []string{r.To, r.From}
		}
		for _, frontierNode := range candidates {
			if !visited[frontierNode] {
				visited[frontierNode] = true
				next = append(next, frontierNode)
			}
		}
	}
	return edges, next, rows.Err()
}

// GetEntityByID returns a single entity, or false if no entity has that id.
func (s *Store) GetEntityByID(ctx context.Context, id string) (types.Entity, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, file_path, language, start_line, start_column, start_index, end_line, end_column, end_index, modifiers, metadata
		FROM entities WHERE id = ?
	`, id)
	if err != nil {
		return types.Entity{}, false, errs.IOError("getEntityByID", id, err)
	}
	defer rows.Close()
	entities, err := scanEntities(rows)
	if err != nil {
		return types.Entity{}, false, err
	}
	if len(entities) == 0 {
		return types.Entity{}, false, nil
	}
	return entities[0], true, nil
}

// AllEntities returns every entity in the store, used by hotspots, entity
// resolution and get_graph, which need to scan the full current snapshot.
func (s *Store) AllEntities(ctx context.Context) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, file_path, language, start_line, start_column, start_index, end_line, end_column, end_index, modifiers, metadata
		FROM entities
	`)
	if err != nil {
		return nil, errs.IOError("allEntities", "", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// CountRelationshipsByEntity returns, for every entity id referenced as a
// relationship endpoint, how many relationships point to it (fan_in) and
// how many originate from it (fan_out). Used by hotspots(fan_in|fan_out).
func (s *Store) CountRelationshipsByEntity(ctx context.Context) (fanIn, fanOut map[string]int, err error) {
	fanIn, fanOut = map[string]int{}, map[string]int{}

	rows, err := s.db.QueryContext(ctx, `SELECT to_id, COUNT(*) FROM relationships GROUP BY to_id`)
	if err != nil {
		return nil, nil, errs.IOError("countFanIn", "", err)
	}
	for rows.Next() {
		var id string
		var c int
		if err := rows.Scan(&id, &c); err != nil {
			rows.Close()
			return nil, nil, errs.IOError("scanFanIn", "", err)
		}
		fanIn[id] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, errs.IOError("iterateFanIn", "", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT from_id, COUNT(*) FROM relationships GROUP BY from_id`)
	if err != nil {
		return nil, nil, errs.IOError("countFanOut", "", err)
	}
	for rows.Next() {
		var id string
		var c int
		if err := rows.Scan(&id, &c); err != nil {
			rows.Close()
			return nil, nil, errs.IOError("scanFanOut", "", err)
		}
		fanOut[id] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, errs.IOError("iterateFanOut", "", err)
	}

	return fanIn, fanOut, nil
}

// GetGraphStats aggregates entity/relationship counts by type and language.
func (s *Store) GetGraphStats(ctx context.Context) (types.GraphStats, error) {
	stats := types.GraphStats{ByType: map[string]int{}, ByLanguage: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&stats.TotalEntities); err != nil {
		return stats, errs.IOError("countEntities", "", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&stats.TotalRelationships); err != nil {
		return stats, errs.IOError("countRelationships", "", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_records`).Scan(&stats.FilesIndexed); err != nil {
		return stats, errs.IOError("countFiles", "", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM entities GROUP BY type`)
	if err != nil {
		return stats, errs.IOError("groupByType", "", err)
	}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			rows.Close()
			return stats, errs.IOError("scanByType", "", err)
		}
		stats.ByType[t] = c
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT language, COUNT(*) FROM entities GROUP BY language`)
	if err != nil {
		return stats, errs.IOError("groupByLanguage", "", err)
	}
	for rows.Next() {
		var l string
		var c int
		if err := rows.Scan(&l, &c); err != nil {
			rows.Close()
			return stats, errs.IOError("scanByLanguage", "", err)
		}
		stats.ByLanguage[l] = c
	}
	rows.Close()

	return stats, nil
}

// ResetAll truncates every table, used by the reset_graph operation.
func (s *Store) ResetAll(ctx context.Context) error {
	for _, table := range []string{"entities", "relationships", "file_records", "parse_errors"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errs.IOError("resetAll", table, err)
		}
	}
	return nil
}

func scanEntities(rows *sql.Rows) ([]types.Entity, error) {
	var out []types.Entity
	for rows.Next() {
		var e types.Entity
		var entType string
		var modifiers, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &entType, &e.FilePath, &e.Language,
			&e.Location.Start.Line, &e.Location.Start.Column, &e.Location.Start.Index,
			&e.Location.End.Line, &e.Location.End.Column, &e.Location.End.Index,
			&modifiers, &metadata); err != nil {
			return nil, errs.IOError("scanEntity", "", err)
		}
		e.Type = types.EntityType(entType)
		if modifiers.Valid {
			_ = json.Unmarshal([]byte(modifiers.String), &e.Modifiers)
		}
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
