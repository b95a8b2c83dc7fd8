package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/types"
)

// SessionStore persists resumable IndexSession records as one JSON file
// per sessionId under dir, plus a single YAML manifest summarizing the
// store's current sessions for operator inspection without parsing every
// per-session file.
type SessionStore struct {
	dir string
}

// NewSessionStore binds a SessionStore to dir, creating it lazily on first
// write.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

func (s *SessionStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save persists session, overwriting any prior record for the same id.
func (s *SessionStore) Save(session *types.IndexSession) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.IOError("mkdir", s.dir, err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return errs.SchemaError("marshalSession", err)
	}
	if err := os.WriteFile(s.path(session.SessionID), data, 0o644); err != nil {
		return errs.IOError("writeSession", s.path(session.SessionID), err)
	}
	_ = s.writeManifest()
	return nil
}

// Load reads a previously saved session by id.
func (s *SessionStore) Load(sessionID string) (*types.IndexSession, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil, errs.IOError("readSession", s.path(sessionID), err)
	}
	var session types.IndexSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errs.SchemaError("unmarshalSession", err)
	}
	return &session, nil
}

// Delete removes a completed session's file, tolerating a missing file.
func (s *SessionStore) Delete(sessionID string) {
	_ = os.Remove(s.path(sessionID))
	_ = s.writeManifest()
}

// manifestEntry is one row of the human-readable sessions.yaml summary.
type manifestEntry struct {
	SessionID string    `yaml:"sessionId"`
	RootPath  string    `yaml:"rootPath"`
	Percent   int       `yaml:"percent"`
	StartedAt time.Time `yaml:"startedAt"`
}

// writeManifest rewrites sessions.yaml from the current set of on-disk
// session files. Best-effort: a manifest write failure never fails the
// caller's Save/Delete, since the JSON session files remain the source of
// truth for resumability.
func (s *SessionStore) writeManifest() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var manifest []manifestEntry
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		session, err := s.Load(id)
		if err != nil {
			continue
		}
		manifest = append(manifest, manifestEntry{
			SessionID: session.SessionID,
			RootPath:  session.RootPath,
			Percent:   session.Percent(),
			StartedAt: session.StartedAt,
		})
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil
	}
	return os.WriteFile(filepath.Join(s.dir, "sessions.yaml"), data, 0o644)
}
