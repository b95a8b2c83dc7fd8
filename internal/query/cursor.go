// Package query is the Query Engine: structural graph
// traversal (neighbors, impact, hotspots, entity resolution) and hybrid
// semantic+structural search over the current consistent snapshot held by
// Graph Storage and the Vector Store.
package query

import (
	"encoding/base64"
	"encoding/json"

	"github.com/codegraph-rag/engine/internal/errs"
)

// cursor is an opaque pagination token, stable across identical query
// inputs. It is a base64-encoded JSON envelope binding the offset to a
// fingerprint of the query that produced it, so a cursor minted for one
// query can't silently be replayed against a different one. The
// fingerprint covers the query inputs only: a cursor does not expire when
// the underlying result set changes.
type cursor struct {
	Query  string `json:"q"`
	Offset int    `json:"o"`
}

// encodeCursor mints an opaque cursor for the next page of query at offset.
func encodeCursor(queryFingerprint string, offset int) string {
	b, _ := json.Marshal(cursor{Query: queryFingerprint, Offset: offset})
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor recovers the offset from an opaque cursor, verifying it was
// minted for the same query fingerprint; a mismatch means the cursor came
// from a different query, which is reported as InvalidArgument rather
// than silently resumed from the wrong offset.
func decodeCursor(raw, queryFingerprint string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return 0, errs.InvalidArgument("cursor", "malformed")
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, errs.InvalidArgument("cursor", "malformed")
	}
	if c.Query != queryFingerprint {
		return 0, errs.InvalidArgument("cursor", "stale: minted for a different query")
	}
	return c.Offset, nil
}
