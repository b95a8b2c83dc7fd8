package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/errs"
)

func TestCursorRoundTrip(t *testing.T) {
	raw := encodeCursor("semantic:save user", 20)
	offset, err := decodeCursor(raw, "semantic:save user")
	require.NoError(t, err)
	assert.Equal(t, 20, offset)
}

func TestCursorEmptyMeansStart(t *testing.T) {
	offset, err := decodeCursor("", "anything")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
}

func TestCursorStableForIdenticalInputs(t *testing.T) {
	assert.Equal(t, encodeCursor("q1", 5), encodeCursor("q1", 5))
	assert.NotEqual(t, encodeCursor("q1", 5), encodeCursor("q2", 5))
}

func TestCursorRejectsForeignQuery(t *testing.T) {
	raw := encodeCursor("query-a", 10)
	_, err := decodeCursor(raw, "query-b")
	require.Error(t, err)

	var eerr *errs.EngineError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, errs.KindInvalidArgument, eerr.Kind)
}

func TestCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not base64!!", "aGVsbG8"} {
		_, err := decodeCursor(raw, "q")
		assert.Error(t, err, "cursor %q should be rejected", raw)
	}
}
