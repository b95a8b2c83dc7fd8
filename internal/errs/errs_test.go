package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStringCarriesKindOpPath(t *testing.T) {
	err := IOError("readFile", "a.go", fmt.Errorf("permission denied"))
	assert.Contains(t, err.Error(), "IOError")
	assert.Contains(t, err.Error(), "readFile")
	assert.Contains(t, err.Error(), "a.go")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestUnwrapSeesUnderlying(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := IOError("write", "graph.db", cause)
	assert.ErrorIs(t, err, cause)
}

func TestErrorAsRecoversEngineError(t *testing.T) {
	wrapped := fmt.Errorf("commit failed: %w", AgentBusy("parser"))

	var eerr *EngineError
	require.ErrorAs(t, wrapped, &eerr)
	assert.Equal(t, KindAgentBusy, eerr.Kind)
	assert.True(t, eerr.IsRetryable())
}

func TestRetryableDefaults(t *testing.T) {
	assert.True(t, IOError("read", "x", nil).IsRetryable())
	assert.False(t, SchemaError("open", nil).IsRetryable())
	assert.False(t, DimensionMismatch(384, 768).IsRetryable())
}

func TestConstructorsSetExpectedKind(t *testing.T) {
	cases := map[Kind]*EngineError{
		KindUnsupportedLanguage: UnsupportedLanguage("x.zig"),
		KindParseTimeout:        ParseTimeout("slow.cpp", 5*time.Second),
		KindCircuitBreaker:      CircuitBreaker("deep.ts", "recursion depth exceeded 50"),
		KindCancelled:           Cancelled("parseBatch"),
		KindTimeout:             Timeout("semantic_search", 30*time.Second),
		KindInvalidArgument:     InvalidArgument("k", "must be >= 0"),
	}
	for kind, err := range cases {
		assert.Equal(t, kind, err.Kind)
	}
}

func TestMultiErrorFiltersNils(t *testing.T) {
	m := NewMulti([]error{nil, fmt.Errorf("one"), nil, fmt.Errorf("two")})
	assert.Equal(t, 2, m.Len())
	assert.Contains(t, m.Error(), "2 errors")

	single := NewMulti([]error{fmt.Errorf("only")})
	assert.Equal(t, "only", single.Error())

	empty := NewMulti(nil)
	assert.Equal(t, "no errors", empty.Error())
}

func TestMultiErrorUnwrapSlice(t *testing.T) {
	inner := InvalidArgument("cursor", "malformed")
	m := NewMulti([]error{fmt.Errorf("other"), inner})
	assert.True(t, errors.Is(m, inner))
}
