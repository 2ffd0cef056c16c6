package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewCleanAgent()))
	require.NoError(t, r.Register(NewChunkAgent()))

	assert.True(t, r.Has(TypeClean))
	assert.False(t, r.Has(TypeEnrich))
	assert.Equal(t, 2, r.Count())
	assert.ElementsMatch(t, []string{TypeClean, TypeChunk}, r.Types())

	a, err := r.GetOrError(TypeChunk)
	require.NoError(t, err)
	assert.Equal(t, TypeChunk, a.Type())
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewCleanAgent()))
	err := r.Register(NewCleanAgent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_NilAgentRejected(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(nil))
}

func TestRegistry_GetOrErrorUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetOrError("nope")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil, nil)

	for _, typ := range []string{
		TypeExtract, TypeClean, TypeChunk, TypeEnrich,
		TypeIndex, TypeAnalyze, TypeAnomaly, TypeScript,
	} {
		assert.True(t, r.Has(typ), "missing builtin %s", typ)
	}
	assert.Equal(t, 8, r.Count())
}
