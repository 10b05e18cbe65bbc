package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEInheritsKindFromWrappedError(t *testing.T) {
	inner := E(Timeout, Op("llm.Invoke"), "model call timed out")
	outer := E(Op("nl2sql.Synthesize"), inner)

	assert.True(t, KindIs(Timeout, outer))
	assert.Equal(t, "nl2sql.Synthesize: llm.Invoke: model call timed out", outer.Error())
	assert.Equal(t, "model call timed out", Message(outer))
}

func TestEExplicitKindWins(t *testing.T) {
	inner := E(ProviderOther, Op("llm.Invoke"), "boom")
	outer := E(Internal, Op("assistant.Ask"), inner)

	assert.Equal(t, Internal, KindOf(outer))
}

func TestEPreservesSentinelForErrorsIs(t *testing.T) {
	sentinel := errors.New("table already exists")
	err := E(ExecutionConflict, Op("catalog.CreateTable"), fmt.Errorf("create students: %w", sentinel))

	require.ErrorIs(t, err, sentinel)
	assert.True(t, KindIs(ExecutionConflict, fmt.Errorf("wrapped: %w", err)))
}

func TestKindOfPlainErrorIsOther(t *testing.T) {
	assert.Equal(t, Other, KindOf(errors.New("plain")))
	assert.False(t, KindIs(Other, nil))
}

func TestErrorWithoutUnderlyingUsesKindText(t *testing.T) {
	err := E(ExecutionNotFound, Op("catalog.GetMetadata"))
	assert.Equal(t, "catalog.GetMetadata: not found", err.Error())
}
