package firehose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewBlock struct {
	num  uint64
	data string
}

func (b viewBlock) NumberOrSlot() uint64 { return b.num }

func TestChainViewReorg(t *testing.T) {
	v := NewChainView[viewBlock]()

	steps := []struct {
		step  ForkStep
		block viewBlock
	}{
		{StepNew, viewBlock{5, "five"}},
		{StepNew, viewBlock{6, "six"}},
		{StepUndo, viewBlock{6, "six"}},
		{StepNew, viewBlock{6, "six-prime"}},
	}
	for _, s := range steps {
		require.NoError(t, v.Apply(s.step, s.block))
	}

	five, ok := v.Canonical(5)
	require.True(t, ok)
	assert.Equal(t, "five", five.data)

	six, ok := v.Canonical(6)
	require.True(t, ok)
	assert.Equal(t, "six-prime", six.data, "reorged block replaced by its successor")

	assert.Equal(t, 2, v.Size())
}

func TestChainViewFinalDropsPendingState(t *testing.T) {
	v := NewChainView[viewBlock]()

	require.NoError(t, v.Apply(StepNew, viewBlock{num: 10}))
	require.NoError(t, v.Apply(StepNew, viewBlock{num: 11}))
	require.NoError(t, v.Apply(StepNew, viewBlock{num: 12}))
	assert.Equal(t, 3, v.PendingCount())

	require.NoError(t, v.Apply(StepFinal, viewBlock{num: 11}))
	assert.Equal(t, uint64(11), v.FinalNum())
	assert.Equal(t, 1, v.PendingCount(), "blocks at or below the final mark are no longer pending")

	// Blocks delivered below an already-final mark never enter pending state.
	require.NoError(t, v.Apply(StepNew, viewBlock{num: 9}))
	assert.Equal(t, 1, v.PendingCount())
}

func TestChainViewRedelivery(t *testing.T) {
	// Resuming from a cursor may redeliver the boundary block; applying it
	// twice must be a no-op.
	v := NewChainView[viewBlock]()

	require.NoError(t, v.Apply(StepNew, viewBlock{7, "seven"}))
	require.NoError(t, v.Apply(StepNew, viewBlock{7, "seven"}))

	assert.Equal(t, 1, v.Size())
}

func TestChainViewErrors(t *testing.T) {
	v := NewChainView[viewBlock]()

	err := v.Apply(StepUndo, viewBlock{num: 3})
	assert.ErrorContains(t, err, "undo for unknown block 3")

	err = v.Apply(StepUnset, viewBlock{num: 3})
	assert.ErrorContains(t, err, "unexpected fork step")
}
