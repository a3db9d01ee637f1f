package points

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almanac/pkg/contract"
)

func TestSeedPoints(t *testing.T) {
	out, err := New().Seed(context.Background(), []uint64{79, 14, 55, 13})
	require.NoError(t, err)
	assert.Equal(t, []contract.Interval{{Start: 79, End: 80}, {Start: 14, End: 15}, {Start: 55, End: 56}, {Start: 13, End: 14}}, out)
}

func TestSeedPointsEmpty(t *testing.T) {
	out, err := New().Seed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSeedPointsOverflow(t *testing.T) {
	_, err := New().Seed(context.Background(), []uint64{1, math.MaxUint64})
	assert.ErrorIs(t, err, contract.ErrOverflow)
}
