package grid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromSliceRejectsWrongLength(t *testing.T) {
	_, err := FromSlice(4, 4, make([]float32, 15))
	require.Error(t, err)

	g, err := FromSlice(2, 2, []uint16{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, uint16(3), g.At(0, 1))
}

func TestRollMovesCells(t *testing.T) {
	g, err := FromSlice(3, 2, []uint8{
		1, 2, 3,
		4, 5, 6,
	})
	require.NoError(t, err)

	g.Roll(1, 1)
	require.Equal(t, []uint8{
		6, 4, 5,
		3, 1, 2,
	}, g.Cells())

	g.Roll(-1, -1)
	require.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, g.Cells())
}

func TestWrapAndNeighbors(t *testing.T) {
	g := New[bool](4, 3)
	x, y := g.Wrap(-1, 3)
	require.Equal(t, 3, x)
	require.Equal(t, 0, y)

	count := 0
	g.Neighbors4(0, 0, func(_, _ int) { count++ })
	require.Equal(t, 2, count)

	count = 0
	g.Neighbors8(1, 1, func(_, _ int) { count++ })
	require.Equal(t, 8, count)
}

func TestCloneIsIndependent(t *testing.T) {
	g := New[float32](2, 2)
	g.Set(1, 1, 5)
	c := g.Clone()
	c.Set(1, 1, 9)
	require.Equal(t, float32(5), g.At(1, 1))

	lo, hi := MinMax(c)
	require.Equal(t, float32(0), lo)
	require.Equal(t, float32(9), hi)
}
