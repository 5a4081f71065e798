package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocFreeReuse(t *testing.T) {
	a := NewArena(2)
	h1, err := a.Alloc()
	require.NoError(t, err)
	h2, err := a.Alloc()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	_, err = a.Alloc()
	assert.ErrorIs(t, err, ErrArenaFull)

	a.Free(h1)
	h3, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

func TestArenaInUseCount(t *testing.T) {
	a := NewArena(4)
	assert.Equal(t, 0, a.InUse())
	h, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, 1, a.InUse())
	a.Free(h)
	assert.Equal(t, 0, a.InUse())
}

func TestListAppendOrderAndClear(t *testing.T) {
	a := NewArena(8)
	l := NewList(a)

	h1, err := l.Append(10, 0, 5, []byte("abcde"))
	require.NoError(t, err)
	h2, err := l.Append(10, 5, 0xFFFF, []byte("fgh"))
	require.NoError(t, err)

	assert.Equal(t, h1, l.Head())
	assert.Equal(t, h2, l.Next(h1))
	assert.Equal(t, Invalid, l.Next(h2))

	assert.Equal(t, 2, a.InUse())
	l.Clear()
	assert.True(t, l.Empty())
	assert.Equal(t, 0, a.InUse())
}

func TestListFindBySegmentOffset(t *testing.T) {
	a := NewArena(8)
	l := NewList(a)
	_, err := l.Append(1, 0, 10, []byte("0123456789"))
	require.NoError(t, err)
	h2, err := l.Append(1, 10, 20, []byte("restoftenb"))
	require.NoError(t, err)

	found := l.Find(15)
	assert.Equal(t, h2, found)
	assert.Equal(t, Invalid, l.Find(999))
}

func TestArenaExhaustionPropagatesThroughList(t *testing.T) {
	a := NewArena(1)
	l := NewList(a)
	_, err := l.Append(1, 0, 1, []byte("x"))
	require.NoError(t, err)
	_, err = l.Append(1, 1, 2, []byte("y"))
	assert.ErrorIs(t, err, ErrArenaFull)
}
