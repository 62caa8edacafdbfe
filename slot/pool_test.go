package slot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolValidation(t *testing.T) {
	t.Parallel()
	_, err := NewPool(0, 16)
	require.Error(t, err)
	_, err = NewPool(100, 16)
	require.Error(t, err)
	pool, err := NewPool(64, 16)
	require.NoError(t, err)
	require.Equal(t, 4, pool.FreeSlots())
	require.Equal(t, 16, pool.SlotSize())
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()
	pool, err := NewPool(32, 16)
	require.NoError(t, err)

	first, err := pool.Acquire(1)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Owner())
	require.Equal(t, 1, pool.FreeSlots())

	_, err = pool.Acquire(1)
	require.Error(t, err, "a stream holds at most one slot")

	second, err := pool.Acquire(2)
	require.NoError(t, err)
	require.Equal(t, 0, pool.FreeSlots())

	_, err = pool.Acquire(3)
	require.ErrorIs(t, err, ErrExhausted)

	pool.Release(first)
	require.Equal(t, 1, pool.FreeSlots())
	pool.Release(first)
	require.Equal(t, 1, pool.FreeSlots(), "double release is a no-op")
	pool.Release(second)
	require.Equal(t, 2, pool.FreeSlots())
}

func TestReleaseResetsSlot(t *testing.T) {
	t.Parallel()
	pool, err := NewPool(16, 16)
	require.NoError(t, err)

	acquired, err := pool.Acquire(7)
	require.NoError(t, err)
	acquired.Write([]byte("pending"))
	pool.Release(acquired)

	reused, err := pool.Acquire(8)
	require.NoError(t, err)
	require.True(t, reused.IsEmpty())
	require.Equal(t, 16, reused.FreeLen())
}

func TestSlotWriteAdvance(t *testing.T) {
	t.Parallel()
	pool, err := NewPool(8, 8)
	require.NoError(t, err)
	acquired, err := pool.Acquire(1)
	require.NoError(t, err)

	require.Equal(t, 5, acquired.Write([]byte("01234")))
	require.Equal(t, []byte("01234"), acquired.Bytes())

	acquired.Advance(2)
	require.Equal(t, []byte("234"), acquired.Bytes())
	require.Equal(t, 5, acquired.FreeLen())

	// Compaction makes room freed by Advance usable again.
	require.Equal(t, 5, acquired.Write([]byte("56789")))
	require.Equal(t, []byte("23456789"), acquired.Bytes())
	require.Equal(t, 0, acquired.FreeLen())

	// A full slot accepts nothing more.
	require.Equal(t, 0, acquired.Write([]byte("x")))

	acquired.Advance(8)
	require.True(t, acquired.IsEmpty())
	require.Equal(t, 8, acquired.FreeLen())
}
