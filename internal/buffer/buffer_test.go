package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_EmptyDataReturnsZero(t *testing.T) {
	b := New(1024)
	assert.Equal(t, 0, b.Push(nil))
}

func TestRoundTrip_SingleEntry(t *testing.T) {
	b := New(1024)
	assert.Equal(t, 4, b.Push([]byte{0x01, 0x02, 0x03, 0x04}))
	assert.Equal(t, 4, b.Len())

	got, ok := b.Pop(4)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)
	assert.Equal(t, 0, b.Len())
}

func TestPop_InsufficientBytes(t *testing.T) {
	b := New(1024)
	b.Push([]byte{1, 2, 3})
	_, ok := b.Pop(10)
	assert.False(t, ok)
}

func TestFIFO_MultiplePushesThenPop(t *testing.T) {
	b := New(1024)
	b.Push([]byte{1, 2})
	b.Push([]byte{3, 4})
	b.Push([]byte{5})

	got, ok := b.Pop(5)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)
}

func TestDiscardPolicy_AtCapacity(t *testing.T) {
	b := New(10, WithOverflowPolicy(Discard))

	assert.Equal(t, 8, b.Push(bytesOf(8, 1)))
	assert.Equal(t, 2, b.Push(bytesOf(5, 2)))
	assert.Equal(t, 0, b.Push(bytesOf(5, 3)))

	got, ok := b.Pop(10)
	require.True(t, ok)
	assert.Equal(t, append(bytesOf(8, 1), bytesOf(2, 2)...), got)
}

func TestReplacePolicy_AtCapacity(t *testing.T) {
	b := New(10, WithOverflowPolicy(Replace))

	b.Push(bytesOf(5, 1))
	b.Push(bytesOf(5, 1))
	assert.Equal(t, 10, b.Len())

	assert.Equal(t, 5, b.Push(bytesOf(5, 2)))

	got, ok := b.Pop(10)
	require.True(t, ok)
	assert.Equal(t, append(bytesOf(5, 1), bytesOf(5, 2)...), got)
	assert.Equal(t, uint64(1), b.StatsSnapshot().EvictionsOverflow)
}

func TestTTL_EvictsExpiredEntries(t *testing.T) {
	clockTime := time.Now()
	clock := func() time.Time { return clockTime }

	b := New(1024, WithTTL(time.Minute), withClock(clock))
	b.Push([]byte{1, 2, 3})

	clockTime = clockTime.Add(2 * time.Minute)
	b.Push([]byte{4, 5})

	assert.Equal(t, 2, b.Len())
}

func TestFillPercentAndWatermark(t *testing.T) {
	b := New(100)
	b.Push(bytesOf(5, 1))
	assert.InDelta(t, 5.0, b.FillPercent(), 0.001)
	assert.Equal(t, Low, b.Watermark())

	b.Push(bytesOf(80, 1))
	assert.Equal(t, High, b.Watermark())
}

func TestPeek_NonDestructive(t *testing.T) {
	b := New(1024)
	b.Push([]byte{1, 2, 3, 4})

	got, ok := b.Peek(2)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, got)
	assert.Equal(t, 4, b.Len())
}

func bytesOf(n int, v byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = v
	}
	return out
}
