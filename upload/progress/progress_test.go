package progress

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottler_CoalescesRapidPublishes(t *testing.T) {
	// Given
	var calls []State
	throttler := NewThrottler(func(s State) {
		calls = append(calls, s)
	}, 100, DefaultInterval)

	// When: 100 one-byte completions arrive effectively at once
	for bytes := int64(1); bytes <= 100; bytes++ {
		throttler.Publish(bytes)
	}
	throttler.Finish()

	// Then: almost all intermediate snapshots are coalesced away
	require.NotEmpty(t, calls)
	assert.Less(t, len(calls), 10)

	terminalCalls := 0
	for _, call := range calls {
		if call.Percentage == 100 {
			terminalCalls++
			assert.Equal(t, int64(100), call.BytesTransferred)
		}
	}
	assert.Equal(t, 1, terminalCalls)
}

func TestThrottler_MonotonicSnapshots(t *testing.T) {
	var calls []State
	throttler := NewThrottler(func(s State) {
		calls = append(calls, s)
	}, 1000, time.Nanosecond)

	for _, bytes := range []int64{100, 50, 300, 300, 250, 900, 2000} {
		throttler.Publish(bytes)
	}
	throttler.Finish()

	require.NotEmpty(t, calls)
	previous := int64(-1)
	for _, call := range calls {
		assert.GreaterOrEqual(t, call.BytesTransferred, previous)
		assert.LessOrEqual(t, call.BytesTransferred, call.TotalBytes)
		previous = call.BytesTransferred
	}
	assert.Equal(t, 100, calls[len(calls)-1].Percentage)
}

func TestThrottler_PublishNeverEmitsTerminalSnapshot(t *testing.T) {
	var calls []State
	throttler := NewThrottler(func(s State) {
		calls = append(calls, s)
	}, 10, time.Nanosecond)

	throttler.Publish(10)
	throttler.Publish(10)
	assert.Empty(t, calls)

	throttler.Finish()
	require.Len(t, calls, 1)
	assert.Equal(t, 100, calls[0].Percentage)
}

func TestThrottler_FinishIsIdempotent(t *testing.T) {
	callCount := 0
	throttler := NewThrottler(func(s State) {
		callCount++
	}, 10, time.Nanosecond)

	throttler.Finish()
	throttler.Finish()
	throttler.Publish(5) // after finish, nothing more is emitted

	assert.Equal(t, 1, callCount)
}

func TestThrottler_NilCallback(t *testing.T) {
	throttler := NewThrottler(nil, 10, 0)

	// must not panic
	throttler.Publish(5)
	throttler.Finish()
}

func TestReader_PublishesCumulativeBytes(t *testing.T) {
	var calls []State
	throttler := NewThrottler(func(s State) {
		calls = append(calls, s)
	}, 10, time.Nanosecond)

	reader := NewReader(bytes.NewReader(make([]byte, 10)), throttler)
	buf := make([]byte, 3)
	for {
		if _, err := reader.Read(buf); err == io.EOF {
			break
		}
	}

	require.NotEmpty(t, calls)
	assert.Equal(t, int64(3), calls[0].BytesTransferred)
	for _, call := range calls {
		assert.Equal(t, int64(10), call.TotalBytes)
		assert.Less(t, call.Percentage, 100)
	}

	throttler.Finish()
	assert.Equal(t, 100, calls[len(calls)-1].Percentage)
}
