package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReal_ZeroAndNegativeReturnImmediately(t *testing.T) {
	s := Real{}

	require.NoError(t, s.Sleep(context.Background(), 0))
	require.NoError(t, s.Sleep(context.Background(), -time.Second))
}

func TestReal_CancelledContext(t *testing.T) {
	s := Real{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Sleep(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFake_RecordsDurations(t *testing.T) {
	s := &Fake{}

	require.NoError(t, s.Sleep(context.Background(), 3*time.Second))
	require.NoError(t, s.Sleep(context.Background(), 6*time.Second))

	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, s.Slept)
}

func TestFake_HonorsCancellation(t *testing.T) {
	s := &Fake{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, s.Sleep(ctx, time.Second))
	assert.Empty(t, s.Slept)
}
