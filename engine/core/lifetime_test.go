package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifetimeDefersShutdownUntilLastRelease(t *testing.T) {
	calls := 0
	l := NewLifetime("device", func() { calls++ })

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Acquire())

	l.RequestShutdown()
	assert.Equal(t, 0, calls)
	assert.True(t, l.ShutdownRequested())
	assert.False(t, l.ShutDown())

	l.Release()
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, l.Count())

	l.Release()
	assert.Equal(t, 1, calls)
	assert.True(t, l.ShutDown())
}

func TestLifetimeShutdownWithNoReferences(t *testing.T) {
	calls := 0
	l := NewLifetime("device", func() { calls++ })

	l.RequestShutdown()
	assert.Equal(t, 1, calls)

	l.RequestShutdown()
	assert.Equal(t, 1, calls)
}

func TestLifetimeReleaseWithoutRequestKeepsDevice(t *testing.T) {
	calls := 0
	l := NewLifetime("device", func() { calls++ })

	require.NoError(t, l.Acquire())
	l.Release()
	assert.Equal(t, 0, calls)
	assert.False(t, l.ShutDown())

	// a stray release never drives the count negative
	l.Release()
	assert.Equal(t, 0, l.Count())

	require.NoError(t, l.Acquire())
	l.RequestShutdown()
	assert.Equal(t, 0, calls)
	l.Release()
	assert.Equal(t, 1, calls)
}

func TestLifetimeAcquireAfterTeardownFails(t *testing.T) {
	l := NewLifetime("device", nil)
	l.RequestShutdown()

	err := l.Acquire()
	assert.ErrorIs(t, err, ErrDeviceShutDown)
	assert.Equal(t, 0, l.Count())
}
