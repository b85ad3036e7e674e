package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	err := c.AcquireMemory(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.MemoryUsage())

	err = c.AcquireMemory(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Acquire 20 blocks until the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = c.AcquireMemory(ctx, 20)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	err = c.AcquireMemory(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_OversizedRequestIsCapped(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(context.Background(), 500))
	assert.ErrorIs(t, acquireMemoryWithin(c, 1), context.DeadlineExceeded)

	c.ReleaseMemory(500)
	require.NoError(t, acquireMemoryWithin(c, 100))
	assert.Equal(t, int64(100), c.MemoryUsage())
}

func acquireMemoryWithin(c *Controller, bytes int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	return c.AcquireMemory(ctx, bytes)
}

func acquireBuildWithin(c *Controller) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	return c.AcquireBuild(ctx)
}

func TestController_UnlimitedAndNil(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	var nilc *Controller
	require.NoError(t, nilc.AcquireMemory(context.Background(), 1))
	require.NoError(t, nilc.AcquireBuild(context.Background()))
	nilc.ReleaseBuild()
	nilc.ReleaseMemory(1)
	assert.Equal(t, int64(0), nilc.MemoryUsage())
}

func TestController_Builds(t *testing.T) {
	c := NewController(Config{MaxConcurrentBuilds: 2})

	require.NoError(t, c.AcquireBuild(context.Background()))
	require.NoError(t, acquireBuildWithin(c))
	assert.ErrorIs(t, acquireBuildWithin(c), context.DeadlineExceeded)

	c.ReleaseBuild()
	require.NoError(t, acquireBuildWithin(c))
	assert.Equal(t, int64(2), c.Config().MaxConcurrentBuilds)
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Larger than the burst: split into several waits.
	require.NoError(t, c.AcquireIO(context.Background(), 3<<20/2))

	data := bytes.Repeat([]byte("x"), 4096)
	r := NewRateLimitedReader(context.Background(), bytes.NewReader(data), c)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
