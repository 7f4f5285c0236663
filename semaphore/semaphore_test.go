package semaphore

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNewInvalidCount(t *testing.T) {
	for _, c := range []int{0, -1} {
		t.Run(strconv.Itoa(c), func(t *testing.T) {
			assert.Panics(t, func() {
				New(c)
			})
		})
	}
}

func testNewValidCount(t *testing.T) {
	for _, c := range []int{1, 2, 5} {
		t.Run(strconv.Itoa(c), func(t *testing.T) {
			var (
				assert  = assert.New(t)
				require = require.New(t)
				s       = New(c)
			)

			require.NotNil(s)

			p, ok := s.(Pool)
			require.True(ok)
			assert.Zero(p.InUse())
			assert.Equal(c, p.Capacity())
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("InvalidCount", testNewInvalidCount)
	t.Run("ValidCount", testNewValidCount)
}

func TestMutex(t *testing.T) {
	var (
		assert = assert.New(t)
		s      = Mutex()
	)

	assert.True(s.TryAcquire())
	assert.False(s.TryAcquire())
	assert.NoError(s.Release())
	assert.True(s.TryAcquire())
}

func TestTryAcquire(t *testing.T) {
	const totalCount = 3

	var (
		assert = assert.New(t)
		s      = New(totalCount)
	)

	for i := 0; i < totalCount; i++ {
		assert.True(s.TryAcquire())
	}

	assert.False(s.TryAcquire())
	s.Release()
	assert.True(s.TryAcquire())
	assert.False(s.TryAcquire())
}

func TestAcquireWait(t *testing.T) {
	var (
		assert = assert.New(t)
		s      = New(1)
		timer  = make(chan time.Time, 1)
	)

	assert.NoError(s.AcquireWait(timer))

	timer <- time.Now()
	assert.Equal(ErrTimeout, s.AcquireWait(timer))

	s.Release()
	assert.NoError(s.AcquireWait(timer))
}

func TestAcquireCtx(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
		s       = New(1)
	)

	require.NoError(s.AcquireCtx(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(ctx.Err(), s.AcquireCtx(ctx))

	s.Release()
	assert.NoError(s.AcquireCtx(context.Background()))
}

func TestPoolUsage(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
		s       = New(2)
	)

	p, ok := s.(Pool)
	require.True(ok)

	require.NoError(s.Acquire())
	assert.Equal(1, p.InUse())

	require.NoError(s.Acquire())
	assert.Equal(2, p.InUse())
	assert.Equal(2, p.Capacity())

	s.Release()
	assert.Equal(1, p.InUse())
}
