package concurrent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitTimeoutSuccess(t *testing.T) {
	var (
		assert    = assert.New(t)
		waitGroup = new(sync.WaitGroup)
	)

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
	}()

	assert.True(WaitTimeout(waitGroup, 10*time.Second))
}

func TestWaitTimeoutElapsed(t *testing.T) {
	var (
		assert    = assert.New(t)
		waitGroup = new(sync.WaitGroup)
		release   = make(chan struct{})
	)

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
		<-release
	}()

	assert.False(WaitTimeout(waitGroup, 100*time.Millisecond))
	close(release)
}
