package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/flow/clock"
)

func TestFake(t *testing.T) {
	c := clock.NewFake()
	start := c.Now()
	var fired []int
	c.AfterFunc(20*time.Millisecond, func() { fired = append(fired, 2) })
	c.AfterFunc(10*time.Millisecond, func() { fired = append(fired, 1) })
	stopped := c.AfterFunc(5*time.Millisecond, func() { fired = append(fired, 0) })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(9 * time.Millisecond)
	assert.Empty(t, fired)
	assert.Equal(t, 2, c.Pending())

	c.Advance(11 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, fired)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 20*time.Millisecond, c.Now().Sub(start))
}

func TestReal(t *testing.T) {
	c := clock.Real()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
