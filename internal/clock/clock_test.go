package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrozen_SetAndAdvance(t *testing.T) {
	start := time.Date(2001, 1, 1, 9, 30, 0, 0, time.UTC)
	c := NewFrozen(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "frozen clock must not move on its own")

	next := c.Advance(24 * time.Hour)
	assert.Equal(t, start.AddDate(0, 0, 1), next)
	assert.Equal(t, next, c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestFrozen_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFrozen(start)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Minute)
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(50*time.Minute), c.Now())
}

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	assert.False(t, got.Before(before))
}
