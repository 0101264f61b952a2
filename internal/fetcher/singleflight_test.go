package fetcher

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSingleFlight(t *testing.T) {
	var g Group
	var calls int32

	fn := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return "result", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err, _ := g.Do("key", fn)
			if err != nil {
				t.Errorf("Do error: %v", err)
			}
			if val != "result" {
				t.Errorf("got %v, want %v", val, "result")
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache(t *testing.T) {
	c := NewCache[string]()
	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "/tmp/a.jpg")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/a.jpg", v)
}
