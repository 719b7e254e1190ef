package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	var km KeyedMutex
	var a, b int
	counters := map[string]*int{"a": &a, "b": &b}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				unlock := km.Lock(key)
				defer unlock()
				*counters[key]++
			}(key)
		}
	}
	wg.Wait()
	assert.Equal(t, 50, a)
	assert.Equal(t, 50, b)
	assert.Zero(t, km.Len())
}
