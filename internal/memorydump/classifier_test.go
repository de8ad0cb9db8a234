package memorydump

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClassifier_Defaults(t *testing.T) {
	c := NewClassifier(nil, 0)
	assert.Same(t, RootCategory, c.Root())
	assert.Equal(t, []string{"/", "Stack"}, c.Classify("[stack]"))
	assert.Equal(t, []string{"/", "/Stack"}, c.Paths("[stack]"))
	assert.Zero(t, c.CacheLen())
}

func TestClassifier_Cache(t *testing.T) {
	c := NewClassifier(nil, 2)

	first := c.Paths("/system/lib/libc.so")
	assert.Equal(t, []string{"/", "/Files", "/Files/so"}, first)
	assert.Equal(t, 1, c.CacheLen())

	again := c.Paths("/system/lib/libc.so")
	assert.Equal(t, first, again)
	assert.Equal(t, 1, c.CacheLen())

	c.Paths("[heap]")
	c.Paths("[stack]")
	assert.Equal(t, 2, c.CacheLen())
}

func TestClassifier_ConcurrentPaths(t *testing.T) {
	c := NewClassifier(nil, 8)
	files := []string{"/dev/ashmem/dalvik-alloc space", "[heap]", "/dev/kgsl-3d0", "/a.so"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f := files[(i+j)%len(files)]
				paths := c.Paths(f)
				if assert.NotEmpty(t, paths) {
					assert.Equal(t, "/", paths[0], fmt.Sprintf("file %s", f))
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, len(files), c.CacheLen())
}
