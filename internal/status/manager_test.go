package status

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinLeave(t *testing.T) {
	m := NewManager(nil)
	assert.False(t, m.Online("a"))

	m.Join("a")
	m.Join("a")
	m.Join("b")
	assert.Equal(t, 2, m.Sessions("a"))
	assert.Equal(t, []string{"a", "b"}, m.OnlineUsers())

	m.Leave("a")
	assert.True(t, m.Online("a"))
	m.Leave("a")
	assert.False(t, m.Online("a"))

	// extra leave is harmless
	m.Leave("a")
	assert.Equal(t, 0, m.Sessions("a"))
	assert.Equal(t, []string{"b"}, m.OnlineUsers())
}

func TestConcurrentPresence(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Join("a")
			m.Leave("a")
		}()
	}
	wg.Wait()
	assert.False(t, m.Online("a"))
	assert.Empty(t, m.OnlineUsers())
}
