package idem

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_RememberAndSeen(t *testing.T) {
	g := NewGuard[struct{}](3)
	assert.False(t, g.Seen("r1"))
	g.Remember("r1", struct{}{})
	assert.True(t, g.Seen("r1"))
	assert.False(t, g.Seen(""))
	g.Remember("", struct{}{})
	assert.Equal(t, 1, g.Len())
}

func TestGuard_LookupKeepsFirstValue(t *testing.T) {
	g := NewGuard[int](3)
	g.Remember("r1", 7)
	g.Remember("r1", 9)

	v, ok := g.Lookup("r1")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = g.Lookup("r2")
	assert.False(t, ok)
}

func TestGuard_EvictsOldestInserted(t *testing.T) {
	g := NewGuard[struct{}](3)
	g.Remember("a", struct{}{})
	g.Remember("b", struct{}{})
	g.Remember("c", struct{}{})
	// Re-remembering does not refresh: this is FIFO, not LRU.
	g.Remember("a", struct{}{})
	g.Remember("d", struct{}{})

	assert.False(t, g.Seen("a"))
	assert.True(t, g.Seen("b"))
	assert.True(t, g.Seen("c"))
	assert.True(t, g.Seen("d"))

	g.Remember("e", struct{}{})
	assert.False(t, g.Seen("b"))
	assert.Equal(t, 3, g.Len())
}

func TestGuard_DefaultCapacity(t *testing.T) {
	g := NewGuard[int](0)
	for i := 0; i < DefaultCapacity+50; i++ {
		g.Remember(fmt.Sprintf("rid-%d", i), i)
	}
	assert.Equal(t, DefaultCapacity, g.Len())
	assert.False(t, g.Seen("rid-49"))
	assert.True(t, g.Seen("rid-50"))
	assert.True(t, g.Seen(fmt.Sprintf("rid-%d", DefaultCapacity+49)))
}
