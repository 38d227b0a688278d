package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStack verifies LIFO ordering, Peek and the 1-indexed Get accessor.
func TestStack(t *testing.T) {
	s := Stack{}
	assert.Nil(t, s.Pop())
	assert.Nil(t, s.Peek())

	s.Push("a")
	s.Push("b")
	s.Push("c")
	assert.Equal(t, 3, s.Size())

	assert.Equal(t, "c", s.Peek())
	assert.Equal(t, "c", s.Get(1))
	assert.Equal(t, "a", s.Get(3))
	assert.Nil(t, s.Get(0))
	assert.Nil(t, s.Get(4))

	assert.Equal(t, "c", s.Pop())
	assert.Equal(t, "b", s.Pop())
	assert.Equal(t, "a", s.Pop())
	assert.Equal(t, 0, s.Size())
	assert.Nil(t, s.Pop())

	// nil values are not stored.
	s.Push(nil)
	assert.Equal(t, 0, s.Size())
}
