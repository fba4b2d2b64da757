package minipar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeLookupWalksOutwards(t *testing.T) {
	s := newScope()
	s.Set("x", IntValue(1))

	m := s.push()
	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, IntValue(1), v)

	s.Declare("x", IntValue(2))
	v, _ = s.Get("x")
	assert.Equal(t, IntValue(2), v)

	s.pop(m)
	v, _ = s.Get("x")
	assert.Equal(t, IntValue(1), v)
	assert.Len(t, s.frames, 1)
}

func TestScopeSetUpdatesOrCreatesAtBoundary(t *testing.T) {
	s := newScope()
	s.Set("x", IntValue(1))

	outer := s.push()
	inner := s.push()
	s.Set("x", IntValue(10))
	s.Set("y", IntValue(20))
	s.pop(inner)
	s.pop(outer)

	x, _ := s.Get("x")
	assert.Equal(t, IntValue(10), x)
	y, ok := s.Get("y")
	require.True(t, ok)
	assert.Equal(t, IntValue(20), y)
}

func TestScopeCallFramesSeeOnlyGlobals(t *testing.T) {
	s := newScope()
	s.Set("global", IntValue(1))

	block := s.push()
	s.Declare("local", IntValue(2))

	call := s.pushCall()
	_, ok := s.Get("local")
	assert.False(t, ok)
	_, ok = s.Get("global")
	assert.True(t, ok)

	// new names stay in the call frame
	s.Set("temp", IntValue(3))
	s.pop(call)
	_, ok = s.Get("temp")
	assert.False(t, ok)

	s.pop(block)
	_, ok = s.Get("local")
	assert.False(t, ok)
}

func TestScopeCloneIsIndependent(t *testing.T) {
	s := newScope()
	s.Set("counter", IntValue(0))
	s.push()
	s.Declare("local", StringValue("a"))

	c := s.clone()
	c.Set("counter", IntValue(1))
	c.Set("local", StringValue("b"))
	c.SetGlobal("added", BoolValue(true))

	counter, _ := s.Get("counter")
	assert.Equal(t, IntValue(0), counter)
	local, _ := s.Get("local")
	assert.Equal(t, StringValue("a"), local)
	_, ok := s.Get("added")
	assert.False(t, ok)

	counter, _ = c.Get("counter")
	assert.Equal(t, IntValue(1), counter)
	assert.Equal(t, s.depth(), c.depth())
}
