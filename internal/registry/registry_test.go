package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterFirstKeyIsNotRedundant(t *testing.T) {
	reset()
	assert.False(t, Register("key-a"))
	activeN, redundantN := Counts()
	assert.Equal(t, 1, activeN)
	assert.Equal(t, 0, redundantN)
}

func TestRegisterSameKeyTwiceIsRedundant(t *testing.T) {
	reset()
	assert.False(t, Register("key-a"))
	assert.True(t, Register("key-a"))
	activeN, redundantN := Counts()
	assert.Equal(t, 2, activeN)
	assert.Equal(t, 1, redundantN)
}

func TestUnregisterDecrementsCounts(t *testing.T) {
	reset()
	Register("key-a")
	Register("key-a")
	Unregister("key-a")
	activeN, redundantN := Counts()
	assert.Equal(t, 1, activeN)
	assert.Equal(t, 0, redundantN)
}

func TestUnregisterUnknownKeyIsNoop(t *testing.T) {
	reset()
	Register("key-a")
	Unregister("key-b")
	activeN, _ := Counts()
	assert.Equal(t, 1, activeN)
}
