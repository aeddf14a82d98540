package core

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierPool(t *testing.T) {
	p := NewIdentifierPool()

	a := p.Acquire("chalet")
	b := p.Acquire("quad")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, p.Len())

	owner, ok := p.Owner(a)
	require.True(t, ok)
	assert.Equal(t, "chalet", owner)

	require.NoError(t, p.Release(a))
	_, ok = p.Owner(a)
	assert.False(t, ok)
	assert.Error(t, p.Release(a))
	assert.Error(t, p.Release(uuid.Nil))
}
