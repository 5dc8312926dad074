package peers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemovedCacheBounded(t *testing.T) {
	c := NewRemovedCache(2)
	c.Add("1.1.1.1")
	c.Add("2.2.2.2")
	c.Add("3.3.3.3")

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Contains("1.1.1.1"))
	assert.True(t, c.Contains("3.3.3.3"))
}

func TestRemovedCacheShrinkBothEnds(t *testing.T) {
	c := NewRemovedCache(10)
	c.Add("1.1.1.1")
	c.Add("2.2.2.2")
	c.Add("3.3.3.3")

	c.ShrinkBothEnds()

	assert.False(t, c.Contains("1.1.1.1"))
	assert.True(t, c.Contains("2.2.2.2"))
	assert.False(t, c.Contains("3.3.3.3"))
}

func TestRemovedCacheShrinkSingleEntry(t *testing.T) {
	c := NewRemovedCache(10)
	c.Add("1.1.1.1")
	c.ShrinkBothEnds()
	assert.Equal(t, 0, c.Len())
}
