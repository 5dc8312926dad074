package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageDedupFirstThenDuplicate(t *testing.T) {
	d := NewMessageDedup(16, time.Minute)
	assert.False(t, d.SeenBefore("abc"))
	assert.True(t, d.SeenBefore("abc"))
}

func TestMessageDedupExpiresAfterTTL(t *testing.T) {
	d := NewMessageDedup(16, time.Millisecond)
	assert.False(t, d.SeenBefore("abc"))
	time.Sleep(5 * time.Millisecond)
	assert.False(t, d.SeenBefore("abc"))
}
