package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := NewDialLimiter(6)
	for i := 0; i < 6; i++ {
		assert.True(t, l.Allow("wss://relay.example.com"), "dial %d should pass", i)
	}
	assert.False(t, l.Allow("wss://relay.example.com"), "burst exhausted")
}

func TestBucketsAreIndependent(t *testing.T) {
	l := NewDialLimiter(1)
	assert.True(t, l.Allow("wss://a.example.com"))
	assert.False(t, l.Allow("wss://a.example.com"))
	assert.True(t, l.Allow("wss://b.example.com"), "other relays keep their own budget")
}

func TestForgetResetsBucket(t *testing.T) {
	l := NewDialLimiter(1)
	assert.True(t, l.Allow("wss://a.example.com"))
	assert.False(t, l.Allow("wss://a.example.com"))
	l.Forget("wss://a.example.com")
	assert.True(t, l.Allow("wss://a.example.com"))
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	l := NewDialLimiter(1)
	assert.True(t, l.Allow("wss://a.example.com"))
	time.Sleep(10 * time.Millisecond)
	l.Cleanup(time.Millisecond)
	assert.True(t, l.Allow("wss://a.example.com"), "cleaned bucket starts fresh")
}
