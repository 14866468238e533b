package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryDenylist(t *testing.T) {
	d := NewMemoryDenylist()
	now := time.Now()
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDenied("k"))

	d.Deny("k", now.Add(time.Minute))
	assert.True(t, d.IsDenied("k"))

	now = now.Add(2 * time.Minute)
	assert.False(t, d.IsDenied("k"))
	assert.Equal(t, 0, d.Len(), "expired entries are pruned on lookup")
}

func TestDenyKeyFallsBackToDigest(t *testing.T) {
	assert.Equal(t, "abc", denyKey("token", "abc"))
	key := denyKey("token", "")
	assert.Len(t, key, 64)
	assert.Equal(t, key, denyKey("token", ""))
}
