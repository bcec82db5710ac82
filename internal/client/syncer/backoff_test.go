package syncer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Values(t *testing.T) {
	p := DefaultBackoffPolicy()

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{3, 16 * time.Second},
		{7, 256 * time.Second},
		{8, 5 * time.Minute},
		{20, 300 * time.Second},
		{math.MaxInt32, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.n), "n=%d", tt.n)
	}
}

func TestBackoff_Monotonic(t *testing.T) {
	p := DefaultBackoffPolicy()
	prev := time.Duration(0)
	for n := 0; n < 100; n++ {
		d := p.Backoff(n)
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, p.Ceiling)
		prev = d
	}
}

func TestBackoff_ZeroPolicyUsesDefaults(t *testing.T) {
	var p BackoffPolicy
	assert.Equal(t, 16*time.Second, p.Backoff(3))
	assert.Equal(t, DefaultMaxRetries, p.normalized().MaxRetries)
}

func TestNextAttempt(t *testing.T) {
	p := DefaultBackoffPolicy()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(4*time.Second), p.NextAttempt(1, now))
}
