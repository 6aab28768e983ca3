package chance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRollBounds(t *testing.T) {
	s := New(1)
	for i := 0; i < 100; i++ {
		assert.False(t, s.Roll(0))
		assert.True(t, s.Roll(1))
	}
}

func TestSeededSourcesAgree(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Roll(0.5), b.Roll(0.5))
		assert.Equal(t, a.Duration(time.Second), b.Duration(time.Second))
		assert.Equal(t, a.Sign(), b.Sign())
	}
}

func TestDurationAndSign(t *testing.T) {
	s := New(9)
	assert.Zero(t, s.Duration(0))
	for i := 0; i < 200; i++ {
		d := s.Duration(10 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 10*time.Millisecond)
		assert.Contains(t, []int{-1, 1}, s.Sign())
	}
}
