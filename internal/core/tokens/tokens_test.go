package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApprox(t *testing.T) {
	assert.Equal(t, 0, Approx(""))
	assert.Equal(t, 1, Approx("abc"))
	assert.Equal(t, 1, Approx("abcd"))
	assert.Equal(t, 2, Approx("abcde"))
	// runes, not bytes
	assert.Equal(t, 1, Approx("ééé"))
}

func TestCounterFunc(t *testing.T) {
	c := CounterFunc(func(s string) int { return len(s) * 2 })
	assert.Equal(t, 6, c.Count("abc"))
}

func TestTiktoken_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0, NewTiktoken().Count(""))
}

func TestTiktoken_StableAcrossCalls(t *testing.T) {
	c := NewTiktoken()
	text := "The quick brown fox jumps over the lazy dog."
	first := c.Count(text)
	assert.Positive(t, first)
	assert.Equal(t, first, c.Count(text))
}
