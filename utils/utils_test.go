package utils

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"1", "2", "3"}, Map([]int{1, 2, 3}, strconv.Itoa))
	assert.Equal(t, []string{}, Map([]int{}, strconv.Itoa))
}

func TestFirstN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", FirstN("abcdef", 3))
	assert.Equal(t, "abc", FirstN("abc", 10))
	assert.Equal(t, "", FirstN("abc", 0))
	// rune-aware, not byte-aware
	assert.Equal(t, "è§", FirstN("è§ç", 2))
}
