package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_Overlapping(t *testing.T) {
	res := Compare([]int{1, 2, 3}, []int{2, 3, 4})

	assert.Equal(t, []int{1}, res.LeftOnly)
	assert.Equal(t, []int{4}, res.RightOnly)
	assert.Equal(t, []int{2, 3}, res.Intersect)
	assert.False(t, res.Equal())
}

func TestCompare_Identical(t *testing.T) {
	a := []string{"alice", "bob", "carol"}

	res := Compare(a, a)

	assert.Empty(t, res.LeftOnly)
	assert.Empty(t, res.RightOnly)
	assert.Equal(t, a, res.Intersect)
	assert.True(t, res.Equal())
}

func TestCompare_EmptyRight(t *testing.T) {
	a := []int{5, 3, 9}

	res := Compare(a, []int{})

	assert.Equal(t, a, res.LeftOnly)
	assert.Empty(t, res.RightOnly)
	assert.Empty(t, res.Intersect)
}

func TestCompare_NilInputs(t *testing.T) {
	res := Compare[string](nil, nil)

	assert.NotNil(t, res.LeftOnly)
	assert.NotNil(t, res.RightOnly)
	assert.NotNil(t, res.Intersect)
	assert.True(t, res.Equal())
}

func TestCompare_PreservesOrder(t *testing.T) {
	res := Compare([]int{9, 1, 7, 3}, []int{3, 8, 9, 2})

	assert.Equal(t, []int{1, 7}, res.LeftOnly)
	assert.Equal(t, []int{8, 2}, res.RightOnly)
	assert.Equal(t, []int{9, 3}, res.Intersect)
}

func TestCompare_DuplicatesOnLeft(t *testing.T) {
	res := Compare([]int{1, 1, 2}, []int{2})

	// Each left occurrence is classified on its own.
	assert.Equal(t, []int{1, 1}, res.LeftOnly)
	assert.Equal(t, []int{2}, res.Intersect)
	assert.Empty(t, res.RightOnly)
}
