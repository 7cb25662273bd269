package generics

import (
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceMap(t *testing.T) {
	got := SliceMap([]int{3, 1, 2}, strconv.Itoa)
	assert.Equal(t, []string{"3", "1", "2"}, got)
	assert.Empty(t, SliceMap([]int(nil), strconv.Itoa))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"sg11": 11, "lg1": 1, "sg2": 2}
	// Since the builtin map iterator in Go is deliberately non-deterministic, we
	// run it a bunch of times to show it is stably sorted.
	want := []string{"lg1", "sg11", "sg2"}
	for range 100 {
		got := slices.Collect(SortedKeys(m))
		if !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := MakeSet[string](10)
	assert.Len(t, s, 0)

	s.Insert("sg1", "lg1")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("sg1"))
	assert.False(t, s.Has("sg2"))

	s2 := SetWith("lg1", "lg2")
	s3 := s.Sub(s2)
	assert.Len(t, s3, 1)
	assert.True(t, s3.Has("sg1"))
	assert.Empty(t, s2.Sub(SetWith("lg1", "lg2", "sg3")))
}
