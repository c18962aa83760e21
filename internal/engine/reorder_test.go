package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorder(t *testing.T) {
	cases := []struct {
		name  string
		ids   []int
		order []int
		want  []int
	}{
		{"full id order", []int{10, 20, 30}, []int{30, 10, 20}, []int{30, 10, 20}},
		{"subset keeps rest in original order", []int{10, 20, 30, 40}, []int{40, 20}, []int{40, 20, 10, 30}},
		{"unknown ids ignored", []int{10, 20, 30}, []int{99, 30}, []int{30, 10, 20}},
		{"repeated id used once", []int{10, 20}, []int{20, 20}, []int{20, 10}},
		{"positional fallback", []int{10, 20, 30}, []int{2, 0, 1}, []int{30, 10, 20}},
		{"no fallback when lengths differ", []int{10, 20, 30}, []int{2, 0}, []int{10, 20, 30}},
		{"no fallback when out of range", []int{10, 20, 30}, []int{2, 0, 3}, []int{10, 20, 30}},
		{"ids win over positions", []int{1, 2, 3}, []int{2, 0, 1}, []int{2, 1, 3}},
		{"empty order", []int{1, 2}, nil, []int{1, 2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fights := make([]Fight, len(tc.ids))
			for i, id := range tc.ids {
				fights[i] = Fight{ID: id, A: "a", B: "b"}
			}
			got := reorder(fights, tc.order)
			assert.Equal(t, tc.want, ids(got))
		})
	}
}

func TestApply_ReorderTracksLiveFight(t *testing.T) {
	s := stateWith(4) // ids 1..4
	s.Current = 1     // id 2

	_, next, err := Apply(s, ReorderFights{Order: []int{4, 3, 2, 1}})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2, 1}, ids(next.Fights))
	assert.Equal(t, 2, next.Current)
	assert.Equal(t, 2, next.Fights[next.Current].ID)
}

func TestApply_ReorderOnEmptyCard(t *testing.T) {
	_, next, err := Apply(NewEmptyState(), ReorderFights{Order: []int{1, 2}})
	require.NoError(t, err)
	assert.Empty(t, next.Fights)
	assert.Equal(t, 0, next.Current)
}
