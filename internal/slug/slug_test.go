package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Malmö Kampsportsklubb", "malmo-kampsportsklubb"},
		{"  Åre   Fight Night!! 2025 ", "are-fight-night-2025"},
		{"Crème brûlée & Co.", "creme-brulee-co"},
		{"---", ""},
		{"", ""},
		{"Ωmega", "mega"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, FromName(tc.in))
		})
	}
}

func TestFromName_TrimsToMaxLen(t *testing.T) {
	got := FromName(strings.Repeat("abcdefghi ", 10))
	assert.LessOrEqual(t, len(got), MaxLen)
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestRandom(t *testing.T) {
	s, err := Random(RandomLen)
	require.NoError(t, err)
	assert.Len(t, s, RandomLen)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(alphabet, r))
	}
}

func TestPick_UsesFriendlySlug(t *testing.T) {
	got, err := Pick("Göteborg MMA", func(string) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, "goteborg-mma", got)
}

func TestPick_SuffixesOnCollision(t *testing.T) {
	got, err := Pick("Göteborg MMA", func(s string) bool { return s == "goteborg-mma" })
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "goteborg-mma-"))
	assert.Len(t, got, len("goteborg-mma-")+SuffixLen)
}

func TestPick_FallsBackToRandom(t *testing.T) {
	cases := []struct {
		name  string
		src   string
		taken func(string) bool
	}{
		{"reserved", "Admin", func(string) bool { return false }},
		{"empty", "!!!", func(string) bool { return false }},
		{"no source", "", func(string) bool { return false }},
		{"every suffix taken", "club", func(s string) bool { return strings.HasPrefix(s, "club") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Pick(tc.src, tc.taken)
			require.NoError(t, err)
			assert.Len(t, got, RandomLen)
		})
	}
}
