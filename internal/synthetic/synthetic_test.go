package synthetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(DefaultOptions())
	b := Generate(DefaultOptions())
	assert.Equal(t, a.Games, b.Games)
	assert.Equal(t, a.Stats, b.Stats)
	assert.Equal(t, a.Talent, b.Talent)

	opts := DefaultOptions()
	opts.Seed = 7
	c := Generate(opts)
	assert.NotEqual(t, a.Stats, c.Stats)
}

func TestGenerate_Shape(t *testing.T) {
	d := Generate(DefaultOptions())
	require.Len(t, d.Games, 100)
	assert.Len(t, d.Talent, len(DefaultTeams()))
	assert.Len(t, d.Stats, 5*len(DefaultTeams()))

	for _, g := range d.Games {
		assert.NotEqual(t, g.HomeTeam, g.AwayTeam)
		require.True(t, g.HasScore())
		assert.NotEqual(t, *g.HomePoints, *g.AwayPoints)
		assert.GreaterOrEqual(t, *g.AwayPoints, 0)
		assert.True(t, g.Week >= 1 && g.Week <= 12)
	}
	for _, team := range DefaultTeams() {
		s := d.Strength(team)
		assert.True(t, s >= 0 && s <= 1)
	}
}

func TestGenerate_Unscored(t *testing.T) {
	opts := DefaultOptions()
	opts.Unscored = true
	opts.Games = 5
	opts.Teams = []string{"Army", "Navy"}

	d := Generate(opts)
	require.Len(t, d.Games, 5)
	for _, g := range d.Games {
		assert.False(t, g.HasScore())
		assert.ElementsMatch(t, []string{"Army", "Navy"}, []string{g.HomeTeam, g.AwayTeam})
	}
}

func TestMatchups(t *testing.T) {
	games := Matchups(2024, 3, DemoMatchups...)
	require.Len(t, games, 5)
	assert.Equal(t, "Alabama", games[0].HomeTeam)
	assert.Equal(t, "Georgia", games[0].AwayTeam)
	assert.Equal(t, 3, games[4].Week)
	assert.False(t, games[0].HasScore())
}
