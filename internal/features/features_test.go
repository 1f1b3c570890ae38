package features

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zring/cfbmodel/internal/cfbd"
)

func intPtr(v int) *int { return &v }

func sampleGames() []cfbd.Game {
	return []cfbd.Game{
		{ID: 1, Week: 1, HomeTeam: "Georgia", AwayTeam: "Clemson", HomePoints: intPtr(34), AwayPoints: intPtr(3)},
		{ID: 2, Week: 1, HomeTeam: "Clemson", AwayTeam: "Georgia", HomePoints: intPtr(21), AwayPoints: intPtr(24)},
		{ID: 3, Week: 2, HomeTeam: "Georgia", AwayTeam: "Nowhere State"},
	}
}

func sampleStats() StatLookup {
	return PivotStats([]StatRow{
		{Team: "Georgia", StatName: "totalYards", StatValue: 6000},
		{Team: "Georgia", StatName: "netPassingYards", StatValue: 3500},
		{Team: "Georgia", StatName: "passingYards", StatValue: 3700},
		{Team: "Georgia", StatName: "rushingYards", StatValue: 2500},
		{Team: "Georgia", StatName: "points", StatValue: 480},
		{School: "Clemson", StatName: "totalYards", StatValue: 5000},
		{School: "Clemson", StatName: "passingYards", StatValue: 3000},
		{School: "Clemson", StatName: "rushingYards", StatValue: 2000},
		{School: "Clemson", StatName: "pointsFor", StatValue: 400},
	})
}

func TestColumns_Order(t *testing.T) {
	want := []string{
		"home_off_total_yards", "home_off_passing_yards", "home_off_rushing_yards", "home_off_points", "home_talent",
		"away_off_total_yards", "away_off_passing_yards", "away_off_rushing_yards", "away_off_points", "away_talent",
		"talent_diff", "yards_diff", "points_diff",
	}
	assert.Equal(t, want, Columns())
	assert.Equal(t, 13, NumFeatures())

	// Columns returns a copy.
	c := Columns()
	c[0] = "mutated"
	assert.Equal(t, HomeOffTotalYards, Columns()[0])
}

func TestPivotStats_Aliases(t *testing.T) {
	stats := sampleStats()
	require.Len(t, stats, 2)

	uga := stats["Georgia"]
	assert.Equal(t, 6000.0, uga.TotalYards)
	assert.Equal(t, 3500.0, uga.PassingYards, "netPassingYards is preferred over passingYards")
	assert.Equal(t, 480.0, uga.Points)

	clem := stats["Clemson"]
	assert.Equal(t, 3000.0, clem.PassingYards, "passingYards is the fallback")
	assert.Equal(t, 400.0, clem.Points, "pointsFor is the fallback")
}

func TestPivotStats_SkipsBlankAndLastWins(t *testing.T) {
	stats := PivotStats([]StatRow{
		{Team: "", StatName: "totalYards", StatValue: 1},
		{Team: "Army", StatName: "", StatValue: 1},
		{Team: "Army", StatName: "totalYards", StatValue: 100},
		{Team: "Army", StatName: "totalYards", StatValue: 200},
	})
	require.Len(t, stats, 1)
	assert.Equal(t, 200.0, stats["Army"].TotalYards)
	assert.Equal(t, 0.0, stats["Army"].RushingYards)
}

func TestWideStats(t *testing.T) {
	stats := WideStats(map[string]map[string]float64{
		"Navy": {"totalYards": 4000, "totalPoints": 300},
		"  ":   {"totalYards": 1},
	})
	require.Len(t, stats, 1)
	assert.Equal(t, 300.0, stats["Navy"].Points)
}

func TestStatRowsFromAPI(t *testing.T) {
	rows := StatRowsFromAPI([]cfbd.TeamStat{{Team: "Air Force", StatName: "rushingYards", StatValue: 3100}})
	require.Len(t, rows, 1)
	assert.Equal(t, "Air Force", rows[0].Team)
	assert.Equal(t, 3100.0, rows[0].StatValue)
}

func TestBuild(t *testing.T) {
	talent := TalentFromAPI([]cfbd.TeamTalent{
		{School: "Georgia", Talent: 1000},
		{School: "Clemson", Talent: 900},
		{School: "", Talent: 5},
	})
	table := Build(sampleGames(), sampleStats(), talent)
	require.Equal(t, 3, table.Len())

	r := table.Rows[0]
	assert.Equal(t, 1, r.GameID)
	assert.Equal(t, "Georgia", r.HomeTeam)
	assert.Equal(t, 1000.0, r.Value(HomeTalent))
	assert.Equal(t, 900.0, r.Value(AwayTalent))
	assert.Equal(t, 100.0, r.Value(TalentDiff))
	assert.Equal(t, 1000.0, r.Value(YardsDiff))
	assert.Equal(t, 80.0, r.Value(PointsDiff))
	assert.Equal(t, 0.0, r.Value("not_a_column"))

	// Unknown team gets zeros.
	r = table.Rows[2]
	assert.Equal(t, 0.0, r.Value(AwayOffTotalYards))
	assert.Equal(t, 0.0, r.Value(AwayTalent))
	assert.Equal(t, 6000.0, r.Value(YardsDiff))
}

func TestBuild_NoTalent(t *testing.T) {
	table := Build(sampleGames(), sampleStats(), nil)
	assert.Equal(t, 0.0, table.Rows[0].Value(TalentDiff))
	assert.Equal(t, 6000.0, table.Rows[0].Value(HomeOffTotalYards))
}

func TestTrainingData(t *testing.T) {
	table := Build(sampleGames(), sampleStats(), nil)

	X, y := table.TrainingData()
	require.Len(t, X, 2, "unscored games are excluded")
	assert.Equal(t, []int{1, 0}, y)
	assert.Len(t, X[0], NumFeatures())

	// Modifying the returned matrix must not touch the table.
	X[0][0] = -1
	assert.Equal(t, 6000.0, table.Rows[0].Features[0])

	assert.Equal(t, [2]int{1, 1}, table.LabelCounts())
}

func TestLabel_Tie(t *testing.T) {
	r := Row{HomePoints: intPtr(10), AwayPoints: intPtr(10)}
	assert.Equal(t, 0, r.Label())
}

func TestMatrixAndSelect(t *testing.T) {
	table := Build(sampleGames(), sampleStats(), nil)

	X := table.Matrix()
	assert.Len(t, X, 3)

	sel, names := table.Select([]string{PointsDiff, "bogus", HomeOffPoints})
	assert.Equal(t, []string{PointsDiff, HomeOffPoints}, names)
	require.Len(t, sel, 3)
	assert.Equal(t, []float64{80, 480}, sel[0])
}

func TestDense(t *testing.T) {
	assert.Nil(t, (&Table{}).Dense())

	table := Build(sampleGames(), sampleStats(), nil)
	d := table.Dense()
	r, c := d.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, NumFeatures(), c)
	assert.Equal(t, 5000.0, d.At(1, 0))
}

func TestDescribe(t *testing.T) {
	table := Build(sampleGames()[:2], sampleStats(), nil)
	summary := table.Describe()
	require.Len(t, summary, NumFeatures())

	s := summary[0]
	assert.Equal(t, HomeOffTotalYards, s.Name)
	assert.InDelta(t, 5500, s.Mean, 1e-9)
	assert.Equal(t, 5000.0, s.Min)
	assert.Equal(t, 6000.0, s.Max)
	assert.Greater(t, s.StdDev, 0.0)

	empty := (&Table{}).Describe()
	assert.Equal(t, 0.0, empty[0].Mean)
}

func TestAttachLines(t *testing.T) {
	spread := cfbd.Number(-7)
	table := Build(sampleGames(), sampleStats(), nil)
	n := table.AttachLines([]cfbd.GameLine{
		{ID: 1, Lines: []cfbd.ProviderLine{{Provider: "x", Spread: &spread}}},
		{ID: 99, Lines: []cfbd.ProviderLine{{Provider: "x", Spread: &spread}}},
		{ID: 2},
	})
	assert.Equal(t, 1, n)
	require.NotNil(t, table.Rows[0].Spread)
	assert.Equal(t, -7.0, *table.Rows[0].Spread)
	assert.Nil(t, table.Rows[1].Spread)
}

func TestAliases(t *testing.T) {
	aliases, err := ParseAliases([]byte("Miami:\n  - Miami (FL)\n  - Miami Hurricanes\nOle Miss:\n  - Mississippi\n"))
	require.NoError(t, err)

	assert.Equal(t, "Miami", aliases.Canonical("Miami (FL)"))
	assert.Equal(t, "Miami", aliases.Canonical("miami hurricanes"))
	assert.Equal(t, "Ole Miss", aliases.Canonical(" Mississippi "))
	assert.Equal(t, "Texas", aliases.Canonical("Texas"))
	assert.Equal(t, 5, aliases.Len())

	var none *Aliases
	assert.Equal(t, "Texas", none.Canonical("Texas "))
	assert.Equal(t, 0, none.Len())
}

func TestAliases_InvalidYAML(t *testing.T) {
	_, err := ParseAliases([]byte("- just\n- a list\n"))
	assert.Error(t, err)
}

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("UConn:\n  - Connecticut\n"), 0o600))

	aliases, err := LoadAliases(path)
	require.NoError(t, err)
	assert.Equal(t, "UConn", aliases.Canonical("Connecticut"))

	_, err = LoadAliases(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAliasesFromTeamsAndMerge(t *testing.T) {
	fromTeams := AliasesFromTeams([]cfbd.Team{{School: "Miami", AlternateNames: []string{"Miami (FL)"}}})
	custom := NewAliases(map[string][]string{"USC": {"Southern California"}})

	merged := fromTeams.Merge(custom)
	assert.Equal(t, "Miami", merged.Canonical("Miami (FL)"))
	assert.Equal(t, "USC", merged.Canonical("Southern California"))
}

func TestBuilder_ResolvesAliases(t *testing.T) {
	games := []cfbd.Game{{ID: 10, HomeTeam: "Miami", AwayTeam: "Florida State"}}
	stats := PivotStats([]StatRow{
		{Team: "Miami (FL)", StatName: "totalYards", StatValue: 5500},
		{Team: "Florida State", StatName: "totalYards", StatValue: 5000},
	})
	talent := TalentLookup{"Miami Hurricanes": 850, "Florida State": 900}

	b := &Builder{Aliases: NewAliases(map[string][]string{"Miami": {"Miami (FL)", "Miami Hurricanes"}})}
	table := b.Build(games, stats, talent)

	r := table.Rows[0]
	assert.Equal(t, 5500.0, r.Value(HomeOffTotalYards))
	assert.Equal(t, 850.0, r.Value(HomeTalent))
	assert.Equal(t, 500.0, r.Value(YardsDiff))
	assert.Equal(t, -50.0, r.Value(TalentDiff))
}

func TestCanonicalize_ExactNameWins(t *testing.T) {
	aliases := NewAliases(map[string][]string{"Miami": {"Miami (FL)"}})
	out := canonicalize(map[string]float64{"Miami": 1, "Miami (FL)": 2}, aliases)
	assert.Equal(t, map[string]float64{"Miami": 1}, out)
}
