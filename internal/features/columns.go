// Package features turns games, team statistics and talent ratings into the
// fixed numeric feature table consumed by the classifiers.
package features

// Feature column names, in table order.
const (
	HomeOffTotalYards   = "home_off_total_yards"
	HomeOffPassingYards = "home_off_passing_yards"
	HomeOffRushingYards = "home_off_rushing_yards"
	HomeOffPoints       = "home_off_points"
	HomeTalent          = "home_talent"
	AwayOffTotalYards   = "away_off_total_yards"
	AwayOffPassingYards = "away_off_passing_yards"
	AwayOffRushingYards = "away_off_rushing_yards"
	AwayOffPoints       = "away_off_points"
	AwayTalent          = "away_talent"
	TalentDiff          = "talent_diff"
	YardsDiff           = "yards_diff"
	PointsDiff          = "points_diff"
)

var columns = []string{
	HomeOffTotalYards,
	HomeOffPassingYards,
	HomeOffRushingYards,
	HomeOffPoints,
	HomeTalent,
	AwayOffTotalYards,
	AwayOffPassingYards,
	AwayOffRushingYards,
	AwayOffPoints,
	AwayTalent,
	TalentDiff,
	YardsDiff,
	PointsDiff,
}

var columnIndex = func() map[string]int {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return idx
}()

// Columns returns the feature column names in table order.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// NumFeatures is the width of a full feature row.
func NumFeatures() int {
	return len(columns)
}
