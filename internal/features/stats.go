package features

import (
	"sort"
	"strings"

	"github.com/zring/cfbmodel/internal/cfbd"
)

// Upstream statistic names, most preferred first.
var (
	totalYardsNames   = []string{"totalYards"}
	passingYardsNames = []string{"netPassingYards", "passingYards"}
	rushingYardsNames = []string{"rushingYards"}
	pointsNames       = []string{"points", "pointsFor", "totalPoints"}
)

// StatRow is a single long-format statistic: one team, one stat.
type StatRow struct {
	Team      string
	School    string
	StatName  string
	StatValue float64
}

// key returns the team name, falling back to the school.
func (r StatRow) key() string {
	if t := strings.TrimSpace(r.Team); t != "" {
		return t
	}
	return strings.TrimSpace(r.School)
}

// StatRowsFromAPI converts /stats/season rows.
func StatRowsFromAPI(stats []cfbd.TeamStat) []StatRow {
	rows := make([]StatRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, StatRow{
			Team:      s.Team,
			StatName:  s.StatName,
			StatValue: s.StatValue.Float64(),
		})
	}
	return rows
}

// TeamStats holds the offensive statistics used as features.
type TeamStats struct {
	TotalYards   float64 `json:"totalYards"`
	PassingYards float64 `json:"passingYards"`
	RushingYards float64 `json:"rushingYards"`
	Points       float64 `json:"points"`
}

// StatLookup maps team name to its statistics.
type StatLookup map[string]TeamStats

// PivotStats folds long-format rows into one record per team.
// When a team repeats a statistic the last value wins.
func PivotStats(rows []StatRow) StatLookup {
	wide := make(map[string]map[string]float64)
	for _, r := range rows {
		team := r.key()
		if team == "" || r.StatName == "" {
			continue
		}
		m, ok := wide[team]
		if !ok {
			m = make(map[string]float64)
			wide[team] = m
		}
		m[r.StatName] = r.StatValue
	}
	return WideStats(wide)
}

// WideStats resolves already-wide records (team -> stat name -> value).
// Missing statistics are zero.
func WideStats(wide map[string]map[string]float64) StatLookup {
	lookup := make(StatLookup, len(wide))
	for team, values := range wide {
		team = strings.TrimSpace(team)
		if team == "" {
			continue
		}
		lookup[team] = TeamStats{
			TotalYards:   firstOf(values, totalYardsNames),
			PassingYards: firstOf(values, passingYardsNames),
			RushingYards: firstOf(values, rushingYardsNames),
			Points:       firstOf(values, pointsNames),
		}
	}
	return lookup
}

func firstOf(values map[string]float64, names []string) float64 {
	for _, n := range names {
		if v, ok := values[n]; ok {
			return v
		}
	}
	return 0
}

// TalentLookup maps team name to talent composite.
type TalentLookup map[string]float64

// TalentFromAPI builds a talent lookup from /talent rows.
func TalentFromAPI(rows []cfbd.TeamTalent) TalentLookup {
	lookup := make(TalentLookup, len(rows))
	for _, r := range rows {
		school := strings.TrimSpace(r.School)
		if school == "" {
			continue
		}
		lookup[school] = r.Talent.Float64()
	}
	return lookup
}

// canonicalize re-keys a lookup under canonical team names. An entry whose name is
// already canonical beats one reached through an alias; otherwise the
// alphabetically first name wins.
func canonicalize[V any](in map[string]V, aliases *Aliases) map[string]V {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]V, len(in))
	exact := make(map[string]bool, len(in))
	for _, name := range names {
		key := aliases.Canonical(name)
		isExact := key == name
		if prevExact, seen := exact[key]; seen && (prevExact || !isExact) {
			continue
		}
		out[key] = in[name]
		exact[key] = isExact
	}
	return out
}
