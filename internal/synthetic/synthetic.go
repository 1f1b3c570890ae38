// Package synthetic generates seeded, realistic-looking games, statistics and talent
// ratings for demos and tests that must run without an API key.
package synthetic

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/zring/cfbmodel/internal/cfbd"
)

var defaultTeams = []string{
	"Alabama", "Georgia", "Ohio State", "Michigan", "Clemson", "Oklahoma",
	"Texas", "Notre Dame", "LSU", "Florida", "Penn State", "Oregon",
	"USC", "Miami", "Tennessee", "Auburn", "Texas A&M", "Wisconsin",
}

// DefaultTeams returns the team names used when Options.Teams is empty.
func DefaultTeams() []string {
	return append([]string(nil), defaultTeams...)
}

// Options controls generation.
type Options struct {
	Seed   uint64
	Games  int
	Teams  []string
	Season int
	// Weeks spreads games over weeks 1..Weeks.
	Weeks int
	// Unscored leaves HomePoints and AwayPoints nil.
	Unscored bool
}

// DefaultOptions matches the demo: 100 scored games among 18 teams.
func DefaultOptions() Options {
	return Options{
		Seed:   42,
		Games:  100,
		Season: 2024,
		Weeks:  12,
	}
}

// Dataset is a synthetic season in API shapes.
type Dataset struct {
	Games  []cfbd.Game
	Stats  []cfbd.TeamStat
	Talent []cfbd.TeamTalent

	// strength is the latent 0..1 rating behind every generated number.
	strength map[string]float64
}

// Strength returns the latent rating of team.
func (d *Dataset) Strength(team string) float64 {
	return d.strength[team]
}

// Generate builds a dataset. The same options always produce the same data.
func Generate(opts Options) *Dataset {
	teams := opts.Teams
	if len(teams) < 2 {
		teams = defaultTeams
	}
	if opts.Season == 0 {
		opts.Season = DefaultOptions().Season
	}
	if opts.Weeks <= 0 {
		opts.Weeks = 1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, 0x5eed))
	d := &Dataset{strength: make(map[string]float64, len(teams))}

	for i, team := range teams {
		// Earlier teams are stronger, with jitter so tiers overlap.
		base := 1 - float64(i)/float64(len(teams))
		s := clamp(base+0.15*rng.NormFloat64(), 0, 1)
		d.strength[team] = s

		games := 12.0
		totalYards := math.Round(games * (340 + 160*s + 20*rng.NormFloat64()))
		passShare := 0.55 + 0.15*rng.Float64()
		passing := math.Round(totalYards * passShare)
		rushing := totalYards - passing
		points := math.Round(games * (18 + 22*s + 3*rng.NormFloat64()))

		for _, st := range []struct {
			name  string
			value float64
		}{
			{"totalYards", totalYards},
			{"netPassingYards", passing},
			{"rushingYards", rushing},
			{"points", points},
			{"games", games},
		} {
			d.Stats = append(d.Stats, cfbd.TeamStat{
				Season:    opts.Season,
				Team:      team,
				StatName:  st.name,
				StatValue: cfbd.Number(st.value),
			})
		}

		talent := 600 + 400*s + 25*rng.NormFloat64()
		d.Talent = append(d.Talent, cfbd.TeamTalent{
			Year:   opts.Season,
			School: team,
			Talent: cfbd.Number(math.Round(talent*100) / 100),
		})
	}

	start := time.Date(opts.Season, time.August, 31, 16, 0, 0, 0, time.UTC)
	for i := 0; i < opts.Games; i++ {
		h := rng.IntN(len(teams))
		a := rng.IntN(len(teams) - 1)
		if a >= h {
			a++
		}
		home, away := teams[h], teams[a]
		week := i%opts.Weeks + 1

		g := cfbd.Game{
			ID:         opts.Season*10000 + i + 1,
			Season:     opts.Season,
			Week:       week,
			SeasonType: cfbd.SeasonTypeRegular,
			StartDate:  start.AddDate(0, 0, 7*(week-1)).Format(time.RFC3339),
			HomeTeam:   home,
			AwayTeam:   away,
		}
		if !opts.Unscored {
			hp := score(rng, d.strength[home], 3)
			ap := score(rng, d.strength[away], 0)
			if hp == ap {
				hp += 3
			}
			g.HomePoints, g.AwayPoints = &hp, &ap
			g.Completed = true
		}
		d.Games = append(d.Games, g)
	}
	return d
}

// Matchups returns unscored games for the given (home, away) pairs.
func Matchups(season, week int, pairs ...[2]string) []cfbd.Game {
	games := make([]cfbd.Game, 0, len(pairs))
	for i, p := range pairs {
		games = append(games, cfbd.Game{
			ID:         season*100000 + week*100 + i + 1,
			Season:     season,
			Week:       week,
			SeasonType: cfbd.SeasonTypeRegular,
			HomeTeam:   p[0],
			AwayTeam:   p[1],
		})
	}
	return games
}

// DemoMatchups are the upcoming games predicted by the demo.
var DemoMatchups = [][2]string{
	{"Alabama", "Georgia"},
	{"Ohio State", "Michigan"},
	{"Clemson", "Notre Dame"},
	{"Texas", "Oklahoma"},
	{"USC", "Oregon"},
}

func score(rng *rand.Rand, strength, bonus float64) int {
	pts := 14 + 24*strength + bonus + 7*rng.NormFloat64()
	return int(math.Max(0, math.Round(pts)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
