package synthetic

import (
	"context"

	"github.com/zring/cfbmodel/internal/cfbd"
)

// Source serves a Dataset through the same calls as the stats API client, so
// the prediction pipeline can run without network access.
type Source struct {
	Data *Dataset

	// Upcoming are extra games, typically unscored, returned alongside Data.Games.
	Upcoming []cfbd.Game

	// Lines are returned by GetBettingLines.
	Lines []cfbd.GameLine

	// Teams are returned by GetTeams. When nil, one entry per talent row is
	// returned without alternate names.
	Teams []cfbd.Team
}

// NewSource wraps d.
func NewSource(d *Dataset, upcoming ...cfbd.Game) *Source {
	return &Source{Data: d, Upcoming: upcoming}
}

// GetGames returns games matching the season, week and team of q.
func (s *Source) GetGames(ctx context.Context, q cfbd.GameQuery) ([]cfbd.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []cfbd.Game
	for _, games := range [][]cfbd.Game{s.Data.Games, s.Upcoming} {
		for _, g := range games {
			if g.Season != q.Year {
				continue
			}
			if q.Week > 0 && g.Week != q.Week {
				continue
			}
			if q.Team != "" && g.HomeTeam != q.Team && g.AwayTeam != q.Team {
				continue
			}
			out = append(out, g)
		}
	}
	return out, nil
}

// GetTeamStats returns season statistics, optionally for one team.
func (s *Source) GetTeamStats(ctx context.Context, year int, team string) ([]cfbd.TeamStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []cfbd.TeamStat
	for _, st := range s.Data.Stats {
		if st.Season != 0 && st.Season != year {
			continue
		}
		if team != "" && st.Team != team {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// GetTeamTalent returns talent ratings.
func (s *Source) GetTeamTalent(ctx context.Context, year int) ([]cfbd.TeamTalent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []cfbd.TeamTalent
	for _, t := range s.Data.Talent {
		if t.Year != 0 && t.Year != year {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetBettingLines returns the configured lines for the season and week.
func (s *Source) GetBettingLines(ctx context.Context, q cfbd.LinesQuery) ([]cfbd.GameLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []cfbd.GameLine
	for _, l := range s.Lines {
		if l.Season != 0 && l.Season != q.Year {
			continue
		}
		if q.Week > 0 && l.Week != 0 && l.Week != q.Week {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// GetTeams returns the team list.
func (s *Source) GetTeams(ctx context.Context) ([]cfbd.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Teams != nil {
		return s.Teams, nil
	}
	teams := make([]cfbd.Team, 0, len(s.Data.Talent))
	for i, t := range s.Data.Talent {
		teams = append(teams, cfbd.Team{ID: i + 1, School: t.School})
	}
	return teams, nil
}
