package cfbd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Season types accepted by the games endpoint.
const (
	SeasonTypeRegular    = "regular"
	SeasonTypePostseason = "postseason"
	SeasonTypeBoth       = "both"
)

// Number is a JSON number that the API sometimes sends as a quoted string.
type Number float64

// UnmarshalJSON accepts numbers, numeric strings and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*n = Number(v)
	return nil
}

// Float64 returns the value as a float64.
func (n Number) Float64() float64 {
	return float64(n)
}

// Game represents a single game from the /games endpoint.
// The API has served both camelCase and snake_case field names; both decode.
type Game struct {
	ID             int    `json:"id"`
	Season         int    `json:"season"`
	Week           int    `json:"week"`
	SeasonType     string `json:"seasonType"`
	StartDate      string `json:"startDate"`
	NeutralSite    bool   `json:"neutralSite"`
	ConferenceGame bool   `json:"conferenceGame"`
	Completed      bool   `json:"completed"`
	HomeTeam       string `json:"homeTeam"`
	HomeConference string `json:"homeConference,omitempty"`
	HomePoints     *int   `json:"homePoints"`
	AwayTeam       string `json:"awayTeam"`
	AwayConference string `json:"awayConference,omitempty"`
	AwayPoints     *int   `json:"awayPoints"`
	Venue          string `json:"venue,omitempty"`
}

// gameFieldAliases maps canonical field names to every spelling the API has used.
var gameFieldAliases = map[string][]string{
	"id":             {"id"},
	"season":         {"season"},
	"week":           {"week"},
	"seasonType":     {"seasonType", "season_type"},
	"startDate":      {"startDate", "start_date"},
	"neutralSite":    {"neutralSite", "neutral_site"},
	"conferenceGame": {"conferenceGame", "conference_game"},
	"completed":      {"completed"},
	"homeTeam":       {"homeTeam", "home_team"},
	"homeConference": {"homeConference", "home_conference"},
	"homePoints":     {"homePoints", "home_points"},
	"awayTeam":       {"awayTeam", "away_team"},
	"awayConference": {"awayConference", "away_conference"},
	"awayPoints":     {"awayPoints", "away_points"},
	"venue":          {"venue"},
}

// UnmarshalJSON decodes a game accepting either naming convention.
func (g *Game) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := map[string]any{
		"id":             &g.ID,
		"season":         &g.Season,
		"week":           &g.Week,
		"seasonType":     &g.SeasonType,
		"startDate":      &g.StartDate,
		"neutralSite":    &g.NeutralSite,
		"conferenceGame": &g.ConferenceGame,
		"completed":      &g.Completed,
		"homeTeam":       &g.HomeTeam,
		"homeConference": &g.HomeConference,
		"homePoints":     &g.HomePoints,
		"awayTeam":       &g.AwayTeam,
		"awayConference": &g.AwayConference,
		"awayPoints":     &g.AwayPoints,
		"venue":          &g.Venue,
	}

	for name, dst := range fields {
		value, ok := lookup(raw, gameFieldAliases[name]...)
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return fmt.Errorf("decode game field %s: %w", name, err)
		}
	}
	return nil
}

// HasScore reports whether both final scores are known.
func (g Game) HasScore() bool {
	return g.HomePoints != nil && g.AwayPoints != nil
}

// TeamStat is one long-format row from /stats/season: a single named statistic for a team.
type TeamStat struct {
	Season     int    `json:"season"`
	Team       string `json:"team"`
	Conference string `json:"conference"`
	StatName   string `json:"statName"`
	StatValue  Number `json:"statValue"`
}

// UnmarshalJSON accepts both camelCase and snake_case stat rows, and "school" as the team key.
func (s *TeamStat) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := []struct {
		dst     any
		aliases []string
	}{
		{&s.Season, []string{"season", "year"}},
		{&s.Team, []string{"team", "school"}},
		{&s.Conference, []string{"conference"}},
		{&s.StatName, []string{"statName", "stat_name"}},
		{&s.StatValue, []string{"statValue", "stat_value"}},
	}
	for _, f := range fields {
		value, ok := lookup(raw, f.aliases...)
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, f.dst); err != nil {
			return fmt.Errorf("decode stat field %s: %w", f.aliases[0], err)
		}
	}
	return nil
}

// WinLossRecord is a games/wins/losses/ties tally.
type WinLossRecord struct {
	Games  int `json:"games"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Ties   int `json:"ties"`
}

// TeamRecord represents a team's season record from /records.
type TeamRecord struct {
	Year          int           `json:"year"`
	Team          string        `json:"team"`
	Conference    string        `json:"conference"`
	Division      string        `json:"division,omitempty"`
	Total         WinLossRecord `json:"total"`
	ConferenceRec WinLossRecord `json:"conferenceGames"`
	HomeGames     WinLossRecord `json:"homeGames"`
	AwayGames     WinLossRecord `json:"awayGames"`
}

// WinPct returns the overall win fraction, or 0 when no games were played.
func (r TeamRecord) WinPct() float64 {
	if r.Total.Games == 0 {
		return 0
	}
	return (float64(r.Total.Wins) + 0.5*float64(r.Total.Ties)) / float64(r.Total.Games)
}

// TeamTalent is a talent composite rating from /talent.
type TeamTalent struct {
	Year   int    `json:"year"`
	School string `json:"school"`
	Talent Number `json:"talent"`
}

// UnmarshalJSON accepts "school" or "team" as the team key.
func (t *TeamTalent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := lookup(raw, "year", "season"); ok {
		if err := json.Unmarshal(v, &t.Year); err != nil {
			return fmt.Errorf("decode talent year: %w", err)
		}
	}
	if v, ok := lookup(raw, "school", "team"); ok {
		if err := json.Unmarshal(v, &t.School); err != nil {
			return fmt.Errorf("decode talent school: %w", err)
		}
	}
	if v, ok := lookup(raw, "talent"); ok {
		if err := json.Unmarshal(v, &t.Talent); err != nil {
			return fmt.Errorf("decode talent value: %w", err)
		}
	}
	return nil
}

// Team represents an FBS team from /teams/fbs.
type Team struct {
	ID             int      `json:"id"`
	School         string   `json:"school"`
	Mascot         string   `json:"mascot"`
	Abbreviation   string   `json:"abbreviation"`
	Conference     string   `json:"conference"`
	Classification string   `json:"classification,omitempty"`
	Color          string   `json:"color,omitempty"`
	AlternateNames []string `json:"alternateNames,omitempty"`
}

// GameLine is the set of betting lines offered for one game from /lines.
type GameLine struct {
	ID         int            `json:"id"`
	Season     int            `json:"season"`
	Week       int            `json:"week"`
	SeasonType string         `json:"seasonType"`
	StartDate  string         `json:"startDate"`
	HomeTeam   string         `json:"homeTeam"`
	HomeScore  *int           `json:"homeScore"`
	AwayTeam   string         `json:"awayTeam"`
	AwayScore  *int           `json:"awayScore"`
	Lines      []ProviderLine `json:"lines"`
}

// ProviderLine is one sportsbook's line for a game.
type ProviderLine struct {
	Provider        string  `json:"provider"`
	Spread          *Number `json:"spread"`
	FormattedSpread string  `json:"formattedSpread"`
	SpreadOpen      *Number `json:"spreadOpen,omitempty"`
	OverUnder       *Number `json:"overUnder"`
	OverUnderOpen   *Number `json:"overUnderOpen,omitempty"`
	HomeMoneyline   *Number `json:"homeMoneyline"`
	AwayMoneyline   *Number `json:"awayMoneyline"`
}

// ConsensusSpread returns the mean spread across providers that published one.
func (g GameLine) ConsensusSpread() (float64, bool) {
	var sum float64
	var n int
	for _, l := range g.Lines {
		if l.Spread == nil {
			continue
		}
		sum += l.Spread.Float64()
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// GameQuery holds parameters for the games endpoint.
type GameQuery struct {
	Year       int    // Required season year
	Week       int    // Optional week (0 = all weeks)
	SeasonType string // regular (default), postseason or both
	Team       string // Optional team filter
}

// LinesQuery holds parameters for the lines endpoint.
type LinesQuery struct {
	Year int
	Week int
	Team string
}

// ClientStats tracks API client statistics.
type ClientStats struct {
	TotalRequests     int
	FailedRequests    int
	Retries           int
	CachedResponses   int
	AverageLatency    time.Duration
	LastRequestTime   time.Time
	LastSuccessTime   time.Time
	LastFailureTime   time.Time
	ConsecutiveErrors int
}

func lookup(raw map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}
