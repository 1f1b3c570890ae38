package features

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/zring/cfbmodel/internal/cfbd"
)

// Row is one game and its feature vector.
type Row struct {
	GameID     int
	Season     int
	Week       int
	HomeTeam   string
	AwayTeam   string
	StartDate  string
	HomePoints *int
	AwayPoints *int

	// Spread is the consensus home spread when betting lines were attached.
	Spread *float64

	Features []float64
}

// HasScore reports whether both final scores are known.
func (r Row) HasScore() bool {
	return r.HomePoints != nil && r.AwayPoints != nil
}

// Label is 1 when the home team outscored the away team, else 0.
func (r Row) Label() int {
	if r.HasScore() && *r.HomePoints > *r.AwayPoints {
		return 1
	}
	return 0
}

// Value returns the named feature, or 0 when the column is unknown.
func (r Row) Value(column string) float64 {
	i, ok := columnIndex[column]
	if !ok || i >= len(r.Features) {
		return 0
	}
	return r.Features[i]
}

// Table is the game-level feature table.
type Table struct {
	Rows []Row
}

// Builder assembles feature tables, resolving team names through Aliases.
type Builder struct {
	Aliases *Aliases
}

// Build creates one row per game, in input order.
func Build(games []cfbd.Game, stats StatLookup, talent TalentLookup) *Table {
	return (&Builder{}).Build(games, stats, talent)
}

// Build creates one row per game, in input order. Teams missing from either
// lookup get zeros for the missing values.
func (b *Builder) Build(games []cfbd.Game, stats StatLookup, talent TalentLookup) *Table {
	stats = canonicalize(stats, b.Aliases)
	talent = canonicalize(talent, b.Aliases)

	t := &Table{Rows: make([]Row, 0, len(games))}
	for _, g := range games {
		home := b.Aliases.Canonical(g.HomeTeam)
		away := b.Aliases.Canonical(g.AwayTeam)
		hs, as := stats[home], stats[away]
		ht, at := talent[home], talent[away]

		t.Rows = append(t.Rows, Row{
			GameID:     g.ID,
			Season:     g.Season,
			Week:       g.Week,
			HomeTeam:   g.HomeTeam,
			AwayTeam:   g.AwayTeam,
			StartDate:  g.StartDate,
			HomePoints: g.HomePoints,
			AwayPoints: g.AwayPoints,
			Features: []float64{
				hs.TotalYards,
				hs.PassingYards,
				hs.RushingYards,
				hs.Points,
				ht,
				as.TotalYards,
				as.PassingYards,
				as.RushingYards,
				as.Points,
				at,
				ht - at,
				hs.TotalYards - as.TotalYards,
				hs.Points - as.Points,
			},
		})
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Columns returns the table's column names.
func (t *Table) Columns() []string {
	return Columns()
}

// TrainingData returns the features and labels of every game with a final score.
// Unscored games are skipped.
func (t *Table) TrainingData() ([][]float64, []int) {
	X := make([][]float64, 0, len(t.Rows))
	y := make([]int, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !r.HasScore() {
			continue
		}
		X = append(X, padRow(r.Features))
		y = append(y, r.Label())
	}
	return X, y
}

// Matrix returns every row's features; no label is required.
func (t *Table) Matrix() [][]float64 {
	X := make([][]float64, len(t.Rows))
	for i, r := range t.Rows {
		X[i] = padRow(r.Features)
	}
	return X
}

// Select returns the requested columns for every row, along with the names
// actually selected. Unknown columns are dropped.
func (t *Table) Select(names []string) ([][]float64, []string) {
	var idx []int
	var selected []string
	for _, n := range names {
		if i, ok := columnIndex[n]; ok {
			idx = append(idx, i)
			selected = append(selected, n)
		}
	}

	X := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]float64, len(idx))
		for j, i := range idx {
			if i < len(row.Features) {
				out[j] = row.Features[i]
			}
		}
		X[r] = out
	}
	return X, selected
}

// Dense returns the feature matrix as a gonum matrix. It returns nil for an empty table.
func (t *Table) Dense() *mat.Dense {
	if len(t.Rows) == 0 {
		return nil
	}
	data := make([]float64, 0, len(t.Rows)*len(columns))
	for _, r := range t.Rows {
		data = append(data, padRow(r.Features)...)
	}
	return mat.NewDense(len(t.Rows), len(columns), data)
}

// AttachLines records the consensus spread for each game that has betting lines.
func (t *Table) AttachLines(lines []cfbd.GameLine) int {
	byID := make(map[int]float64, len(lines))
	for _, l := range lines {
		if s, ok := l.ConsensusSpread(); ok {
			byID[l.ID] = s
		}
	}
	attached := 0
	for i := range t.Rows {
		if s, ok := byID[t.Rows[i].GameID]; ok {
			spread := s
			t.Rows[i].Spread = &spread
			attached++
		}
	}
	return attached
}

// ColumnSummary describes one feature column.
type ColumnSummary struct {
	Name   string
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Describe summarizes each feature column.
func (t *Table) Describe() []ColumnSummary {
	out := make([]ColumnSummary, len(columns))
	d := t.Dense()
	var col []float64
	for j, name := range columns {
		out[j].Name = name
		if d == nil {
			continue
		}
		col = mat.Col(col, j, d)
		out[j].Mean, out[j].StdDev = stat.MeanStdDev(col, nil)
		if len(col) < 2 {
			out[j].StdDev = 0
		}
		out[j].Min = floats.Min(col)
		out[j].Max = floats.Max(col)
	}
	return out
}

// LabelCounts returns the number of away wins (index 0) and home wins (index 1)
// among scored games.
func (t *Table) LabelCounts() [2]int {
	var c [2]int
	for _, r := range t.Rows {
		if r.HasScore() {
			c[r.Label()]++
		}
	}
	return c
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	counts := t.LabelCounts()
	return fmt.Sprintf("Table{rows: %d, columns: %d, home wins: %d, away wins: %d}",
		len(t.Rows), len(columns), counts[1], counts[0])
}

// padRow copies in into a full-width row, filling missing values with 0.
func padRow(in []float64) []float64 {
	out := make([]float64, len(columns))
	copy(out, in)
	return out
}
