package features

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/zring/cfbmodel/internal/cfbd"
)

// Aliases maps alternate team names onto one canonical name so that lookups built
// from different endpoints agree ("Miami" vs "Miami (FL)"). A nil *Aliases is valid
// and maps every name to itself.
type Aliases struct {
	canonical map[string]string // lower-cased alias -> canonical
}

// NewAliases builds an alias table from canonical name -> other names.
func NewAliases(table map[string][]string) *Aliases {
	a := &Aliases{canonical: make(map[string]string)}
	for canon, others := range table {
		canon = strings.TrimSpace(canon)
		if canon == "" {
			continue
		}
		a.canonical[strings.ToLower(canon)] = canon
		for _, o := range others {
			if o = strings.TrimSpace(o); o != "" {
				a.canonical[strings.ToLower(o)] = canon
			}
		}
	}
	return a
}

// ParseAliases reads an alias table from YAML of the form
//
//	Miami:
//	  - Miami (FL)
//	  - Miami Hurricanes
func ParseAliases(data []byte) (*Aliases, error) {
	table := make(map[string][]string)
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}
	return NewAliases(table), nil
}

// LoadAliases reads an alias table from a YAML file.
func LoadAliases(path string) (*Aliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases file: %w", err)
	}
	return ParseAliases(data)
}

// AliasesFromTeams seeds a table from the alternate names on /teams/fbs.
func AliasesFromTeams(teams []cfbd.Team) *Aliases {
	table := make(map[string][]string, len(teams))
	for _, t := range teams {
		if t.School == "" {
			continue
		}
		table[t.School] = append(table[t.School], t.AlternateNames...)
	}
	return NewAliases(table)
}

// Merge returns a table containing both sets; entries in other win.
func (a *Aliases) Merge(other *Aliases) *Aliases {
	out := &Aliases{canonical: make(map[string]string)}
	for _, src := range []*Aliases{a, other} {
		if src == nil {
			continue
		}
		for k, v := range src.canonical {
			out.canonical[k] = v
		}
	}
	return out
}

// Canonical returns the canonical name for team, or the trimmed input when unknown.
func (a *Aliases) Canonical(team string) string {
	team = strings.TrimSpace(team)
	if a == nil {
		return team
	}
	if c, ok := a.canonical[strings.ToLower(team)]; ok {
		return c
	}
	return team
}

// Len returns the number of known names.
func (a *Aliases) Len() int {
	if a == nil {
		return 0
	}
	return len(a.canonical)
}
