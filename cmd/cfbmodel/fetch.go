package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zring/cfbmodel/internal/cfbd"
	"github.com/zring/cfbmodel/internal/export"
)

// fetchers maps each fetch kind to its API call.
var fetchers = map[string]func(ctx context.Context, c *cfbd.Client, q cfbd.GameQuery) (interface{}, error){
	"games": func(ctx context.Context, c *cfbd.Client, q cfbd.GameQuery) (interface{}, error) {
		return c.GetGames(ctx, q)
	},
	"stats": func(ctx context.Context, c *cfbd.Client, q cfbd.GameQuery) (interface{}, error) {
		return c.GetTeamStats(ctx, q.Year, q.Team)
	},
	"records": func(ctx context.Context, c *cfbd.Client, q cfbd.GameQuery) (interface{}, error) {
		return c.GetTeamRecords(ctx, q.Year, q.Team)
	},
	"talent": func(ctx context.Context, c *cfbd.Client, q cfbd.GameQuery) (interface{}, error) {
		return c.GetTeamTalent(ctx, q.Year)
	},
	"teams": func(ctx context.Context, c *cfbd.Client, _ cfbd.GameQuery) (interface{}, error) {
		return c.GetTeams(ctx)
	},
	"lines": func(ctx context.Context, c *cfbd.Client, q cfbd.GameQuery) (interface{}, error) {
		return c.GetBettingLines(ctx, cfbd.LinesQuery{Year: q.Year, Week: q.Week, Team: q.Team})
	},
}

func fetchKinds() []string {
	kinds := make([]string, 0, len(fetchers))
	for k := range fetchers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		q      cfbd.GameQuery
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:       "fetch <" + strings.Join(fetchKinds(), "|") + ">",
		Short:     "Fetch raw data from the College Football Data API",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: fetchKinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if q.Year == 0 {
				q.Year = a.now().Year()
			}
			if q.SeasonType == "" {
				q.SeasonType = a.cfg.Data.SeasonType
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			data, err := fetchers[args[0]](cmd.Context(), client, q)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}

			if output == "" {
				return export.ExportToWriter(out(cmd), f, data, true)
			}
			err = export.NewExporter(export.Options{
				Format:     f,
				FilePath:   output,
				PrettyJSON: true,
				Overwrite:  true,
			}).Export(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Saved %s to %s\n", args[0], output)
			return nil
		},
	}

	cmd.Flags().IntVar(&q.Year, "year", 0, "Season (default: current year)")
	cmd.Flags().IntVar(&q.Week, "week", 0, "Week (games and lines only)")
	cmd.Flags().StringVar(&q.Team, "team", "", "Team filter")
	cmd.Flags().StringVar(&q.SeasonType, "season-type", "", "regular, postseason or both (games only)")
	cmd.Flags().StringVar(&format, "format", string(export.FormatJSON), "json or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
