package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/homebase-app/homebase/internal/repository"
)

func StatsCmd() *cobra.Command {
	var applicationID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count live entities per type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(database *sqlx.DB, driver string) error {
				counts, err := repository.NewEntityRepository(database).CountByType(cmd.Context(), applicationID)
				if err != nil {
					return err
				}

				types := make([]string, 0, len(counts))
				for t := range counts {
					types = append(types, t)
				}
				sort.Strings(types)

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tCOUNT")
				for _, t := range types {
					fmt.Fprintf(tw, "%s\t%d\n", t, counts[t])
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&applicationID, "application", "", "only count entities of this application id")
	return cmd
}
