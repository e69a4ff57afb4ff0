package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/pmdash/internal/output"
	"github.com/joescharf/pmdash/internal/search"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy-search projects, tasks and team members",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return searchRun(strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", search.DefaultLimit, "Maximum results")
	rootCmd.AddCommand(searchCmd)
}

func searchRun(query string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	ix, err := search.Load(context.Background(), s)
	if err != nil {
		return err
	}
	results := ix.Search(query, searchLimit)
	if len(results) == 0 {
		ui.Info("No matches for %q", query)
		return nil
	}

	table := ui.Table([]string{"Kind", "ID", "Name", "Detail"})
	for _, r := range results {
		_ = table.Append([]string{
			string(r.Kind),
			shortID(r.ID),
			output.Cyan(r.Label),
			r.Detail,
		})
	}
	ui.VerboseLog("Searched %d records", ix.Len())
	return table.Render()
}
