package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cimetrics/reporter/env"
	"github.com/cimetrics/reporter/storage"
	"github.com/cimetrics/reporter/types"
)

// selectorFor picks the history to list: flags first, then the build's own
func selectorFor(branch, pr string, e env.Environment) types.Selector {
	switch {
	case pr != "":
		return types.PullRequestSelector(pr)
	case branch != "":
		return types.BranchSelector(branch)
	default:
		return env.Selector(e)
	}
}

func newListCommand() *cobra.Command {
	var (
		branch string
		pr     string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the stored history of a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			sel := selectorFor(branch, pr, a.env)
			records, err := store.List(ctx, sel)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", sel, err)
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if asJSON {
				return writeRecordsJSON(cmd.OutOrStdout(), records)
			}
			return writeRecordsTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "list the history of a branch")
	cmd.Flags().StringVar(&pr, "pr", "", "list the history of a pull request")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of documents, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one stored document per line")
	return cmd
}

func writeRecordsJSON(w io.Writer, records []*types.MetricRecord) error {
	for _, rec := range records {
		data, err := storage.EncodeDocument(rec)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return err
		}
	}
	return nil
}

func writeRecordsTable(w io.Writer, records []*types.MetricRecord) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"build", "number", "branch", "pr", "created", "metrics", "complete"})
	for _, rec := range records {
		complete, n := "no", len(rec.Metrics)
		if rec.IsComplete() {
			complete, n = "yes", n-1
		}
		if err := table.Append([]string{
			strconv.FormatInt(rec.BuildID, 10),
			rec.Label(),
			rec.Branch,
			rec.PRID,
			rec.Created.Format(time.RFC3339),
			strconv.Itoa(n),
			complete,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
