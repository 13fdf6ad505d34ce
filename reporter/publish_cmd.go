package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cimetrics/reporter/publisher"
)

// parseAssignment splits a name=value argument
func parseAssignment(arg string) (string, float64, error) {
	i := strings.LastIndex(arg, "=")
	if i <= 0 {
		return "", 0, fmt.Errorf("expected name=value, got %q", arg)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(arg[i+1:]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("metric %s: %w", arg[:i], err)
	}
	return strings.TrimSpace(arg[:i]), value, nil
}

func newPublishCommand() *cobra.Command {
	var (
		file  string
		group string
	)

	cmd := &cobra.Command{
		Use:   "publish [name=value ...]",
		Short: "Record the metrics of the current build",
		Long: `Record the metrics of the current build in the history store.

Values come from a YAML or JSON file (--file), from name=value arguments, or
both. Arguments override the file. A name ending in ^ marks a metric where
higher is better.`,
		Example: `  cimetrics publish --file results.yml
  cimetrics publish --group Latency p50=12.5 p99=40`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && len(args) == 0 {
				return fmt.Errorf("nothing to publish: pass --file or name=value arguments")
			}

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

			metrics := publisher.NewMetrics(a.env, store, a.log)
			if file != "" {
				if err := metrics.LoadValues(file); err != nil {
					return err
				}
			}
			for _, arg := range args {
				name, value, err := parseAssignment(arg)
				if err != nil {
					return err
				}
				if err := metrics.PutGrouped(name, group, value); err != nil {
					return err
				}
			}

			rec, err := metrics.Publish(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d metrics for build %s (%s)\n",
				color.GreenString("Published"), metrics.Len(), rec.Label(), rec.Branch)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file of metric values")
	cmd.Flags().StringVarP(&group, "group", "g", "", "group of the metrics given as arguments")
	return cmd
}
