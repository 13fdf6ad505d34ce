package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/publisher"
)

var errNoToken = errors.New("no GitHub token: set github.token in metrics.yml or GITHUB_TOKEN")

func newCommentCommand() *cobra.Command {
	var (
		output string
		number int
	)

	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Post the report on the pull request",
		Long: `Post the report of the current build as a pull request comment.

The report must have been rendered by plot for this very build; the chart is
uploaded to the image branch and linked from the comment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if number == 0 {
				if !a.env.IsPR() {
					return publisher.ErrNotPullRequest
				}
				number, err = strconv.Atoi(a.env.PullRequestID())
				if err != nil {
					return fmt.Errorf("invalid pull request id %q: %w", a.env.PullRequestID(), err)
				}
			}

			token, ok := a.cfg.GitHubToken(config.OSLookup)
			if !ok {
				return errNoToken
			}

			ctx := cmd.Context()
			commenter, err := publisher.NewCommenter(publisher.NewTokenClient(ctx, token), a.env.Repository(), a.cfg.GitHub, a.log)
			if err != nil {
				return err
			}

			dir := a.outputDir()
			if output != "" {
				dir = output
			}
			link, err := commenter.PublishReport(ctx, dir, a.env.BuildID(), number)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("Commented"), link)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "report directory (default: output_dir of metrics.yml)")
	cmd.Flags().IntVar(&number, "pr", 0, "pull request number (default: from the CI environment)")
	return cmd
}
