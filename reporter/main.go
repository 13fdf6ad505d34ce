package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/env"
	"github.com/cimetrics/reporter/storage"
)

var (
	verbose    bool
	repoDir    string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cimetrics",
		Short: "Track benchmark metrics across CI builds",
		Long: `cimetrics records benchmark metrics per build and reports how a branch
compares with the smoothed history of its target branch.

Commands:
  publish   Record the metrics of the current build
  plot      Render the report of the current build
  monitor   Render the trend of the target branch with level shifts
  comment   Post the report on the pull request
  list      Show the stored history of a branch
  serve     Serve the report directory over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "directory inside the repository")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to metrics.yml (default: <repo root>/metrics.yml)")

	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newPlotCommand())
	rootCmd.AddCommand(newMonitorCommand())
	rootCmd.AddCommand(newCommentCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newServeCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if errors.Is(err, config.ErrStoreNotConfigured) {
		// Repositories without a metrics store are not an error
		fmt.Fprintf(os.Stderr, "%s %v\n", color.YellowString("Skipped:"), err)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// app holds what every command needs
type app struct {
	log *logrus.Logger
	env env.Environment
	cfg *config.Config
}

func newApp() (*app, error) {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	e, err := env.Detect(repoDir, config.OSLookup, log)
	if err != nil {
		return nil, fmt.Errorf("failed to detect environment: %w", err)
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.Load(configPath, config.OSLookup, log)
	} else {
		cfg, err = config.LoadFromRepo(e.RepoRoot(), config.OSLookup, log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log.WithFields(logrus.Fields{
		"environment": e.Name(),
		"branch":      e.Branch(),
		"build_id":    e.BuildID(),
		"pr":          e.IsPR(),
	}).Debug("Environment detected")

	return &app{log: log, env: e, cfg: cfg}, nil
}

// inRepo resolves a configured path against the repository root
func (a *app) inRepo(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.env.RepoRoot(), path)
}

func (a *app) outputDir() string {
	return a.inRepo(a.cfg.OutputDir)
}

func (a *app) openStore(ctx context.Context) (storage.HistoryStore, error) {
	settings, err := a.cfg.ResolveStore(config.OSLookup)
	if err != nil {
		return nil, err
	}
	if settings.Backend == config.BackendFile {
		settings.Path = a.inRepo(settings.Path)
	}
	return storage.Open(ctx, settings, a.log)
}
