package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/config"
	"story-archive-backend/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

func (c *commandContext) ensureConfig(stderr io.Writer) (*config.Config, error) {
	c.once.Do(func() {
		cfg, err := config.Load(*c.configFlag)
		if err != nil {
			c.err = err
			return
		}
		logger, _, err := logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Output: stderr,
		})
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.err
}

func (c *commandContext) scanner() *archive.Scanner {
	cfg := c.config
	return archive.NewScanner(cfg.ArchivePath, cfg.AutoExportPath, archive.Options{
		ReshareAccount:     cfg.ReshareAccount,
		ExcludedUsers:      cfg.SnapshotExcludedUsers,
		ExcludedSubstrings: cfg.SnapshotExcludedSubstrings,
	}, c.logger)
}

func (c *commandContext) wantJSON() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool

	ctx := &commandContext{configFlag: &configFlag, jsonFlag: &jsonFlag}

	rootCmd := &cobra.Command{
		Use:           "archivectl",
		Short:         "Inspect the story archive and its exports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig(cmd.ErrOrStderr())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")

	rootCmd.AddCommand(newDatesCommand(ctx))
	rootCmd.AddCommand(newStoriesCommand(ctx))
	rootCmd.AddCommand(newAvatarsCommand(ctx))
	rootCmd.AddCommand(newSnapshotsCommand(ctx))
	rootCmd.AddCommand(newResharedCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newSweepCommand(ctx))

	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
