package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/database"
	"story-archive-backend/internal/export"
	"story-archive-backend/internal/models"
)

func newDatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "List archive dates with their story counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := ctx.scanner()
			dates := scanner.ListDates()
			if ctx.wantJSON() {
				return writeJSON(cmd.OutOrStdout(), dates)
			}

			rows := make([][]string, 0, len(dates))
			for _, date := range dates {
				stories := scanner.ListStories(date)
				users := len(archive.GroupByUser(stories))
				rows = append(rows, []string{date, strconv.Itoa(len(stories)), strconv.Itoa(users)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Date", "Stories", "Users"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
			return nil
		},
	}
}

func newStoriesCommand(ctx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "stories <date>",
		Short: "List the stories of one date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := ctx.scanner()
			stories := scanner.ListStories(args[0])
			if user != "" {
				stories = archive.GroupByUser(stories)[user]
			}
			if ctx.wantJSON() {
				if stories == nil {
					stories = []models.Story{}
				}
				return writeJSON(cmd.OutOrStdout(), stories)
			}

			rows := make([][]string, 0, len(stories))
			for _, s := range stories {
				reshare := ""
				if s.Reshare != nil {
					reshare = fmt.Sprintf("%s (x%d)", s.Reshare.OriginalUser, s.Reshare.ReshareCount)
				}
				size := "-"
				if full, err := scanner.Resolve(s.Path); err == nil {
					if info, err := os.Stat(full); err == nil {
						size = formatBytes(info.Size())
					}
				}
				rows = append(rows, []string{s.Username, s.Type, s.Filename, formatAge(s.Timestamp), reshare, size})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"User", "Type", "File", "Taken", "Reshare of", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Only show this user's stories")
	return cmd
}

func newAvatarsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "avatars",
		Short: "List avatar images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			avatars := ctx.scanner().ListAvatars()
			if ctx.wantJSON() {
				return writeJSON(cmd.OutOrStdout(), avatars)
			}
			rows := make([][]string, 0, len(avatars))
			for _, a := range avatars {
				rows = append(rows, []string{a.Username, a.Path})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"User", "Path"}, rows, nil))
			return nil
		},
	}
}

func newSnapshotsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List profile snapshots from the auto-export folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots := ctx.scanner().ListProfileSnapshots()
			if ctx.wantJSON() {
				return writeJSON(cmd.OutOrStdout(), snapshots)
			}
			rows := make([][]string, 0, len(snapshots))
			for _, s := range snapshots {
				rows = append(rows, []string{s.Date, s.Username, s.Filename})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Date", "User", "File"}, rows, nil))
			return nil
		},
	}
}

func newResharedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reshared",
		Short: "Count stories of reshared accounts per user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stories := ctx.scanner().ListResharedUsersStories()
			if ctx.wantJSON() {
				return writeJSON(cmd.OutOrStdout(), stories)
			}

			grouped := archive.GroupByUser(stories)
			users := make([]string, 0, len(grouped))
			for u := range grouped {
				users = append(users, u)
			}
			sort.Strings(users)

			rows := make([][]string, 0, len(users))
			for _, u := range users {
				var videos int
				for _, s := range grouped[u] {
					if s.Type == models.MediaTypeVideo {
						videos++
					}
				}
				rows = append(rows, []string{u, strconv.Itoa(len(grouped[u])), strconv.Itoa(videos)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"User", "Stories", "Videos"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
			return nil
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show recent exports from the job log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if cfg.DatabaseURL == "" && cfg.JobsDBPath == "" {
				return fmt.Errorf("export job log is disabled: set DATABASE_URL or JOBS_DB_PATH")
			}

			db, dialect, err := database.Open(cmd.Context(), cfg.DatabaseURL, cfg.JobsDBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.NewMigrator(db, dialect, ctx.logger).Run(cmd.Context()); err != nil {
				return err
			}

			jobs, err := database.NewSQLStore(db, dialect).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				out := make([]models.ExportJobResponse, len(jobs))
				for i, job := range jobs {
					out[i] = models.NewExportJobResponse(job)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				created := job.CreatedAt
				rows = append(rows, []string{
					job.ID.String()[:8],
					job.Kind,
					colorStatus(job.Status, colorize),
					job.OutputFilename,
					formatBytes(job.OutputSize),
					formatAge(&created),
					truncate(job.Error, 48),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Status", "Output", "Size", "Started", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove export workspaces left behind in the temp directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.SweepMaxAge
			}

			result, err := export.NewSweeper(cfg.TempDir, maxAge, ctx.logger).Sweep(time.Now())
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d workspace(s), freed %s", len(result.Removed), humanize.Bytes(uint64(result.Bytes)))
			if result.Failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", %d could not be removed", result.Failed)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", time.Hour, "Only remove workspaces older than this (defaults to SWEEP_MAX_AGE)")
	return cmd
}
