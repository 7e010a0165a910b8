package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"framereel/internal/api"
	"framereel/internal/config"
	"framereel/internal/deps"
	"framereel/internal/history"
	"framereel/internal/logging"
	"framereel/internal/staging"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check that ffmpeg and oiiotool are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(cmd.Context(), deps.Requirements(cfg))
			if ctx.JSONMode() {
				if err := writeJSON(cmd, api.DepsResponse{Dependencies: api.FromDeps(statuses)}); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					rows = append(rows, []string{
						status.Name,
						availabilityLabel(status),
						orDash(status.Path),
						orDash(status.Version),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Tool", "Status", "Path", "Version"}, rows, nil))
			}
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("%s not found; install it or set tools.ffmpeg in the config", missing[0].Command)
			}
			return nil
		},
	}
}

func availabilityLabel(status deps.Status) string {
	switch {
	case status.Available:
		return "ok"
	case status.Optional:
		return "missing (optional)"
	default:
		return "MISSING"
	}
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var outcome string
	var local bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished jobs",
		Long: `List finished jobs, newest first.

The running service is asked first; when it is not reachable (or with
--local) the history database is read directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var entries []api.HistoryEntry
			if !local {
				client, err := ctx.apiClient()
				if err != nil {
					return err
				}
				resp, err := client.History(cmd.Context(), limit, outcome)
				switch {
				case err == nil:
					entries = resp.Entries
				case api.IsAPIUnavailable(err):
					local = true
				default:
					return wrapAPIError(err, client)
				}
			}
			if local {
				entries, err = localHistory(cmd, cfg, limit, outcome)
				if err != nil {
					return err
				}
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, api.HistoryResponse{Entries: entries})
			}
			printHistory(cmd, entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only list jobs with this outcome (success, error, cancelled)")
	cmd.Flags().BoolVar(&local, "local", false, "Read the history database instead of asking the service")
	return cmd
}

func localHistory(cmd *cobra.Command, cfg *config.Config, limit int, outcome string) ([]api.HistoryEntry, error) {
	if !cfg.History.Enabled {
		return nil, errors.New("job history is disabled (history.enabled = false)")
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	entries, err := store.List(cmd.Context(), limit, outcome)
	if err != nil {
		return nil, err
	}
	return api.FromHistory(entries), nil
}

func printHistory(cmd *cobra.Command, entries []api.HistoryEntry) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No finished jobs")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			formatAge(api.ParseTime(entry.FinishedAt)),
			entry.Pattern,
			fmt.Sprintf("%d-%d", entry.StartFrame, entry.EndFrame),
			label(entry.Codec),
			strconv.FormatFloat(entry.OutputFPS, 'f', -1, 64),
			strconv.Itoa(entry.OutputFrames),
			formatElapsed(time.Duration(entry.ElapsedSeconds * float64(time.Second))),
			entry.Outcome,
			orDash(filepath.Base(entry.OutputPath)),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Finished", "Pattern", "Range", "Codec", "FPS", "Frames", "Took", "Outcome", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	))
}

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage preconversion staging directories",
	}
	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staging directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stagingDir := cfg.Paths.StagingDir
			dirs, err := staging.ListDirectories(stagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}
			var totalSize int64
			for _, dir := range dirs {
				totalSize += dir.Size
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir":      stagingDir,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No staging directories found")
				return nil
			}
			fmt.Fprintf(out, "Staging directory: %s\n\n", stagingDir)
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				rows = append(rows, []string{dir.Name, formatAge(dir.ModTime), strconv.Itoa(dir.Frames), formatSize(dir.Size)})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Directory", "Modified", "Frames", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), formatSize(totalSize))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var cleanAll bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale staging directories",
		Long: `Remove staging directories older than paths.staging_max_age_hours.

Intermediate frames left by a failed or interrupted job are reused when the
same sequence is converted again, so they are kept until they age out. Use
--all to remove every staging directory.

When a service is running the cleanup is done by the service, which keeps
the directory of the job it is converting. Without a service the directory
is cleaned here while holding the state lock; the command refuses to run
when another process holds it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Cleanup(cmd.Context(), cleanAll)
			switch {
			case err == nil:
			case api.IsAPIUnavailable(err):
				resp, err = cleanStagingLocally(cmd, cfg, cleanAll)
				if err != nil {
					return err
				}
			default:
				return wrapAPIError(err, client)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			for _, path := range resp.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, failure := range resp.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to remove %s: %s\n", failure.Path, failure.Error)
			}
			if len(resp.Removed) == 0 && len(resp.Errors) == 0 {
				fmt.Fprintln(out, "No stale staging directories")
			}
			if len(resp.Errors) > 0 {
				return fmt.Errorf("%d staging directories could not be removed", len(resp.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanAll, "all", false, "Remove all staging directories regardless of age")
	return cmd
}

// cleanStagingLocally cleans the staging directory without a service. The
// state lock guarantees no conversion is using it.
func cleanStagingLocally(cmd *cobra.Command, cfg *config.Config, all bool) (api.CleanupResponse, error) {
	lock, err := acquireStateLock(cfg)
	if err != nil {
		return api.CleanupResponse{}, err
	}
	defer func() { _ = lock.Unlock() }()

	maxAge := cfg.StagingMaxAge()
	if all {
		maxAge = 0
	}
	result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, maxAge, nil, logging.NewNop())
	return api.FromCleanup(cfg.Paths.StagingDir, result), nil
}

// acquireStateLock takes the single-instance lock shared with the service.
func acquireStateLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another framereel process holds %s; stop it or run this through `framereel serve`", cfg.LockPath())
	}
	return lock, nil
}
