package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"framereel/internal/api"
	"framereel/internal/jobs"
)

// replayLimit bounds the backlog replayed when submitting to an idle service.
const replayLimit = 500

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var wait bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a conversion job to the running service",
		Long: `Submit a conversion job to the service started with "framereel serve".

Paths are resolved locally before submission, so the service must see the
same filesystem. With --wait the command streams progress until the job
finishes and exits non-zero when it fails or is cancelled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			job, err := flags.build(cmd, cfg)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				var cursor uint64
				if wait {
					tail, err := client.Events(cmd.Context(), api.EventsQuery{Tail: true, Limit: 1})
					if err != nil {
						return err
					}
					cursor = tail.Next
				}
				resp, err := client.Convert(cmd.Context(), job)
				if err != nil {
					return err
				}
				if !wait {
					if ctx.JSONMode() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", resp.JobID)
					return nil
				}
				if !ctx.JSONMode() {
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", resp.JobID)
				}
				opts := api.FollowOptions{Since: cursor, Follow: true, UntilTerminal: true}
				if cursor == 0 {
					// Empty event log: everything the service publishes belongs to this job.
					opts.Lines = replayLimit
				}
				return followJob(cmd, ctx, client, opts, verbose)
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Stream progress until the job finishes")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print ffmpeg and oiiotool output while waiting")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Cancel(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", resp.JobID)
				return nil
			})
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show job events from the running service",
		Long: `Show recent job events from the service.

By default the last 20 events are printed and the command keeps streaming
until interrupted. Use --follow=false to print the backlog and exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				opts := api.FollowOptions{Lines: lines, Follow: follow}
				return followJob(cmd, ctx, client, opts, true)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", true, "Keep streaming new events")
	return cmd
}

// followJob streams events until the job ends (UntilTerminal) or the user
// interrupts, returning the job's result.
func followJob(cmd *cobra.Command, ctx *commandContext, client *api.Client, opts api.FollowOptions, verbose bool) error {
	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printer := newEventPrinter(out, isTerminal(out), verbose, ctx.JSONMode())
	last, err := api.Follow(signalCtx, client, opts, printer.handle)
	if err != nil {
		return err
	}
	if !opts.UntilTerminal {
		return nil
	}
	if signalCtx.Err() != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Stopped watching; the job keeps running in the service")
		return nil
	}
	return terminalError(jobs.Kind(last.Type), last.Content)
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, status)
				}
				printStatus(cmd, client, status)
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, client *api.Client, status api.ServiceStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Service:  %s (pid %d)\n", runningLabel(status.Running), status.PID)
	fmt.Fprintf(out, "API:      %s\n", client.BaseURL())
	fmt.Fprintf(out, "Staging:  %s\n", status.StagingDir)
	if status.HistoryPath != "" {
		fmt.Fprintf(out, "History:  %s\n", status.HistoryPath)
	}
	fmt.Fprintln(out)

	job := status.Job
	fmt.Fprintf(out, "Job state: %s\n", label(job.State))
	if job.JobID != "" {
		fmt.Fprintf(out, "Job ID:    %s\n", job.JobID)
	}
	if job.Active {
		fmt.Fprintf(out, "Progress:  %s\n", formatPercent(job.Progress))
	}
	if job.Message != "" {
		fmt.Fprintf(out, "Message:   %s\n", job.Message)
	}
	if job.Outcome != "" {
		fmt.Fprintf(out, "Outcome:   %s\n", job.Outcome)
	}
	if job.OutputPath != "" {
		fmt.Fprintf(out, "Output:    %s\n", job.OutputPath)
	}

	if len(status.Checks) == 0 {
		return
	}
	rows := make([][]string, 0, len(status.Checks))
	for _, check := range status.Checks {
		rows = append(rows, []string{check.Name, passLabel(check.Passed), strings.TrimSpace(check.Detail)})
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func passLabel(passed bool) string {
	if passed {
		return "ok"
	}
	return "FAILED"
}
