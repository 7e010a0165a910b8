package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"framereel/internal/api"
	"framereel/internal/config"
	"framereel/internal/history"
	"framereel/internal/jobs"
	"framereel/internal/logging"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var verbose bool

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an image sequence to video in this process",
		Long: `Convert an image sequence to video without a running service.

The job is described by flags, a YAML --job file, or both (flags win).
EXR frames are first converted to sRGB PNG with oiiotool in a staging
directory that is removed when the job ends. Ctrl-C cancels the job.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			job, err := flags.build(cmd, cfg)
			if err != nil {
				return err
			}
			return runLocalJob(cmd, cfg, job, verbose, ctx.JSONMode())
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print ffmpeg and oiiotool output")
	return cmd
}

func runLocalJob(cmd *cobra.Command, cfg *config.Config, job jobs.JobConfig, verbose, jsonMode bool) error {
	lock, err := acquireStateLock(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	out := cmd.OutOrStdout()
	interactive := isTerminal(out) && !jsonMode

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
		FilePath:    filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		Quiet:       interactive || jsonMode,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var recorder jobs.Recorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			logger.Warn("history unavailable", logging.Error(err))
		} else {
			defer store.Close()
			recorder = store
		}
	}

	coordinator, err := jobs.NewCoordinator(jobs.Options{Config: cfg, Logger: logger, Recorder: recorder})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()

	hub := coordinator.Hub()
	events := hub.Subscribe(subCtx, hub.LastSequence())
	if _, err := coordinator.Submit(job); err != nil {
		return err
	}

	go func() {
		<-signalCtx.Done()
		_ = coordinator.Cancel()
	}()

	printer := newEventPrinter(out, interactive, verbose, jsonMode)
	var terminal jobs.Event
	for evt := range events {
		printer.handle(api.FromEvent(evt))
		if evt.Kind.Terminal() {
			terminal = evt
			break
		}
	}
	if err := coordinator.Wait(context.Background()); err != nil {
		return err
	}
	return terminalError(terminal.Kind, terminal.Content)
}

// terminalError converts a job's final event into the command result.
func terminalError(kind jobs.Kind, content string) error {
	switch kind {
	case jobs.KindSuccess:
		return nil
	case jobs.KindCancelled:
		return errors.New("job cancelled")
	case jobs.KindError:
		return fmt.Errorf("job failed: %s", content)
	default:
		return errors.New("job ended without a result")
	}
}
