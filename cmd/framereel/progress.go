package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"framereel/internal/api"
	"framereel/internal/jobs"
	"framereel/internal/logging"
)

const barSteps = 1000

// eventPrinter renders a job's event stream on a terminal (progress bar),
// as plain lines, or as JSON lines.
type eventPrinter struct {
	out         io.Writer
	interactive bool
	verbose     bool
	json        bool

	state   string
	bar     *progressbar.ProgressBar
	sampler *logging.ProgressSampler
}

func newEventPrinter(out io.Writer, interactive, verbose, jsonMode bool) *eventPrinter {
	return &eventPrinter{
		out:         out,
		interactive: interactive && !jsonMode,
		verbose:     verbose,
		json:        jsonMode,
		sampler:     logging.NewProgressSampler(10),
	}
}

func (p *eventPrinter) handle(evt api.Event) {
	if p.json {
		_ = json.NewEncoder(p.out).Encode(evt)
		return
	}
	switch jobs.Kind(evt.Type) {
	case jobs.KindJobStatus:
		if !jobs.State(evt.State).Active() || evt.State == p.state {
			return
		}
		p.finishBar()
		p.state = evt.State
		p.sampler.Reset()
		if p.interactive {
			p.bar = newBar(p.out, label(evt.State))
		} else {
			fmt.Fprintf(p.out, "%s...\n", label(evt.State))
		}
	case jobs.KindProgress:
		if p.bar != nil {
			_ = p.bar.Set(int(evt.Progress * barSteps))
			return
		}
		if !p.interactive && p.sampler.ShouldLog(evt.Progress, p.state) {
			fmt.Fprintf(p.out, "%s %s\n", label(p.state), formatPercent(evt.Progress))
		}
	case jobs.KindOutput:
		if !p.verbose {
			return
		}
		if p.bar != nil {
			_ = p.bar.Clear()
		}
		fmt.Fprintln(p.out, evt.Content)
	case jobs.KindSuccess:
		p.finishBar()
		fmt.Fprintln(p.out, evt.Content)
	case jobs.KindError:
		p.abandonBar()
		fmt.Fprintf(p.out, "Failed: %s\n", evt.Content)
	case jobs.KindCancelled:
		p.abandonBar()
		fmt.Fprintln(p.out, evt.Content)
	}
}

func (p *eventPrinter) finishBar() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}

func (p *eventPrinter) abandonBar() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Exit()
	fmt.Fprintln(p.out)
	p.bar = nil
}

func newBar(out io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(barSteps,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(fmt.Sprintf("%-14s", description)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)
}
