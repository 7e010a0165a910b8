package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"framereel/internal/config"
	"framereel/internal/jobs"
	"framereel/internal/sequence"
)

// jobFlags collects the JobConfig fields shared by convert and submit.
type jobFlags struct {
	jobFile string
	input   string
	pattern string
	start   int
	end     int
	outDir  string
	name    string
	codec   string
	bitrate float64
	crf     int
	profile string
	qscale  int
	srcFPS  string
	fps     string
	seconds string
	audio   string
}

func (f *jobFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.jobFile, "job", "", "YAML job file; flags given alongside override its values")
	flags.StringVarP(&f.input, "input", "i", "", "Directory holding the frames")
	flags.StringVarP(&f.pattern, "pattern", "p", "", "Frame pattern such as shot_%04d.png (detected when the directory holds one sequence)")
	flags.IntVar(&f.start, "start", 0, "First frame (0 with --end 0 uses the detected range)")
	flags.IntVar(&f.end, "end", 0, "Last frame")
	flags.StringVarP(&f.outDir, "output-dir", "o", "", "Output directory (defaults to the input directory)")
	flags.StringVarP(&f.name, "name", "n", "", "Output file name; the codec's extension is added when missing")
	flags.StringVar(&f.codec, "codec", "", "h264, h265, prores, prores_422, prores_422_hq, prores_444 or qtrle")
	flags.Float64Var(&f.bitrate, "bitrate", 0, "Target bitrate in Mbps for h264/h265")
	flags.IntVar(&f.crf, "crf", 0, "Constant rate factor for h264/h265 instead of a bitrate")
	flags.StringVar(&f.profile, "prores-profile", "", "ProRes profile 0-5 or proxy, lt, standard, hq, 4444, xq")
	flags.IntVar(&f.qscale, "prores-qscale", 0, "ProRes quantizer 0-32")
	flags.StringVar(&f.srcFPS, "source-fps", "", "Rate the frames were rendered at, e.g. 24 or 23.976")
	flags.StringVar(&f.fps, "fps", "", "Output frame rate")
	flags.StringVarP(&f.seconds, "duration", "d", "", "Output duration in seconds")
	flags.StringVar(&f.audio, "audio", "", "none or silent")
}

// build assembles the job from --job and the flags that were set. Relative
// input and output directories resolve against the working directory.
func (f *jobFlags) build(cmd *cobra.Command, cfg *config.Config) (jobs.JobConfig, error) {
	var job jobs.JobConfig
	if strings.TrimSpace(f.jobFile) != "" {
		loaded, err := jobs.LoadFile(f.jobFile)
		if err != nil {
			return job, err
		}
		job = loaded
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("input", func() { job.InputDir = f.input })
	set("pattern", func() { job.Pattern = f.pattern })
	set("start", func() { job.StartFrame = f.start })
	set("end", func() { job.EndFrame = f.end })
	set("output-dir", func() { job.OutputDir = f.outDir })
	set("name", func() { job.OutputName = f.name })
	set("codec", func() { job.Codec = f.codec })
	set("bitrate", func() { job.Bitrate = f.bitrate })
	set("crf", func() { job.CRF = f.crf })
	set("prores-profile", func() { job.ProResProfile = f.profile })
	set("prores-qscale", func() { job.ProResQScale = f.qscale })
	set("source-fps", func() { job.SourceFrameRate = f.srcFPS })
	set("fps", func() { job.FrameRate = f.fps })
	set("duration", func() { job.Duration = jobs.Seconds(f.seconds) })
	set("audio", func() { job.Audio = f.audio })

	if job.InputDir == "" {
		return job, fmt.Errorf("--input or a --job file is required")
	}
	abs, err := filepath.Abs(job.InputDir)
	if err != nil {
		return job, err
	}
	job.InputDir = abs
	if job.OutputDir != "" {
		if job.OutputDir, err = filepath.Abs(job.OutputDir); err != nil {
			return job, err
		}
	}

	if job.Pattern == "" {
		seq, err := soleSequence(job.InputDir, cfg.Scan.Extensions)
		if err != nil {
			return job, err
		}
		job.Pattern = seq.Pattern()
	}
	if job.OutputName == "" {
		job.OutputName = defaultOutputName(job.Pattern)
	}
	return job, nil
}

// soleSequence returns the only sequence in dir, or an error listing the
// candidates.
func soleSequence(dir string, extensions []string) (sequence.Sequence, error) {
	result, err := sequence.Scan(dir, extensions)
	if err != nil {
		return sequence.Sequence{}, err
	}
	switch len(result.Sequences) {
	case 0:
		return sequence.Sequence{}, fmt.Errorf("no image sequence found in %s", dir)
	case 1:
		return result.Sequences[0], nil
	default:
		patterns := make([]string, 0, len(result.Sequences))
		for _, seq := range result.Sequences {
			patterns = append(patterns, strconv.Quote(seq.Pattern()))
		}
		return sequence.Sequence{}, fmt.Errorf("%s holds several sequences (%s); choose one with --pattern", dir, strings.Join(patterns, ", "))
	}
}

// defaultOutputName derives a file name from the pattern head, e.g.
// "shot_%04d.png" becomes "shot".
func defaultOutputName(pattern string) string {
	tmpl, err := sequence.ParsePattern(pattern)
	if err != nil {
		return "output"
	}
	name := strings.TrimRight(tmpl.Head, "._- ")
	if name == "" {
		return "output"
	}
	return name
}

