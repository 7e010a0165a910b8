package jobs

import (
	"fmt"
	"os"
	"strings"

	"framereel/internal/encoding"
	"framereel/internal/preconvert"
	"framereel/internal/sequence"
	"framereel/internal/services"
	"framereel/internal/timing"
)

// resolvedJob is a JobConfig turned into typed values.
type resolvedJob struct {
	Template   sequence.Template
	Start      int
	End        int
	Codec      encoding.Codec
	Params     encoding.Params
	Source     timing.Rate
	Output     timing.Rate
	Duration   float64
	Audio      encoding.AudioMode
	OutputPath string
	Preconvert bool
}

func (r resolvedJob) frames() int {
	return r.End - r.Start + 1
}

// resolve validates job and derives everything the pipeline needs.
// preconvertExts lists extensions that require the intermediate pass.
func resolve(job JobConfig, preconvertExts, scanExts []string) (resolvedJob, error) {
	if err := job.Validate(); err != nil {
		return resolvedJob{}, err
	}
	tmpl, err := sequence.ParsePattern(job.Pattern)
	if err != nil {
		return resolvedJob{}, services.Wrap(services.ErrValidation, "job", "parse pattern", err.Error(), nil)
	}
	info, err := os.Stat(job.InputDir)
	if err != nil || !info.IsDir() {
		return resolvedJob{}, services.Wrap(services.ErrSequenceNotFound, "job", "input", fmt.Sprintf("input folder %s does not exist", job.InputDir), err)
	}

	out := resolvedJob{
		Template:   tmpl,
		Start:      job.StartFrame,
		End:        job.EndFrame,
		Params:     job.params(),
		OutputPath: job.OutputPath(),
		Preconvert: preconvert.Required(tmpl, preconvertExts),
	}
	if job.autoRange() {
		seq, err := sequence.Find(job.InputDir, tmpl, scanExts)
		if err != nil {
			return resolvedJob{}, err
		}
		out.Start, out.End = seq.Start(), seq.End()
	}
	if out.Codec, err = encoding.ParseCodec(job.Codec); err != nil {
		return resolvedJob{}, services.Wrap(services.ErrValidation, "job", "codec", err.Error(), nil)
	}
	if out.Audio, err = encoding.ParseAudioMode(job.Audio); err != nil {
		return resolvedJob{}, services.Wrap(services.ErrValidation, "job", "audio", err.Error(), nil)
	}
	if out.Source, err = timing.NormalizeRate(job.SourceFrameRate); err != nil {
		return resolvedJob{}, err
	}
	if out.Output, err = timing.NormalizeRate(job.FrameRate); err != nil {
		return resolvedJob{}, err
	}
	if strings.TrimSpace(string(job.Duration)) == "" {
		return resolvedJob{}, services.Wrap(services.ErrInvalidTiming, "job", "duration", errEmptyDuration.Error(), nil)
	}
	if out.Duration, err = timing.ParseDuration(string(job.Duration)); err != nil {
		return resolvedJob{}, err
	}
	return out, nil
}
