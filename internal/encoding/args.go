package encoding

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"framereel/internal/sequence"
	"framereel/internal/services"
	"framereel/internal/timing"
)

// AudioMode selects the audio track written alongside the video.
type AudioMode string

const (
	AudioNone   AudioMode = "none"
	AudioSilent AudioMode = "silent"
)

// ParseAudioMode accepts "none" or "silent"; empty means none.
func ParseAudioMode(raw string) (AudioMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "off":
		return AudioNone, nil
	case "silent", "silence":
		return AudioSilent, nil
	default:
		return "", fmt.Errorf("unsupported audio mode %q", raw)
	}
}

const (
	defaultProResQScale = 9
	silentAudioSource   = "anullsrc=channel_layout=stereo:sample_rate=48000"
	colorMatrixFilter   = "scale=in_color_matrix=bt709:out_color_matrix=bt709"
)

// Plan is everything needed to render one encode command.
type Plan struct {
	InputDir   string
	Pattern    sequence.Template
	StartFrame int
	SourceRate timing.Rate
	OutputRate timing.Rate
	Remap      timing.Remap
	Codec      Codec
	Params     Params
	Audio      AudioMode
	OutputPath string
}

// InputPath is the printf-style input the encoder reads.
func (p Plan) InputPath() string {
	return filepath.Join(p.InputDir, p.Pattern.String())
}

// Filter is the retiming and colour filter chain.
func (p Plan) Filter() string {
	return fmt.Sprintf("setpts=%.10f*PTS,fps=%s,%s", p.Remap.ScaleFactor, p.OutputRate.Token, colorMatrixFilter)
}

// BuildArgs renders plan into ffmpeg arguments. The binary is not included.
func BuildArgs(plan Plan) ([]string, error) {
	if err := plan.validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "encoding", "build args", err.Error(), nil)
	}
	audio := plan.Audio
	if audio == "" {
		audio = AudioNone
	}

	args := []string{
		"-y", "-hide_banner",
		"-accurate_seek", "-ss", "0",
		"-start_number", strconv.Itoa(plan.StartFrame),
		"-framerate", plan.SourceRate.Token,
		"-i", plan.InputPath(),
	}
	if audio == AudioSilent {
		args = append(args, "-f", "lavfi", "-i", silentAudioSource)
	}
	args = append(args, "-fps_mode", "cfr", "-vf", plan.Filter())
	if audio == AudioSilent {
		args = append(args, "-map", "0:v:0", "-map", "1:a:0", "-shortest")
	}

	codecArgs, pixFmt, err := codecArgs(plan.Codec, plan.Params)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "encoding", "build args", err.Error(), nil)
	}
	args = append(args,
		"-pix_fmt", pixFmt,
		"-video_track_timescale", strconv.Itoa(plan.OutputRate.Timescale()),
	)
	args = append(args, codecArgs...)
	if audio == AudioSilent {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-color_primaries", "bt709",
		"-color_trc", "bt709",
		"-colorspace", "bt709",
		"-frames:v", strconv.Itoa(plan.Remap.OutputFrames),
		plan.OutputPath,
	)
	return args, nil
}

func (p Plan) validate() error {
	switch {
	case strings.TrimSpace(p.InputDir) == "":
		return fmt.Errorf("input directory is required")
	case p.Pattern == (sequence.Template{}):
		return fmt.Errorf("input pattern is required")
	case strings.TrimSpace(p.OutputPath) == "":
		return fmt.Errorf("output path is required")
	case p.StartFrame < 0:
		return fmt.Errorf("start frame %d must not be negative", p.StartFrame)
	case !p.SourceRate.Valid() || p.SourceRate.Token == "":
		return fmt.Errorf("source frame rate is required")
	case !p.OutputRate.Valid() || p.OutputRate.Token == "":
		return fmt.Errorf("output frame rate is required")
	case p.Remap.OutputFrames <= 0 || p.Remap.ScaleFactor <= 0:
		return fmt.Errorf("time remap has not been calculated")
	}
	switch p.Audio {
	case "", AudioNone, AudioSilent:
	default:
		return fmt.Errorf("unsupported audio mode %q", p.Audio)
	}
	return nil
}

// codecArgs returns encoder arguments and the pixel format for c.
func codecArgs(c Codec, p Params) ([]string, string, error) {
	if err := p.Validate(c); err != nil {
		return nil, "", err
	}
	switch c {
	case CodecH264:
		args := []string{"-c:v", "libx264", "-preset", "medium"}
		args = append(args, rateControl(p)...)
		if p.BitrateMbps > 0 {
			args = append(args, "-x264-params", "nal-hrd=cbr")
		}
		args = append(args, "-profile:v", "high", "-level:v", "5.1")
		return args, "yuv420p", nil
	case CodecH265:
		args := []string{"-c:v", "libx265", "-preset", "medium"}
		args = append(args, rateControl(p)...)
		args = append(args, "-tag:v", "hvc1")
		return args, "yuv420p", nil
	case CodecProRes, CodecProRes422, CodecProRes422HQ, CodecProRes444:
		profile := c.DefaultProResProfile()
		if p.ProResProfile != "" {
			parsed, err := ParseProResProfile(p.ProResProfile)
			if err != nil {
				return nil, "", err
			}
			profile = parsed
		}
		qscale := p.ProResQScale
		if qscale == 0 {
			qscale = defaultProResQScale
		}
		pixFmt := "yuv422p10le"
		if profile >= 4 {
			pixFmt = "yuv444p10le"
		}
		return []string{
			"-c:v", "prores_ks",
			"-profile:v", strconv.Itoa(profile),
			"-vendor", "apl0",
			"-qscale:v", strconv.Itoa(qscale),
		}, pixFmt, nil
	case CodecQTRLE:
		return []string{"-c:v", "qtrle"}, "rgb24", nil
	default:
		return nil, "", fmt.Errorf("unsupported codec %q", c)
	}
}

// rateControl emits a constant-bitrate block when a bitrate is set and a CRF
// target otherwise.
func rateControl(p Params) []string {
	if p.BitrateMbps > 0 {
		rate := strconv.FormatFloat(p.BitrateMbps, 'f', -1, 64) + "M"
		return []string{"-b:v", rate, "-minrate", rate, "-maxrate", rate, "-bufsize", rate}
	}
	return []string{"-crf", strconv.Itoa(p.CRF)}
}
