package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"framereel/internal/config"
	"framereel/internal/encoding"
	"framereel/internal/services"
)

// Seconds is a duration in seconds that decodes from either a JSON/YAML
// number or a string.
type Seconds string

// UnmarshalJSON accepts 15, 2.5 or "15".
func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = Seconds(strings.TrimSpace(raw))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a number or string: %w", err)
	}
	*s = Seconds(n.String())
	return nil
}

// UnmarshalYAML accepts scalar numbers and strings.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %s", node.Tag)
	}
	*s = Seconds(strings.TrimSpace(node.Value))
	return nil
}

// JobConfig is one conversion request as submitted by a caller.
type JobConfig struct {
	InputDir        string  `json:"input_dir" yaml:"input_dir"`
	Pattern         string  `json:"pattern" yaml:"pattern"`
	StartFrame      int     `json:"start_frame" yaml:"start_frame"`
	EndFrame        int     `json:"end_frame" yaml:"end_frame"`
	OutputDir       string  `json:"output_dir" yaml:"output_dir"`
	OutputName      string  `json:"output_name" yaml:"output_name"`
	Codec           string  `json:"codec,omitempty" yaml:"codec,omitempty"`
	Bitrate         float64 `json:"bitrate,omitempty" yaml:"bitrate,omitempty"`
	CRF             int     `json:"crf,omitempty" yaml:"crf,omitempty"`
	ProResProfile   string  `json:"prores_profile,omitempty" yaml:"prores_profile,omitempty"`
	ProResQScale    int     `json:"prores_qscale,omitempty" yaml:"prores_qscale,omitempty"`
	SourceFrameRate string  `json:"source_frame_rate,omitempty" yaml:"source_frame_rate,omitempty"`
	FrameRate       string  `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	Duration        Seconds `json:"duration,omitempty" yaml:"duration,omitempty"`
	Audio           string  `json:"audio,omitempty" yaml:"audio,omitempty"`
}

// LoadFile reads a YAML job description.
func LoadFile(path string) (JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobConfig{}, fmt.Errorf("read job file: %w", err)
	}
	var job JobConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return JobConfig{}, fmt.Errorf("parse job file %s: %w", path, err)
	}
	if !filepath.IsAbs(job.InputDir) && job.InputDir != "" {
		job.InputDir = filepath.Join(filepath.Dir(path), job.InputDir)
	}
	if !filepath.IsAbs(job.OutputDir) && job.OutputDir != "" {
		job.OutputDir = filepath.Join(filepath.Dir(path), job.OutputDir)
	}
	return job, nil
}

// WithDefaults fills blank settings from the configuration defaults. The
// receiver is not modified.
func (j JobConfig) WithDefaults(cfg *config.Config) JobConfig {
	if cfg == nil {
		return j
	}
	d := cfg.Defaults
	if strings.TrimSpace(j.Codec) == "" {
		j.Codec = d.Codec
	}
	codec, err := encoding.ParseCodec(j.Codec)
	if err == nil {
		switch codec.Family() {
		case encoding.FamilyCBR:
			if j.Bitrate == 0 && j.CRF == 0 {
				j.Bitrate = d.Bitrate
			}
		case encoding.FamilyQuality:
			if j.ProResProfile == "" && codec == encoding.CodecProRes {
				j.ProResProfile = d.ProResProfile
			}
			if j.ProResQScale == 0 {
				j.ProResQScale = d.ProResQScale
			}
		}
	}
	if strings.TrimSpace(j.SourceFrameRate) == "" {
		j.SourceFrameRate = d.SourceFrameRate
	}
	if strings.TrimSpace(j.FrameRate) == "" {
		j.FrameRate = d.FrameRate
	}
	if strings.TrimSpace(string(j.Duration)) == "" && d.Duration > 0 {
		j.Duration = Seconds(strconv.FormatFloat(d.Duration, 'f', -1, 64))
	}
	if strings.TrimSpace(j.Audio) == "" {
		j.Audio = d.Audio
	}
	if strings.TrimSpace(j.OutputDir) == "" {
		j.OutputDir = j.InputDir
	}
	return j
}

// Validate checks the fields that do not need the filesystem or timing math.
func (j JobConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(j.InputDir) == "" {
		problems = append(problems, "input_dir is required")
	}
	if strings.TrimSpace(j.Pattern) == "" {
		problems = append(problems, "pattern is required")
	}
	if strings.TrimSpace(j.OutputDir) == "" {
		problems = append(problems, "output_dir is required")
	}
	if strings.TrimSpace(j.OutputName) == "" {
		problems = append(problems, "output_name is required")
	} else if strings.ContainsRune(j.OutputName, filepath.Separator) {
		problems = append(problems, "output_name must be a file name")
	}
	if j.StartFrame < 0 || j.EndFrame < 0 {
		problems = append(problems, "frame numbers must not be negative")
	}
	codec, err := encoding.ParseCodec(j.Codec)
	if err != nil {
		problems = append(problems, err.Error())
	} else if err := j.params().Validate(codec); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := encoding.ParseAudioMode(j.Audio); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "job", "validate", strings.Join(problems, "; "), nil)
}

// OutputPath is the final file location with the codec's extension applied.
func (j JobConfig) OutputPath() string {
	codec, err := encoding.ParseCodec(j.Codec)
	if err != nil {
		return filepath.Join(j.OutputDir, j.OutputName)
	}
	return filepath.Join(j.OutputDir, encoding.OutputName(j.OutputName, codec))
}

func (j JobConfig) params() encoding.Params {
	return encoding.Params{
		BitrateMbps:   j.Bitrate,
		CRF:           j.CRF,
		ProResProfile: j.ProResProfile,
		ProResQScale:  j.ProResQScale,
	}
}

// autoRange reports whether the frame range should come from disk.
func (j JobConfig) autoRange() bool {
	return j.StartFrame == 0 && j.EndFrame == 0
}

var errEmptyDuration = errors.New("duration is required")
