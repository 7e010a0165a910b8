package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTools(); err != nil {
		return err
	}
	if err := c.normalizePreconvert(); err != nil {
		return err
	}
	c.normalizeDefaults()
	c.Scan.Extensions = normalizeExtensions(c.Scan.Extensions, defaultScanExtensions)
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("FRAMEREEL_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Paths.StagingMaxAgeHours < 0 {
		c.Paths.StagingMaxAgeHours = 0
	}
	return nil
}

func (c *Config) normalizeTools() error {
	if value, ok := os.LookupEnv("FRAMEREEL_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.Tools.FFmpeg = value
	}
	if value, ok := os.LookupEnv("FRAMEREEL_OIIOTOOL"); ok && strings.TrimSpace(value) != "" {
		c.Tools.OIIOTool = value
	}
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
	c.Tools.OIIOTool = strings.TrimSpace(c.Tools.OIIOTool)
	if c.Tools.OIIOTool == "" {
		c.Tools.OIIOTool = defaultOIIOTool
	}
	var err error
	for _, tool := range []*string{&c.Tools.FFmpeg, &c.Tools.OIIOTool} {
		if strings.ContainsRune(*tool, '/') || strings.HasPrefix(*tool, "~") {
			if *tool, err = expandPath(*tool); err != nil {
				return fmt.Errorf("tools: %w", err)
			}
		}
	}
	if c.Tools.KillGraceSeconds <= 0 {
		c.Tools.KillGraceSeconds = defaultKillGraceSeconds
	}
	return nil
}

func (c *Config) normalizePreconvert() error {
	c.Preconvert.Extensions = normalizeExtensions(c.Preconvert.Extensions, defaultPreconvertExtensions)
	c.Preconvert.OCIOConfig = strings.TrimSpace(c.Preconvert.OCIOConfig)
	if value, ok := os.LookupEnv("OCIO"); ok && strings.TrimSpace(value) != "" && c.Preconvert.OCIOConfig == defaultOCIOConfig {
		c.Preconvert.OCIOConfig = strings.TrimSpace(value)
	}
	if c.Preconvert.OCIOConfig != "" {
		var err error
		if c.Preconvert.OCIOConfig, err = expandPath(c.Preconvert.OCIOConfig); err != nil {
			return fmt.Errorf("preconvert.ocio_config: %w", err)
		}
	}
	c.Preconvert.InputColorspace = strings.TrimSpace(c.Preconvert.InputColorspace)
	if c.Preconvert.InputColorspace == "" {
		c.Preconvert.InputColorspace = defaultInputColorspace
	}
	c.Preconvert.OutputColorspace = strings.TrimSpace(c.Preconvert.OutputColorspace)
	if c.Preconvert.OutputColorspace == "" {
		c.Preconvert.OutputColorspace = defaultOutputColorspace
	}
	if c.Preconvert.Workers < 0 {
		c.Preconvert.Workers = 0
	}
	return nil
}

func (c *Config) normalizeDefaults() {
	c.Defaults.Codec = strings.ToLower(strings.TrimSpace(c.Defaults.Codec))
	if c.Defaults.Codec == "" {
		c.Defaults.Codec = defaultCodec
	}
	c.Defaults.ProResProfile = strings.TrimSpace(c.Defaults.ProResProfile)
	if c.Defaults.ProResProfile == "" {
		c.Defaults.ProResProfile = defaultProResProfile
	}
	c.Defaults.FrameRate = strings.TrimSpace(c.Defaults.FrameRate)
	if c.Defaults.FrameRate == "" {
		c.Defaults.FrameRate = defaultFrameRate
	}
	c.Defaults.SourceFrameRate = strings.TrimSpace(c.Defaults.SourceFrameRate)
	if c.Defaults.SourceFrameRate == "" {
		c.Defaults.SourceFrameRate = c.Defaults.FrameRate
	}
	c.Defaults.Audio = strings.ToLower(strings.TrimSpace(c.Defaults.Audio))
	if c.Defaults.Audio == "" {
		c.Defaults.Audio = defaultAudio
	}
}

func (c *Config) normalizeHistory() error {
	c.History.Path = strings.TrimSpace(c.History.Path)
	if c.History.Path == "" {
		return nil
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeExtensions(values, fallback []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
