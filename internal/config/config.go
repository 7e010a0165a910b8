package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir         string `toml:"staging_dir"`
	LogDir             string `toml:"log_dir"`
	StateDir           string `toml:"state_dir"`
	APIBind            string `toml:"api_bind"`
	APIToken           string `toml:"api_token"`
	StagingMaxAgeHours int    `toml:"staging_max_age_hours"`
}

// Tools locates the external programs the pipeline drives.
type Tools struct {
	FFmpeg           string `toml:"ffmpeg"`
	OIIOTool         string `toml:"oiiotool"`
	KillGraceSeconds int    `toml:"kill_grace_seconds"`
}

// Preconvert controls the scene-linear to sRGB intermediate pass.
type Preconvert struct {
	Extensions       []string `toml:"extensions"`
	Workers          int      `toml:"workers"`
	OCIOConfig       string   `toml:"ocio_config"`
	InputColorspace  string   `toml:"input_colorspace"`
	OutputColorspace string   `toml:"output_colorspace"`
}

// Defaults seeds job settings that a caller leaves blank.
type Defaults struct {
	Codec           string  `toml:"codec"`
	Bitrate         float64 `toml:"bitrate"`
	ProResProfile   string  `toml:"prores_profile"`
	ProResQScale    int     `toml:"prores_qscale"`
	FrameRate       string  `toml:"frame_rate"`
	SourceFrameRate string  `toml:"source_frame_rate"`
	Duration        float64 `toml:"duration"`
	Audio           string  `toml:"audio"`
}

// Scan controls sequence discovery.
type Scan struct {
	Extensions []string `toml:"extensions"`
}

// History controls the finished-job record.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for framereel.
//
// Configuration sections by subsystem:
//   - Paths: staging, logs, state, and API bind address
//   - Tools: ffmpeg/oiiotool locations and termination grace
//   - Preconvert: EXR to PNG intermediate settings
//   - Defaults: job values used when a request omits them
//   - Scan: image extensions considered for sequences
//   - History: SQLite record of finished jobs
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Tools      Tools      `toml:"tools"`
	Preconvert Preconvert `toml:"preconvert"`
	Defaults   Defaults   `toml:"defaults"`
	Scan       Scan       `toml:"scan"`
	History    History    `toml:"history"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("framereel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a running service writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// KillGrace is the delay between SIGTERM and SIGKILL when stopping a tool.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Tools.KillGraceSeconds) * time.Second
}

// StagingMaxAge is the age after which leftover intermediates are removed.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Paths.StagingMaxAgeHours) * time.Hour
}

// HistoryPath is the SQLite database holding finished jobs.
func (c *Config) HistoryPath() string {
	if strings.TrimSpace(c.History.Path) != "" {
		return c.History.Path
	}
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath is the single-instance lock file for the service.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "framereel.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}
