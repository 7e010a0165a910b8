package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePreconvert(); err != nil {
		return err
	}
	if err := c.validateDefaults(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if !strings.Contains(c.Paths.APIBind, ":") {
		return fmt.Errorf("paths.api_bind %q must be host:port", c.Paths.APIBind)
	}
	return nil
}

func (c *Config) validatePreconvert() error {
	if c.Preconvert.Workers > 8 {
		return fmt.Errorf("preconvert.workers must be between 0 and 8, got %d", c.Preconvert.Workers)
	}
	return nil
}

func (c *Config) validateDefaults() error {
	if err := positiveNumber("defaults.frame_rate", c.Defaults.FrameRate); err != nil {
		return err
	}
	if err := positiveNumber("defaults.source_frame_rate", c.Defaults.SourceFrameRate); err != nil {
		return err
	}
	if c.Defaults.Duration <= 0 {
		return errors.New("defaults.duration must be positive")
	}
	if c.Defaults.Bitrate <= 0 {
		return errors.New("defaults.bitrate must be positive")
	}
	if c.Defaults.ProResQScale < 0 || c.Defaults.ProResQScale > 31 {
		return fmt.Errorf("defaults.prores_qscale must be between 0 and 31, got %d", c.Defaults.ProResQScale)
	}
	switch c.Defaults.Audio {
	case "none", "silent":
	default:
		return fmt.Errorf("defaults.audio must be none or silent, got %q", c.Defaults.Audio)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error; got %q", c.Logging.Level)
	}
}

func positiveNumber(field, raw string) error {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return fmt.Errorf("%s must be a positive number, got %q", field, raw)
	}
	return nil
}
