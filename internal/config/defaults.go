package config

const (
	defaultConfigPath         = "~/.config/framereel/config.toml"
	defaultStagingDir         = "~/.local/share/framereel/staging"
	defaultLogDir             = "~/.local/share/framereel/logs"
	defaultStateDir           = "~/.local/share/framereel"
	defaultAPIBind            = "127.0.0.1:7490"
	defaultStagingMaxAgeHours = 72
	defaultFFmpeg             = "ffmpeg"
	defaultOIIOTool           = "oiiotool"
	defaultKillGraceSeconds   = 5
	defaultOCIOConfig         = "/mnt/studio/config/ocio/aces_1.2/config.ocio"
	defaultInputColorspace    = "ACES - ACEScg"
	defaultOutputColorspace   = "Output - sRGB"
	defaultCodec              = "h265"
	defaultBitrate            = 30
	defaultProResProfile      = "2"
	defaultProResQScale       = 9
	defaultFrameRate          = "60"
	defaultSourceFrameRate    = "60"
	defaultDuration           = 15
	defaultAudio              = "none"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

var (
	defaultPreconvertExtensions = []string{"exr"}
	defaultScanExtensions       = []string{"png", "jpg", "jpeg", "tiff", "tif", "bmp", "exr", "dpx"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:         defaultStagingDir,
			LogDir:             defaultLogDir,
			StateDir:           defaultStateDir,
			APIBind:            defaultAPIBind,
			StagingMaxAgeHours: defaultStagingMaxAgeHours,
		},
		Tools: Tools{
			FFmpeg:           defaultFFmpeg,
			OIIOTool:         defaultOIIOTool,
			KillGraceSeconds: defaultKillGraceSeconds,
		},
		Preconvert: Preconvert{
			Extensions:       append([]string(nil), defaultPreconvertExtensions...),
			OCIOConfig:       defaultOCIOConfig,
			InputColorspace:  defaultInputColorspace,
			OutputColorspace: defaultOutputColorspace,
		},
		Defaults: Defaults{
			Codec:           defaultCodec,
			Bitrate:         defaultBitrate,
			ProResProfile:   defaultProResProfile,
			ProResQScale:    defaultProResQScale,
			FrameRate:       defaultFrameRate,
			SourceFrameRate: defaultSourceFrameRate,
			Duration:        defaultDuration,
			Audio:           defaultAudio,
		},
		Scan: Scan{
			Extensions: append([]string(nil), defaultScanExtensions...),
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
