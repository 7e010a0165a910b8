package encoding

import (
	"fmt"
	"strconv"
	"strings"
)

// Codec identifies an output video codec.
type Codec string

const (
	CodecH264        Codec = "h264"
	CodecH265        Codec = "h265"
	CodecProRes      Codec = "prores"
	CodecProRes422   Codec = "prores_422"
	CodecProRes422HQ Codec = "prores_422_hq"
	CodecProRes444   Codec = "prores_444"
	CodecQTRLE       Codec = "qtrle"
)

// Family groups codecs by how rate control is expressed.
type Family int

const (
	FamilyCBR Family = iota
	FamilyQuality
	FamilyLossless
)

func (f Family) String() string {
	switch f {
	case FamilyCBR:
		return "cbr"
	case FamilyQuality:
		return "quality"
	case FamilyLossless:
		return "lossless"
	default:
		return "unknown"
	}
}

// Codecs lists every supported codec in display order.
func Codecs() []Codec {
	return []Codec{CodecH264, CodecH265, CodecProRes, CodecProRes422, CodecProRes422HQ, CodecProRes444, CodecQTRLE}
}

var codecAliases = map[string]Codec{
	"h264":          CodecH264,
	"x264":          CodecH264,
	"avc":           CodecH264,
	"h265":          CodecH265,
	"x265":          CodecH265,
	"hevc":          CodecH265,
	"prores":        CodecProRes,
	"prores_422":    CodecProRes422,
	"prores_422_hq": CodecProRes422HQ,
	"prores_hq":     CodecProRes422HQ,
	"prores_444":    CodecProRes444,
	"prores_4444":   CodecProRes444,
	"qtrle":         CodecQTRLE,
	"animation":     CodecQTRLE,
}

// ParseCodec resolves a codec identifier, accepting common aliases.
func ParseCodec(raw string) (Codec, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	if codec, ok := codecAliases[key]; ok {
		return codec, nil
	}
	return "", fmt.Errorf("unsupported codec %q", raw)
}

// Family reports the rate-control family of c.
func (c Codec) Family() Family {
	switch c {
	case CodecH264, CodecH265:
		return FamilyCBR
	case CodecProRes, CodecProRes422, CodecProRes422HQ, CodecProRes444:
		return FamilyQuality
	default:
		return FamilyLossless
	}
}

// Extension returns the container extension, including the dot.
func (c Codec) Extension() string {
	if c.Family() == FamilyCBR {
		return ".mp4"
	}
	return ".mov"
}

// DefaultProResProfile is the profile index used when none is given for c.
func (c Codec) DefaultProResProfile() int {
	switch c {
	case CodecProRes422:
		return 2
	case CodecProRes422HQ:
		return 3
	case CodecProRes444:
		return 4
	default:
		return 2
	}
}

// Params carries codec-specific tuning. Zero values mean "use the default".
type Params struct {
	BitrateMbps   float64 `json:"bitrate,omitempty" yaml:"bitrate,omitempty"`
	CRF           int     `json:"crf,omitempty" yaml:"crf,omitempty"`
	ProResProfile string  `json:"prores_profile,omitempty" yaml:"prores_profile,omitempty"`
	ProResQScale  int     `json:"prores_qscale,omitempty" yaml:"prores_qscale,omitempty"`
}

var proresProfiles = map[string]int{
	"proxy":    0,
	"lt":       1,
	"422":      2,
	"standard": 2,
	"hq":       3,
	"422_hq":   3,
	"4444":     4,
	"444":      4,
	"xq":       5,
	"4444_xq":  5,
}

// ParseProResProfile accepts an index 0-5 or a profile name such as "hq".
func ParseProResProfile(raw string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(key); err == nil {
		if n < 0 || n > 5 {
			return 0, fmt.Errorf("prores profile %d out of range 0-5", n)
		}
		return n, nil
	}
	if n, ok := proresProfiles[key]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("unknown prores profile %q", raw)
}

// Validate checks params against the codec family.
func (p Params) Validate(c Codec) error {
	switch c.Family() {
	case FamilyCBR:
		if p.BitrateMbps < 0 {
			return fmt.Errorf("bitrate must not be negative")
		}
		if p.BitrateMbps == 0 && p.CRF == 0 {
			return fmt.Errorf("%s requires a bitrate or crf", c)
		}
		if p.CRF < 0 || p.CRF > 51 {
			return fmt.Errorf("crf %d out of range 0-51", p.CRF)
		}
	case FamilyQuality:
		if p.ProResProfile != "" {
			if _, err := ParseProResProfile(p.ProResProfile); err != nil {
				return err
			}
		}
		if p.ProResQScale < 0 || p.ProResQScale > 32 {
			return fmt.Errorf("prores qscale %d out of range 0-32", p.ProResQScale)
		}
	case FamilyLossless:
	}
	return nil
}

// OutputName ensures name carries the codec's container extension.
func OutputName(name string, c Codec) string {
	name = strings.TrimSpace(name)
	ext := c.Extension()
	if strings.EqualFold(pathExt(name), ext) {
		return name
	}
	if current := pathExt(name); current == ".mp4" || current == ".mov" {
		name = strings.TrimSuffix(name, current)
	}
	return name + ext
}

func pathExt(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx:])
}
