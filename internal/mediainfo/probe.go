// Package mediainfo reads container-level facts from encoded outputs.
package mediainfo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ErrNoVideoTrack is returned when a container holds no video track.
var ErrNoVideoTrack = errors.New("no video track found")

// Info describes the first video track of an ISO-BMFF/QuickTime file.
type Info struct {
	Codec     string
	Width     int
	Height    int
	Timescale uint32
	Frames    int
	Duration  time.Duration
}

// FPS returns the average frame rate, or zero when unknown.
func (i Info) FPS() float64 {
	if i.Frames == 0 || i.Duration <= 0 {
		return 0
	}
	return float64(i.Frames) / i.Duration.Seconds()
}

// Supported reports whether path has a container extension Probe understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".m4v":
		return true
	default:
		return false
	}
}

// Probe decodes path and returns its video track information.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ProbeReader(f)
}

// ProbeReader decodes the box structure from rs. Media data is skipped, so
// only the headers and sample tables are read.
func ProbeReader(rs io.ReadSeeker) (Info, error) {
	file, err := mp4.DecodeFile(rs, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return Info{}, fmt.Errorf("decode mp4: %w", err)
	}
	moov := file.Moov
	if moov == nil && file.Init != nil {
		moov = file.Init.Moov
	}
	if moov == nil {
		return Info{}, fmt.Errorf("no moov box found")
	}
	for _, trak := range moov.Traks {
		if info, ok := trackInfo(trak); ok {
			return info, nil
		}
	}
	return Info{}, ErrNoVideoTrack
}

func trackInfo(trak *mp4.TrakBox) (Info, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
		return Info{}, false
	}
	var info Info
	if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 {
		info.Timescale = mdhd.Timescale
		info.Duration = time.Duration(float64(mdhd.Duration) / float64(mdhd.Timescale) * float64(time.Second))
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return info, true
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz != nil {
		info.Frames = int(stbl.Stsz.SampleNumber)
	}
	if stbl.Stsd != nil {
		for _, child := range stbl.Stsd.Children {
			info.Codec = child.Type()
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				info.Width = int(vse.Width)
				info.Height = int(vse.Height)
			}
			break
		}
	}
	return info, true
}
