package timing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"framereel/internal/services"
)

// Tolerance used when matching a decimal rate against the broadcast table.
const Tolerance = 1e-3

// Rate is a normalized frame rate. Num and Den are set only when Exact.
type Rate struct {
	FPS   float64 `json:"fps"`
	Token string  `json:"token"`
	Num   int     `json:"num,omitempty"`
	Den   int     `json:"den,omitempty"`
	Exact bool    `json:"exact"`
}

type rational struct {
	approx float64
	num    int
	den    int
}

var broadcastRates = []rational{
	{14.985, 15000, 1001},
	{23.976, 24000, 1001},
	{29.97, 30000, 1001},
	{47.952, 48000, 1001},
	{59.94, 60000, 1001},
	{119.88, 120000, 1001},
}

// NormalizeRate parses a decimal frame rate. Values within Tolerance of a
// broadcast rate become that exact rational; anything else keeps its decimal
// value and shortest textual form.
func NormalizeRate(raw string) (Rate, error) {
	trimmed := strings.TrimSpace(raw)
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Rate{}, services.Wrap(services.ErrInvalidTiming, "timing", "parse rate", fmt.Sprintf("frame rate %q is not a number", raw), nil)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return Rate{}, services.Wrap(services.ErrInvalidTiming, "timing", "parse rate", fmt.Sprintf("frame rate %q must be positive", raw), nil)
	}
	for _, r := range broadcastRates {
		if math.Abs(value-r.approx) < Tolerance {
			return Rate{
				FPS:   float64(r.num) / float64(r.den),
				Token: fmt.Sprintf("%d/%d", r.num, r.den),
				Num:   r.num,
				Den:   r.den,
				Exact: true,
			}, nil
		}
	}
	return Rate{FPS: value, Token: strconv.FormatFloat(value, 'f', -1, 64)}, nil
}

// MustRate is NormalizeRate for constants known to be valid.
func MustRate(raw string) Rate {
	r, err := NormalizeRate(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Timescale is the container track timescale for this rate.
func (r Rate) Timescale() int {
	if r.Exact && r.Num > 0 {
		return r.Num
	}
	return int(math.Round(r.FPS * 1000))
}

// Valid reports whether the rate can drive a calculation.
func (r Rate) Valid() bool {
	return r.FPS > 0 && !math.IsNaN(r.FPS) && !math.IsInf(r.FPS, 0)
}

func (r Rate) String() string {
	return r.Token
}
