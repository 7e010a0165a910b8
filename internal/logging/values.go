package logging

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Fraction logs a 0..1 completion value. Console output shows a percentage;
// JSON keeps the number.
func Fraction(key string, value float64) Attr { return slog.Any(key, fraction(value)) }

// Bytes logs a size. Console output is human readable; JSON keeps the count.
func Bytes(key string, value int64) Attr { return slog.Any(key, byteSize(value)) }

type fraction float64

func (f fraction) String() string {
	return strconv.FormatFloat(float64(f)*100, 'f', 1, 64) + "%"
}

func (f fraction) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(roundTo(float64(f), 4), 'f', -1, 64)), nil
}

type byteSize int64

func (b byteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.IBytes(uint64(b))
}

func (b byteSize) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(b), 10)), nil
}

// formatDuration trims precision so encode timings read at a glance.
func formatDuration(d time.Duration) string {
	switch abs := d.Abs(); {
	case abs < time.Millisecond:
		return d.String()
	case abs < time.Second:
		return d.Round(time.Millisecond).String()
	case abs < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		return anyString(v.Any())
	default:
		return formatValue(v)
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(roundTo(v.Float64(), 3), 'f', -1, 64)
	case slog.KindDuration:
		return formatDuration(v.Duration())
	case slog.KindTime:
		s = formatTimestamp(v.Time())
	case slog.KindAny:
		s = anyString(v.Any())
	default:
		s = v.String()
	}
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func anyString(value any) string {
	switch x := value.(type) {
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(value)
	}
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
