package timing

import (
	"errors"
	"math"
	"testing"

	"framereel/internal/services"
)

func TestNormalizeRateBroadcastTable(t *testing.T) {
	tests := []struct {
		in    string
		token string
		num   int
	}{
		{"23.976", "24000/1001", 24000},
		{"23.9761", "24000/1001", 24000},
		{"29.97", "30000/1001", 30000},
		{"47.952", "48000/1001", 48000},
		{"59.94", "60000/1001", 60000},
		{"119.88", "120000/1001", 120000},
		{" 14.985 ", "15000/1001", 15000},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			r, err := NormalizeRate(tc.in)
			if err != nil {
				t.Fatalf("NormalizeRate: %v", err)
			}
			if !r.Exact || r.Token != tc.token || r.Num != tc.num || r.Den != 1001 {
				t.Fatalf("unexpected rate %+v", r)
			}
			if want := float64(tc.num) / 1001; r.FPS != want {
				t.Fatalf("FPS = %v, want %v", r.FPS, want)
			}
			if r.Timescale() != tc.num {
				t.Fatalf("Timescale = %d, want %d", r.Timescale(), tc.num)
			}
		})
	}
}

func TestNormalizeRateDecimal(t *testing.T) {
	tests := []struct {
		in        string
		token     string
		timescale int
	}{
		{"24", "24", 24000},
		{"24.0", "24", 24000},
		{"25.5", "25.5", 25500},
		{"60", "60", 60000},
		{"23.99", "23.99", 23990},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			r, err := NormalizeRate(tc.in)
			if err != nil {
				t.Fatalf("NormalizeRate: %v", err)
			}
			if r.Exact || r.Num != 0 || r.Den != 0 {
				t.Fatalf("expected inexact rate, got %+v", r)
			}
			if r.Token != tc.token {
				t.Fatalf("Token = %q, want %q", r.Token, tc.token)
			}
			if r.Timescale() != tc.timescale {
				t.Fatalf("Timescale = %d, want %d", r.Timescale(), tc.timescale)
			}
		})
	}
}

func TestNormalizeRateRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-24", "NaN", "Inf"} {
		_, err := NormalizeRate(in)
		if !errors.Is(err, services.ErrInvalidTiming) {
			t.Fatalf("NormalizeRate(%q) error = %v, want ErrInvalidTiming", in, err)
		}
	}
}

func TestNormalizeRateNeverDriftsOnBroadcast(t *testing.T) {
	r := MustRate("59.94")
	if math.Abs(r.FPS*1001-60000) > 1e-9 {
		t.Fatalf("unexpected FPS %v", r.FPS)
	}
}
