package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	for _, size := range []float64{0, -1} {
		if s := NewProgressSampler(size); s.bucketSize != 5 || s.lastBucket != -1 {
			t.Fatalf("NewProgressSampler(%v) = %+v", size, s)
		}
	}
	if s := NewProgressSampler(10); s.bucketSize != 10 {
		t.Fatalf("bucketSize = %v, want 10", s.bucketSize)
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(0.5, "encoding") {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(5)
	steps := []struct {
		fraction float64
		want     bool
	}{
		{0, true},
		{0.01, false},
		{0.049, false},
		{0.05, true},
		{0.07, false},
		{0.5, true},
		{0.4, false},
		{1, true},
		{1.2, false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.fraction, "encoding"); got != step.want {
			t.Fatalf("step %d (%v): ShouldLog = %v, want %v", i, step.fraction, got, step.want)
		}
	}
}

func TestProgressSamplerStageChangeResetsBuckets(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(0.9, "preconverting") {
		t.Fatal("first update should log")
	}
	if !s.ShouldLog(0.1, "encoding") {
		t.Fatal("stage change should log")
	}
	if s.ShouldLog(0.11, "encoding") {
		t.Fatal("same bucket should not log")
	}
	if !s.ShouldLog(-1, "done") {
		t.Fatal("stage change with unknown progress should log")
	}
	if s.ShouldLog(-1, "done") {
		t.Fatal("unknown progress in same stage should not log")
	}
	s.Reset()
	if !s.ShouldLog(0.11, "encoding") {
		t.Fatal("reset should allow logging again")
	}
}
