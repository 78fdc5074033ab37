package ffmpeg

import (
	"strings"
	"testing"
	"time"
)

func TestProgressScanner_Blocks(t *testing.T) {
	input := strings.Join([]string{
		"frame=10",
		"out_time_us=1000000",
		"out_time_ms=1000000",
		"out_time=00:00:01.000000",
		"speed=   1x",
		"progress=continue",
		"out_time_us=60000000",
		"speed=2.0x",
		"progress=continue",
		"out_time_us=N/A",
		"speed=N/A",
		"progress=end",
		"out_time_us=99000000",
		"progress=continue",
	}, "\n")

	s := NewProgressScanner(strings.NewReader(input))

	var got []Sample
	for s.Scan() {
		got = append(got, s.Sample())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3 (nothing after progress=end)", len(got))
	}
	if !got[0].HasElapsed || got[0].Elapsed != time.Second || got[0].Speed != 1 {
		t.Errorf("sample 0 = %+v", got[0])
	}
	if got[1].Elapsed != 60*time.Second || got[1].Speed != 2.0 {
		t.Errorf("sample 1 = %+v", got[1])
	}
	if got[2].HasElapsed || got[2].Speed != 0 || !got[2].End {
		t.Errorf("sample 2 = %+v", got[2])
	}
	if got[0].Values["frame"] != "10" {
		t.Errorf("raw values not kept: %v", got[0].Values)
	}
}

func TestProgressScanner_FallsBackToOutTimeMs(t *testing.T) {
	s := NewProgressScanner(strings.NewReader("out_time_ms=2500000\nprogress=continue\n"))
	if !s.Scan() {
		t.Fatal("expected a sample")
	}
	if got := s.Sample().Elapsed; got != 2500*time.Millisecond {
		t.Errorf("Elapsed = %v, want 2.5s", got)
	}
}

func TestProgressScanner_TruncatedBlock(t *testing.T) {
	s := NewProgressScanner(strings.NewReader("out_time_us=3000000\nspeed=1.5x"))
	if !s.Scan() {
		t.Fatal("expected the truncated block")
	}
	if s.Sample().Elapsed != 3*time.Second || s.Sample().Speed != 1.5 {
		t.Errorf("sample = %+v", s.Sample())
	}
	if s.Scan() {
		t.Error("expected end of stream")
	}
}

func TestProgressScanner_IgnoresNoise(t *testing.T) {
	s := NewProgressScanner(strings.NewReader("garbage line\n\nprogress=end\n"))
	if !s.Scan() || !s.Sample().End {
		t.Fatal("expected end block")
	}
	if s.Sample().HasElapsed {
		t.Error("no elapsed value expected")
	}
}

func TestParseSpeed(t *testing.T) {
	tests := map[string]float64{
		"2.0x":  2.0,
		" 1.5x": 1.5,
		"3x":    3,
		"N/A":   0,
		"":      0,
		"-1x":   0,
	}
	for in, want := range tests {
		if got := ParseSpeed(in); got != want {
			t.Errorf("ParseSpeed(%q) = %v, want %v", in, got, want)
		}
	}
}
