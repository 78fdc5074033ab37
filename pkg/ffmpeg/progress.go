package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Sample is one block of ffmpeg -progress output.
type Sample struct {
	// Elapsed is the output timestamp reached. Valid when HasElapsed is set.
	Elapsed    time.Duration
	HasElapsed bool
	// Speed is the processing rate as a multiple of real time; 0 when unknown.
	Speed float64
	// End is set on the final block (progress=end).
	End bool
	// Values holds the raw key=value pairs of the block.
	Values map[string]string
}

// ProgressScanner reads ffmpeg's key=value progress stream block by block.
// A block ends with a progress=continue or progress=end line.
type ProgressScanner struct {
	sc     *bufio.Scanner
	block  map[string]string
	sample Sample
	done   bool
}

// NewProgressScanner creates a scanner reading from r.
func NewProgressScanner(r io.Reader) *ProgressScanner {
	return &ProgressScanner{
		sc:    bufio.NewScanner(r),
		block: make(map[string]string),
	}
}

// Scan advances to the next block. It returns false after progress=end,
// at end of input, or on a read error.
func (s *ProgressScanner) Scan() bool {
	if s.done {
		return false
	}

	for s.sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(s.sc.Text()), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		s.block[key] = value

		if key == "progress" {
			s.sample = parseSample(s.block)
			s.block = make(map[string]string)
			if s.sample.End {
				s.done = true
			}
			return true
		}
	}

	s.done = true
	// A truncated final block still carries usable values.
	if len(s.block) > 0 {
		s.sample = parseSample(s.block)
		s.block = make(map[string]string)
		return true
	}
	return false
}

// Sample returns the block read by the last call to Scan.
func (s *ProgressScanner) Sample() Sample {
	return s.sample
}

// Err returns the first read error.
func (s *ProgressScanner) Err() error {
	return s.sc.Err()
}

func parseSample(values map[string]string) Sample {
	sample := Sample{
		End:    values["progress"] == "end",
		Values: values,
	}

	// out_time_ms is also in microseconds, despite its name.
	for _, key := range []string{"out_time_us", "out_time_ms"} {
		if us, err := strconv.ParseInt(values[key], 10, 64); err == nil && us >= 0 {
			sample.Elapsed = time.Duration(us) * time.Microsecond
			sample.HasElapsed = true
			break
		}
	}

	sample.Speed = ParseSpeed(values["speed"])
	return sample
}

// ParseSpeed parses a speed token such as "2.0x" or "  1.5x". Unknown
// values such as "N/A" return 0.
func ParseSpeed(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "x")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
