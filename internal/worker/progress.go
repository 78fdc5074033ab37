package worker

import (
	"fmt"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/pkg/ffmpeg"
)

// ETAUnknown is displayed when no estimate can be made.
const ETAUnknown = "N/A"

// progressTracker turns ffmpeg progress samples into job updates for one
// attempt. Reported progress never decreases.
type progressTracker struct {
	total time.Duration
	last  int
}

func newProgressTracker(total time.Duration) *progressTracker {
	return &progressTracker{total: total}
}

// update returns the update for sample, or false if the sample carries
// nothing to report.
func (p *progressTracker) update(sample ffmpeg.Sample) (domain.JobUpdate, bool) {
	if !sample.HasElapsed {
		return domain.JobUpdate{}, false
	}

	u := domain.JobUpdate{}.WithSpeed(FormatSpeed(sample.Speed))

	if p.total <= 0 {
		return u.WithETA(ETAUnknown), true
	}

	percent := Percent(sample.Elapsed, p.total)
	if percent < p.last {
		percent = p.last
	}
	p.last = percent

	return u.
		WithProgress(percent).
		WithETA(FormatETA(EstimateRemaining(sample.Elapsed, p.total, sample.Speed))), true
}

// Progress is the last percentage reported.
func (p *progressTracker) Progress() int {
	return p.last
}

// Percent returns elapsed as a whole percentage of total, capped at 100.
func Percent(elapsed, total time.Duration) int {
	if total <= 0 || elapsed <= 0 {
		return 0
	}
	pct := float64(elapsed) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// EstimateRemaining returns the wall time left at speed, or 0 when speed is
// unknown.
func EstimateRemaining(elapsed, total time.Duration, speed float64) time.Duration {
	if speed <= 0 || elapsed >= total {
		return 0
	}
	return time.Duration(float64(total-elapsed) / speed)
}

// FormatSpeed renders a speed multiplier as "2.0x".
func FormatSpeed(speed float64) string {
	return fmt.Sprintf("%.1fx", speed)
}

// FormatETA renders d as "<m>m <s>s", or ETAUnknown when d is not positive.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return ETAUnknown
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
