package ui

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rivo/tview"

	"github.com/iconidentify/hlsgrabba/internal/api/handler"
	"github.com/iconidentify/hlsgrabba/internal/domain"
)

// jobStore is the TUI's copy of the queue, refreshed from the API and kept
// current between refreshes by item_updated events.
type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]handler.JobResponse
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]handler.JobResponse)}
}

// replace swaps in a fresh snapshot.
func (s *jobStore) replace(jobs []handler.JobResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]handler.JobResponse, len(jobs))
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
}

// apply merges an item_updated event. It reports false when the job is not
// known, in which case the caller should refresh.
func (s *jobStore) apply(ev domain.Event) bool {
	if ev.Type != domain.EventItemUpdated || ev.Update == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[ev.JobID.String()]
	if !ok {
		return false
	}
	applyUpdate(&j, *ev.Update)
	s.jobs[j.ID] = j
	return true
}

func (s *jobStore) get(id string) (handler.JobResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// sorted returns jobs with active ones first, then by creation time.
func (s *jobStore) sorted() []handler.JobResponse {
	s.mu.RLock()
	out := make([]handler.JobResponse, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, k int) bool {
		ri, rk := statusRank(out[i].Status), statusRank(out[k].Status)
		if ri != rk {
			return ri < rk
		}
		if out[i].CreatedAt != out[k].CreatedAt {
			return out[i].CreatedAt < out[k].CreatedAt
		}
		return out[i].ID < out[k].ID
	})
	return out
}

func statusRank(status string) int {
	switch domain.JobStatus(status) {
	case domain.JobStatusDownloading:
		return 0
	case domain.JobStatusQueued:
		return 1
	case domain.JobStatusPaused:
		return 2
	default:
		return 3
	}
}

func applyUpdate(j *handler.JobResponse, u domain.JobUpdate) {
	if u.Status != nil {
		j.Status = string(*u.Status)
		j.StatusLabel = u.Status.Label()
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.Speed != nil {
		j.Speed = *u.Speed
	}
	if u.ETA != nil {
		j.ETA = *u.ETA
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = *u.ErrorMessage
	}
	if u.RetryCount != nil {
		j.RetryCount = *u.RetryCount
	}
}

// formatEvent renders an event for the event log. Progress-only updates are
// not shown.
func formatEvent(ev domain.Event, name string) (string, bool) {
	ts := ev.Timestamp.Local().Format("15:04:05")
	who := ""
	if name != "" {
		who = fmt.Sprintf("[cyan]%s[white] ", tview.Escape(name))
	}

	switch ev.Type {
	case domain.EventItemUpdated:
		if ev.Update == nil || ev.Update.Status == nil {
			return "", false
		}
		line := fmt.Sprintf("[dim]%s[white] %s-> [%s]%s[white]", ts, who, statusColorName(string(*ev.Update.Status)), ev.Update.Status.Label())
		if ev.Update.ErrorMessage != nil && *ev.Update.ErrorMessage != "" {
			line += " [red]" + tview.Escape(*ev.Update.ErrorMessage) + "[white]"
		}
		return line, true
	case domain.EventLog:
		return fmt.Sprintf("[dim]%s[white] %s%s", ts, who, colorizeLogLine(tview.Escape(ev.Text))), true
	case domain.EventJobFinished:
		return fmt.Sprintf("[dim]%s[white] %sfinished", ts, who), true
	case domain.EventJobAdded:
		return fmt.Sprintf("[dim]%s[white] %s[green]added[white]", ts, who), true
	case domain.EventJobRemoved:
		return fmt.Sprintf("[dim]%s[white] %s[yellow]removed[white]", ts, who), true
	case domain.EventQueueStarted:
		return fmt.Sprintf("[dim]%s[white] [green::b]queue started[white::-]", ts), true
	case domain.EventQueueFinished:
		msg := "queue finished"
		if ev.Text != "" {
			msg += ": " + tview.Escape(ev.Text)
		}
		return fmt.Sprintf("[dim]%s[white] [yellow::b]%s[white::-]", ts, msg), true
	}
	return "", false
}

// colorizeLogLine adds color to log lines based on content.
func colorizeLogLine(line string) string {
	lower := strings.ToLower(line)

	// Error patterns
	if strings.Contains(lower, "error") || strings.Contains(lower, "fail") ||
		strings.Contains(lower, "invalid") {
		return "[red]" + line + "[white]"
	}

	// Retry and warning patterns
	if strings.Contains(lower, "retry") || strings.Contains(lower, "retrying") ||
		strings.Contains(lower, "warn") {
		return "[yellow]" + line + "[white]"
	}

	// ffmpeg log block markers
	if strings.HasPrefix(line, "---") {
		return "[dim]" + line + "[white]"
	}

	return line
}

func statusColorName(status string) string {
	switch domain.JobStatus(status) {
	case domain.JobStatusDownloading:
		return "aqua"
	case domain.JobStatusCompleted:
		return "green"
	case domain.JobStatusFailed:
		return "red"
	case domain.JobStatusCanceled, domain.JobStatusPaused:
		return "yellow"
	default:
		return "white"
	}
}

// progressBar draws a fixed-width bar for a 0-100 percentage.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// parseHeaders reads "Name: value" pairs separated by semicolons or newlines.
func parseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '\n' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("header %q must be \"Name: value\"", part)
		}
		headers[name] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}

func jobName(j handler.JobResponse) string {
	path := j.OutputPath
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return j.ID
	}
	return path
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
